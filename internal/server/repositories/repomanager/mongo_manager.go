package repomanager

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoDatabase is used when the DSN does not name a database.
const DefaultMongoDatabase = "gophchat"

// MongoRepositoryManager vends MongoDB-backed repositories. Migrations are
// limited to index creation.
type MongoRepositoryManager struct {
	client   *mongo.Client
	users    *users.MongoRepository
	messages *messages.MongoRepository
}

func OpenMongo(ctx context.Context, dsn string) (*MongoRepositoryManager, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("mongo error: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo error: %w", err)
	}

	db := client.Database(mongoDatabaseName(dsn))
	return &MongoRepositoryManager{
		client:   client,
		users:    users.NewMongoRepository(db),
		messages: messages.NewMongoRepository(db),
	}, nil
}

// mongoDatabaseName returns the database named in the DSN path.
func mongoDatabaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return DefaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return DefaultMongoDatabase
}

func (m *MongoRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *MongoRepositoryManager) Messages() messages.Repository {
	return m.messages
}

func (m *MongoRepositoryManager) RunMigrations(ctx context.Context) error {
	if err := m.users.EnsureIndexes(ctx); err != nil {
		return err
	}
	return m.messages.EnsureIndexes(ctx)
}

func (m *MongoRepositoryManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
