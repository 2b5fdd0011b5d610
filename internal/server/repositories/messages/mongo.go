package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName is the MongoDB collection holding messages.
const CollectionName = "messages"

type messageDocument struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	ConversationKey string        `bson:"conversationKey"`
	From            string        `bson:"from"`
	To              string        `bson:"to"`
	Text            string        `bson:"text"`
	CreatedAt       time.Time     `bson:"createdAt"`
}

func (d *messageDocument) toModel() *models.Message {
	return &models.Message{
		ID:        d.ID.Hex(),
		From:      d.From,
		To:        d.To,
		Text:      d.Text,
		CreatedAt: d.CreatedAt,
	}
}

type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the index History reads through.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: historySort(bson.D{{Key: "conversationKey", Value: 1}}),
	})
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

func (r *MongoRepository) Append(ctx context.Context, msg *models.Message) (*models.Message, error) {
	doc := messageDocument{
		ID:              bson.NewObjectID(),
		ConversationKey: models.ConversationKey(msg.From, msg.To),
		From:            msg.From,
		To:              msg.To,
		Text:            msg.Text,
		CreatedAt:       msg.CreatedAt,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: mongo error: %w", common.ErrPersistence, err)
	}

	msg.ID = doc.ID.Hex()
	return msg, nil
}

func (r *MongoRepository) History(ctx context.Context, a, b string) ([]*models.Message, error) {
	filter := bson.M{"conversationKey": models.ConversationKey(a, b)}
	opts := options.Find().SetSort(historySort(nil))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: mongo error: %w", common.ErrPersistence, err)
	}

	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: mongo error: %w", common.ErrPersistence, err)
	}

	result := make([]*models.Message, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toModel())
	}
	return result, nil
}

// historySort appends the History ordering to prefix. ObjectIDs grow with
// insertion, so _id breaks timestamp ties in append order.
func historySort(prefix bson.D) bson.D {
	return append(prefix, bson.E{Key: "createdAt", Value: 1}, bson.E{Key: "_id", Value: 1})
}
