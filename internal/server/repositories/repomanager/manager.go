// Package repomanager selects a storage backend from the database DSN and
// vends the repositories bound to it.
package repomanager

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/gophchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Messages() messages.Repository
	Close(ctx context.Context) error
}

// New opens the backend named by the DSN scheme: postgres:// or
// postgresql:// for PostgreSQL, mongodb:// or mongodb+srv:// for MongoDB,
// memory:// or an empty DSN for in-process storage.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(), nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database dsn: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryRepositoryManager(), nil
	case "postgres", "postgresql":
		return OpenPostgres(ctx, dsn)
	case "mongodb", "mongodb+srv":
		return OpenMongo(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
}
