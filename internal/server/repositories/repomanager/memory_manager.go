package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
)

// MemoryRepositoryManager keeps everything in process memory. Data does not
// survive a restart.
type MemoryRepositoryManager struct {
	users    *users.MemoryRepository
	messages *messages.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:    users.NewMemoryRepository(),
		messages: messages.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *MemoryRepositoryManager) Messages() messages.Repository {
	return m.messages
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Close(ctx context.Context) error {
	return nil
}
