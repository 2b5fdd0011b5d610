package messages

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps conversations in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	convs map[string][]models.Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{convs: make(map[string][]models.Message)}
}

func (r *MemoryRepository) Append(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	key := models.ConversationKey(msg.From, msg.To)
	msg.ID = uuid.NewString()

	r.mu.Lock()
	r.convs[key] = append(r.convs[key], *msg)
	r.mu.Unlock()

	return msg, nil
}

func (r *MemoryRepository) History(ctx context.Context, a, b string) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	r.mu.RLock()
	stored := r.convs[models.ConversationKey(a, b)]
	result := make([]*models.Message, len(stored))
	for i := range stored {
		m := stored[i]
		result[i] = &m
	}
	r.mu.RUnlock()

	// stable keeps insertion order for equal timestamps
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
