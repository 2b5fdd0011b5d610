// Package messages persists direct messages grouped by conversation.
package messages

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// Repository is an append-only log of messages per conversation.
//
// Append stores msg under the conversation of msg.From and msg.To and fills
// in msg.ID. msg.CreatedAt is set by the caller and kept as is. Append either
// stores the message or returns an error wrapping common.ErrPersistence.
//
// History returns the conversation between a and b ordered by CreatedAt,
// ties broken by insertion order. The result does not depend on argument
// order and is empty, not nil, when nothing was exchanged.
type Repository interface {
	Append(ctx context.Context, msg *models.Message) (*models.Message, error)
	History(ctx context.Context, a, b string) ([]*models.Message, error)
}
