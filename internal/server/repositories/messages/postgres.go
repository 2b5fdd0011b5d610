package messages

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// DB is satisfied by *sql.DB.
type DB interface {
	dbx.DBTX
	dbx.TxBeginner
}

type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, msg *models.Message) (*models.Message, error) {
	key := models.ConversationKey(msg.From, msg.To)

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// serializes appends to one conversation across server instances
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}

		query :=
			`INSERT INTO messages (conversation_key, from_id, to_id, text, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id
			 `
		return tx.QueryRowContext(ctx, query, key, msg.From, msg.To, msg.Text, msg.CreatedAt).Scan(&msg.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: db error: %w", common.ErrPersistence, err)
	}

	return msg, nil
}

func (r *PostgresRepository) History(ctx context.Context, a, b string) ([]*models.Message, error) {
	query :=
		`SELECT id, from_id, to_id, text, created_at FROM messages
		 WHERE conversation_key = $1
		 ORDER BY created_at, seq
		 `

	rows, err := r.db.QueryContext(ctx, query, models.ConversationKey(a, b))
	if err != nil {
		return nil, fmt.Errorf("%w: db error: %w", common.ErrPersistence, err)
	}
	defer rows.Close()

	result := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: db error: %w", common.ErrPersistence, err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: db error: %w", common.ErrPersistence, err)
	}

	return result, nil
}
