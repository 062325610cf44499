package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one row of the in-app notification center.
type Record struct {
	ID          uuid.UUID
	RecipientID int64
	Kind        Kind
	ContextKey  string
	Title       string
	Body        string
	Data        map[string]string
	CreatedAt   time.Time
}

type Repository interface {
	Insert(ctx context.Context, rec Record) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec Record) error {
	data := rec.Data
	if data == nil {
		data = map[string]string{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lookout.notifications
			(id, recipient_id, kind, context_key, title, body, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.RecipientID, string(rec.Kind), rec.ContextKey, rec.Title, rec.Body, string(raw), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
