package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
)

// CursorRepository persists the two sync boundaries in a single-row table.
type CursorRepository struct {
	db DBTX
}

func NewCursorRepository(db DBTX) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get returns the stored cursor. When the row is missing, both boundaries
// default to 24 hours ago so a fresh install replays one day of history.
func (r *CursorRepository) Get(ctx context.Context) (*entity.Cursor, error) {
	query := `
		SELECT payment_updated_at, order_updated_at
		FROM reconcile_cursor
		WHERE id = 1
	`

	cursor := &entity.Cursor{}
	err := r.db.QueryRowContext(ctx, query).Scan(&cursor.PaymentUpdatedAt, &cursor.OrderUpdatedAt)
	if err == sql.ErrNoRows {
		fallback := time.Now().UTC().Add(-24 * time.Hour)
		return &entity.Cursor{PaymentUpdatedAt: fallback, OrderUpdatedAt: fallback}, nil
	}
	if err != nil {
		return nil, err
	}

	return cursor, nil
}

func (r *CursorRepository) SetPaymentUpdatedAt(ctx context.Context, t time.Time) error {
	query := `
		UPDATE reconcile_cursor SET payment_updated_at = ? WHERE id = 1
	`

	_, err := r.db.ExecContext(ctx, query, t)
	return err
}

func (r *CursorRepository) SetOrderUpdatedAt(ctx context.Context, t time.Time) error {
	query := `
		UPDATE reconcile_cursor SET order_updated_at = ? WHERE id = 1
	`

	_, err := r.db.ExecContext(ctx, query, t)
	return err
}
