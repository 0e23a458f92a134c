package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `o.id, o.total, o.currency, o.status, o.created_at, o.updated_at`

func (r *OrderRepository) FindByID(ctx context.Context, id uint64) (*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.id = ?
	`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, id), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

// FindOpenByID returns the order only if it is still in a pre-settlement
// status, i.e. the payment sync job may act on it.
func (r *OrderRepository) FindOpenByID(ctx context.Context, id uint64) (*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.id = ?
		  AND o.status IN (?, ?, ?)
	`

	order := &entity.Order{}
	row := r.db.QueryRowContext(ctx, query, id,
		entity.OrderStatusPending,
		entity.OrderStatusAwaitingConfirmation,
		entity.OrderStatusMultiTokenPayment,
	)
	if err := scanOrder(row, order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

// ListUpdatedSince returns Completed/Canceled orders modified in (since, now]
// whose reconciliation is not yet completed, oldest first. This is the
// order sync job's diff source.
func (r *OrderRepository) ListUpdatedSince(ctx context.Context, since, now time.Time, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		JOIN reconcile_meta m ON m.order_id = o.id
		WHERE o.status IN (?, ?)
		  AND o.updated_at > ?
		  AND o.updated_at <= ?
		  AND (m.processing_completed IS NULL OR m.processing_completed = 'no')
		ORDER BY o.updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		entity.OrderStatusCompleted,
		entity.OrderStatusCanceled,
		since,
		now,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListByStatus returns orders in the given storefront status whose
// reconciliation is not yet completed, oldest modification first.
func (r *OrderRepository) ListByStatus(ctx context.Context, status int32, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		JOIN reconcile_meta m ON m.order_id = o.id
		WHERE o.status = ?
		  AND (m.processing_completed IS NULL OR m.processing_completed = 'no')
		ORDER BY o.updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListByPaymentStatus returns orders whose reconcile metadata carries the
// given gateway payment status, used to poll in-flight operations.
func (r *OrderRepository) ListByPaymentStatus(ctx context.Context, status entity.PaymentStatus, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		JOIN reconcile_meta m ON m.order_id = o.id
		WHERE m.payment_status = ?
		  AND (m.processing_completed IS NULL OR m.processing_completed = 'no')
		ORDER BY o.updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, status.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListTransientError returns orders flagged with a transient error that have
// not escalated to a hard error and are not completed, oldest first.
func (r *OrderRepository) ListTransientError(ctx context.Context, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		JOIN reconcile_meta m ON m.order_id = o.id
		WHERE m.transient_error = 'yes'
		  AND (m.hard_error IS NULL OR m.hard_error = 'no')
		  AND (m.processing_completed IS NULL OR m.processing_completed = 'no')
		ORDER BY o.updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

// UpdateStatus moves the order to newStatus and refreshes updated_at. The
// caller appends the matching history entry.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uint64, newStatus int32, now time.Time) error {
	query := `
		UPDATE orders SET
			status = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, newStatus, now, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func scanOrder(scan rowScanner, order *entity.Order) error {
	var total string

	err := scan.Scan(
		&order.ID,
		&total,
		&order.Currency,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	parsed, err := decimal.NewFromString(total)
	if err != nil {
		return err
	}
	order.Total = parsed

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func collectOrders(rows *sql.Rows) ([]*entity.Order, error) {
	orders := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
