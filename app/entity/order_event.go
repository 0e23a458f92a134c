package entity

import "time"

// OrderEvent is one status-history entry. Every order status transition
// appends one of these.
type OrderEvent struct {
	ID uint64

	OrderID uint64

	OldStatus *int32
	NewStatus int32

	Comment string

	CreatedAt time.Time
}
