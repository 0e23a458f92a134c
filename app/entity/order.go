package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending              int32 = 1
	OrderStatusAwaitingConfirmation int32 = 2
	OrderStatusMultiTokenPayment    int32 = 3
	OrderStatusProcessing           int32 = 4
	OrderStatusCompleted            int32 = 5
	OrderStatusCanceled             int32 = 6
	OrderStatusFailed               int32 = 7
)

type Order struct {
	ID uint64

	Total    decimal.Decimal
	Currency string

	Status int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OpenStatus reports whether the order is still waiting for funds and may
// be advanced by the payment sync job.
func OpenStatus(status int32) bool {
	switch status {
	case OrderStatusPending, OrderStatusAwaitingConfirmation, OrderStatusMultiTokenPayment:
		return true
	default:
		return false
	}
}
