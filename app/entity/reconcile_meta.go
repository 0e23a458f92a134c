package entity

import "time"

// PaymentStatus tracks where the order stands in the gateway settle/refund
// lifecycle. The zero value means no gateway operation has been recorded yet.
type PaymentStatus int32

const (
	PaymentStatusUnset PaymentStatus = iota
	PaymentStatusReceived
	PaymentStatusSettleInProgress
	PaymentStatusSettled
	PaymentStatusSettleFailed
	PaymentStatusRefundInProgress
	PaymentStatusRefunded
	PaymentStatusRefundFailed
)

var paymentStatusStrings = map[PaymentStatus]string{
	PaymentStatusReceived:         "payment-received",
	PaymentStatusSettleInProgress: "settle_in_progress",
	PaymentStatusSettled:          "settled",
	PaymentStatusSettleFailed:     "settle_failed",
	PaymentStatusRefundInProgress: "refund_in_progress",
	PaymentStatusRefunded:         "refunded",
	PaymentStatusRefundFailed:     "refund_failed",
}

func (s PaymentStatus) String() string {
	return paymentStatusStrings[s]
}

// ParsePaymentStatus maps the persisted string representation back to the
// enum. Unknown or empty values map to PaymentStatusUnset.
func ParsePaymentStatus(raw string) PaymentStatus {
	for status, str := range paymentStatusStrings {
		if str == raw {
			return status
		}
	}
	return PaymentStatusUnset
}

// InFlight reports whether a gateway operation is still being polled for
// this order. No new settle or refund may be issued while one is in flight.
func (s PaymentStatus) InFlight() bool {
	return s == PaymentStatusSettleInProgress || s == PaymentStatusRefundInProgress
}

// BlocksPaymentSync reports whether the inbound sync must leave the order
// alone because a settle/refund has been started or finished.
func (s PaymentStatus) BlocksPaymentSync() bool {
	switch s {
	case PaymentStatusSettleInProgress, PaymentStatusSettled, PaymentStatusSettleFailed,
		PaymentStatusRefundInProgress, PaymentStatusRefunded, PaymentStatusRefundFailed:
		return true
	default:
		return false
	}
}

// BlocksOrderSync reports whether the outbound sync must leave the order
// alone. A failed settle stays eligible so the operation can be issued
// again; a failed refund is terminal.
func (s PaymentStatus) BlocksOrderSync() bool {
	switch s {
	case PaymentStatusSettleInProgress, PaymentStatusSettled,
		PaymentStatusRefundInProgress, PaymentStatusRefunded, PaymentStatusRefundFailed:
		return true
	default:
		return false
	}
}

// TriState models the yes/no/unset columns of the reconcile metadata table.
type TriState int32

const (
	TriStateUnset TriState = iota
	TriStateNo
	TriStateYes
)

func (t TriState) String() string {
	switch t {
	case TriStateYes:
		return "yes"
	case TriStateNo:
		return "no"
	default:
		return ""
	}
}

func ParseTriState(raw string) TriState {
	switch raw {
	case "yes":
		return TriStateYes
	case "no":
		return TriStateNo
	default:
		return TriStateUnset
	}
}

// Job identifiers recorded in the DataSource column so each poller can tell
// who touched an order last.
const (
	DataSourcePaymentSync = "payments-job"
	DataSourceOrderSync   = "orders-job"
	DataSourceRetry       = "retry-job"
)

// Retry actions recorded alongside a transient error.
const (
	RetryActionSyncOrder   = "syncOrder"
	RetryActionSyncPayment = "syncPayment"
	RetryActionSettle      = "settle"
	RetryActionRefund      = "refund"
)

// ReconcileMeta is the per-order reconciliation record, one row per order.
type ReconcileMeta struct {
	OrderID uint64

	AddressesJSON *string

	PaymentStatus PaymentStatus
	TxID          *string
	DataSource    *string

	ProcessingCompleted TriState

	TransientError      TriState
	TransientErrorCode  *string
	TransientErrorMsg   *string
	RetryAction         *string
	TransientErrorCount int32

	HardError     TriState
	HardErrorCode *string
	HardErrorMsg  *string

	UpdatedAt time.Time
}
