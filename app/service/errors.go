package service

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrMultiTokenPayment = errors.New("multiple token balances found")
	ErrCheckoutRejected  = errors.New("checkout validation rejected")
)

// Error codes recorded on reconcile metadata. The retry job keys its
// consecutive-failure counting on these.
const (
	codePaymentSyncCollision = "E102"
	codeSettleCallFailed     = "E103"
	codeOrderSyncCollision   = "E200"
	codeRefundCallFailed     = "E205"
	codeRetryExceeded        = "E907"
	codeSettleOpFailed       = "E908"
	codeRefundOpFailed       = "E909"
)
