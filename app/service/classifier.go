package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
)

// Classifier records transient and hard failures on an order's reconcile
// metadata. A transient error is retried by the retry job; a hard error is
// terminal and blocks all further automatic processing.
type Classifier struct {
	metaRepo      metaRepository
	maxRetryCount int32
}

func NewClassifier(metaRepo metaRepository, maxRetryCount int32) *Classifier {
	return &Classifier{metaRepo: metaRepo, maxRetryCount: maxRetryCount}
}

// RecordTransient stores a retryable failure. Repeating the same
// (code, action) pair increments the consecutive-failure counter; any other
// pair overwrites the stored error and resets the counter to zero.
// A missing metadata row is a no-op.
func (c *Classifier) RecordTransient(ctx context.Context, orderID uint64, action, code, message string) error {
	meta, err := c.metaRepo.FindByOrderID(ctx, orderID)
	if err != nil || meta == nil {
		return err
	}

	samePair := meta.TransientErrorCode != nil && *meta.TransientErrorCode == code &&
		meta.RetryAction != nil && *meta.RetryAction == action
	if samePair {
		meta.TransientErrorCount++
	} else {
		meta.TransientErrorCount = 0
		meta.TransientErrorCode = &code
		meta.TransientErrorMsg = &message
		meta.RetryAction = &action
	}
	meta.TransientError = entity.TriStateYes
	meta.UpdatedAt = time.Now().UTC()

	return c.metaRepo.Update(ctx, meta)
}

// RecordHard stores a terminal failure. Once set it is never cleared by the
// reconciliation jobs.
func (c *Classifier) RecordHard(ctx context.Context, orderID uint64, action, code, message string) error {
	meta, err := c.metaRepo.FindByOrderID(ctx, orderID)
	if err != nil || meta == nil {
		return err
	}

	meta.HardError = entity.TriStateYes
	meta.HardErrorCode = &code
	meta.HardErrorMsg = &message
	if action != "" {
		meta.RetryAction = &action
	}
	meta.UpdatedAt = time.Now().UTC()

	return c.metaRepo.Update(ctx, meta)
}

// RecordFromError classifies a gateway call failure: a 4xx rejection is
// hard, everything else transient.
func (c *Classifier) RecordFromError(ctx context.Context, orderID uint64, action, code string, callErr error) error {
	if gateway.IsClientError(callErr) {
		return c.RecordHard(ctx, orderID, action, code, callErr.Error())
	}
	return c.RecordTransient(ctx, orderID, action, code, callErr.Error())
}

// ClearTransient removes the transient error state after a successful
// action. Hard errors are left untouched.
func (c *Classifier) ClearTransient(ctx context.Context, orderID uint64) error {
	meta, err := c.metaRepo.FindByOrderID(ctx, orderID)
	if err != nil || meta == nil {
		return err
	}

	meta.TransientError = entity.TriStateUnset
	meta.TransientErrorCode = nil
	meta.TransientErrorMsg = nil
	meta.RetryAction = nil
	meta.TransientErrorCount = 0
	meta.UpdatedAt = time.Now().UTC()

	return c.metaRepo.Update(ctx, meta)
}

func (c *Classifier) RetryCount(ctx context.Context, orderID uint64) (int32, error) {
	meta, err := c.metaRepo.FindByOrderID(ctx, orderID)
	if err != nil || meta == nil {
		return 0, err
	}
	return meta.TransientErrorCount, nil
}

// CheckRetryCount escalates the order to a hard error once the consecutive
// failure count exceeds the configured maximum. It reports whether the
// order escalated, in which case the retry job must not dispatch it.
func (c *Classifier) CheckRetryCount(ctx context.Context, orderID uint64) (bool, error) {
	meta, err := c.metaRepo.FindByOrderID(ctx, orderID)
	if err != nil || meta == nil {
		return false, err
	}
	if meta.TransientErrorCount <= c.maxRetryCount {
		return false, nil
	}

	action := ""
	if meta.RetryAction != nil {
		action = *meta.RetryAction
	}
	if err := c.RecordHard(ctx, orderID, action, codeRetryExceeded, "Retry count exceeded."); err != nil {
		return false, err
	}

	return true, nil
}
