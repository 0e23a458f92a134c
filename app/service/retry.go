package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
)

// RunRetryBatch re-runs the recorded retry action for every order carrying a
// transient error. Each attempt first bumps the consecutive-failure check;
// an order that keeps failing the same way is escalated to a hard error and
// dropped from all future batches.
func (s *ReconcileService) RunRetryBatch(ctx context.Context) error {
	orders, err := s.orderRepo.ListTransientError(ctx, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range orders {
		meta, err := s.metaRepo.FindByOrderID(ctx, order.ID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if meta == nil || meta.RetryAction == nil {
			continue
		}

		escalated, err := s.classifier.CheckRetryCount(ctx, order.ID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if escalated {
			logrus.WithField("order_id", order.ID).Warn("retry_count_exceeded")
			continue
		}

		log := logrus.WithField("order_id", order.ID).WithField("retry_action", *meta.RetryAction)
		log.Info("retry_dispatch")

		switch *meta.RetryAction {
		case entity.RetryActionSyncOrder:
			firstErr = keepFirstErr(firstErr, s.syncOrder(ctx, order, entity.DataSourceRetry))
		case entity.RetryActionSyncPayment:
			firstErr = keepFirstErr(firstErr, s.syncPayment(ctx, nil, order.ID, entity.DataSourceRetry))
		case entity.RetryActionSettle:
			firstErr = keepFirstErr(firstErr, s.retryOperation(ctx, order, true))
		case entity.RetryActionRefund:
			firstErr = keepFirstErr(firstErr, s.retryOperation(ctx, order, false))
		default:
			log.Warn("retry_unknown_action")
		}
	}

	return firstErr
}

// retryOperation re-issues a settle or refund whose on-chain operation came
// back failed. The balance is re-derived first so the new operation uses the
// wallet's current state.
func (s *ReconcileService) retryOperation(ctx context.Context, order *entity.Order, settle bool) error {
	balances, err := s.ResolveBalance(ctx, order, nil)
	if err != nil {
		if errors.Is(err, ErrMultiTokenPayment) || errors.Is(err, ErrPaymentNotFound) {
			logrus.WithError(err).WithField("order_id", order.ID).Warn("retry_operation_skip")
			return nil
		}
		return err
	}
	if len(balances) == 0 || !balances[0].Balance.IsPositive() {
		return nil
	}

	if settle {
		return s.settleOrder(ctx, order, balances[0], entity.DataSourceRetry)
	}
	return s.refundOrder(ctx, order, balances[0], entity.DataSourceRetry)
}
