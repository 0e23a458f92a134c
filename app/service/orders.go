package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
)

// RunOrderSyncBatch pushes local order-status transitions out to the
// gateway. One invocation runs five phases, each resumable on its own:
// diff-and-act over recently modified orders, settle verification, the
// payment-confirmation cut-off, refund verification, and complete-refund
// verification.
func (s *ReconcileService) RunOrderSyncBatch(ctx context.Context) error {
	now := time.Now().UTC()

	cursor, err := s.cursorRepo.Get(ctx)
	if err != nil {
		return err
	}

	orders, err := s.orderRepo.ListUpdatedSince(ctx, cursor.OrderUpdatedAt, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	var maxSeen time.Time
	for _, order := range orders {
		if err := s.syncOrder(ctx, order, entity.DataSourceOrderSync); err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if order.UpdatedAt.After(maxSeen) {
			maxSeen = order.UpdatedAt
		}
	}

	// Advance only past fully processed orders; a crashed run replays the
	// same window, relying on the per-order guards for idempotency.
	if !maxSeen.IsZero() {
		if err := s.cursorRepo.SetOrderUpdatedAt(ctx, maxSeen.Add(time.Second)); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	firstErr = keepFirstErr(firstErr, s.verifySettleOperations(ctx, entity.DataSourceOrderSync))
	firstErr = keepFirstErr(firstErr, s.failUnconfirmedOrders(ctx, now))
	firstErr = keepFirstErr(firstErr, s.verifyRefundOperations(ctx, entity.DataSourceOrderSync))
	firstErr = keepFirstErr(firstErr, s.verifyCompleteRefunds(ctx, entity.DataSourceOrderSync))

	return firstErr
}

// syncOrder is the per-order push procedure. It walks the guard chain,
// resolves the payment's token balance and issues the settle or refund
// matching the order status.
func (s *ReconcileService) syncOrder(ctx context.Context, order *entity.Order, dataSource string) error {
	log := logrus.WithField("order_id", order.ID).WithField("data_source", dataSource)

	meta, err := s.metaRepo.FindByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}

	if meta.HardError == entity.TriStateYes {
		log.Info("sync_order_skip_hard_error")
		return nil
	}
	if meta.TransientError == entity.TriStateYes && !retryActionIs(meta, entity.RetryActionSyncOrder) {
		log.WithField("retry_action", stringValue(meta.RetryAction)).Info("sync_order_skip_retry_action_mismatch")
		return nil
	}
	if meta.ProcessingCompleted == entity.TriStateYes {
		log.Info("sync_order_skip_completed")
		return nil
	}
	if meta.PaymentStatus.BlocksOrderSync() {
		log.WithField("payment_status", meta.PaymentStatus.String()).Info("sync_order_skip_operation_state")
		return nil
	}

	// Soft mutual exclusion: when the payment sync job touched this order
	// inside the collision window, defer with a transient error instead of
	// racing it.
	if dataSource == entity.DataSourceOrderSync &&
		dataSourceIs(meta, entity.DataSourcePaymentSync) &&
		time.Now().UTC().Sub(order.UpdatedAt) < s.cfg.CollisionWindow {
		log.Info("sync_order_collision_deferred")
		return s.classifier.RecordTransient(ctx, order.ID, entity.RetryActionSyncOrder, codeOrderSyncCollision,
			"payment sync touched this order recently, deferring")
	}

	balances, err := s.ResolveBalance(ctx, order, nil)
	if err != nil {
		if errors.Is(err, ErrMultiTokenPayment) {
			return s.markAsMultiTokenPayment(ctx, order)
		}
		log.WithError(err).Warn("sync_order_balance_failed")
		return nil
	}
	if len(balances) == 0 || !balances[0].Balance.IsPositive() {
		return nil
	}

	switch order.Status {
	case entity.OrderStatusCompleted:
		return s.settleOrder(ctx, order, balances[0], dataSource)
	case entity.OrderStatusCanceled:
		return s.refundOrder(ctx, order, balances[0], dataSource)
	default:
		log.WithField("status", order.Status).Info("sync_order_no_action")
		return nil
	}
}

func (s *ReconcileService) settleOrder(ctx context.Context, order *entity.Order, balance TokenBalance, dataSource string) error {
	time.Sleep(s.cfg.OperationDelay) // gateway rate limit

	id := strconv.FormatUint(order.ID, 10)
	operation, err := s.gw.SettlePayment(ctx, id, balance.Chain, balance.Addr, order.Total.String())
	if err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("settle_call_failed")
		return s.classifier.RecordFromError(ctx, order.ID, entity.RetryActionSyncOrder, codeSettleCallFailed, err)
	}
	if operation.TxID == "" {
		return nil
	}

	meta, err := s.metaRepo.FindByOrderID(ctx, order.ID)
	if err != nil || meta == nil {
		return err
	}

	txid := operation.TxID
	source := dataSource
	meta.TxID = &txid
	meta.PaymentStatus = entity.PaymentStatusSettleInProgress
	meta.ProcessingCompleted = entity.TriStateNo
	meta.DataSource = &source
	clearTransientFields(meta)
	meta.UpdatedAt = time.Now().UTC()

	if err := s.metaRepo.Update(ctx, meta); err != nil {
		return err
	}

	logrus.WithField("order_id", order.ID).WithField("txid", txid).Info("settle_started")
	return nil
}

func (s *ReconcileService) refundOrder(ctx context.Context, order *entity.Order, balance TokenBalance, dataSource string) error {
	time.Sleep(s.cfg.OperationDelay) // gateway rate limit

	id := strconv.FormatUint(order.ID, 10)
	operation, err := s.gw.RefundPayment(ctx, id, balance.Chain, balance.Addr)
	if err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("refund_call_failed")
		return s.classifier.RecordFromError(ctx, order.ID, entity.RetryActionSyncOrder, codeRefundCallFailed, err)
	}
	if operation.TxID == "" {
		return nil
	}

	meta, err := s.metaRepo.FindByOrderID(ctx, order.ID)
	if err != nil || meta == nil {
		return err
	}

	txid := operation.TxID
	source := dataSource
	meta.TxID = &txid
	meta.PaymentStatus = entity.PaymentStatusRefundInProgress
	meta.ProcessingCompleted = entity.TriStateNo
	meta.DataSource = &source
	clearTransientFields(meta)
	meta.UpdatedAt = time.Now().UTC()

	if err := s.metaRepo.Update(ctx, meta); err != nil {
		return err
	}

	logrus.WithField("order_id", order.ID).WithField("txid", txid).Info("refund_started")
	return nil
}

func (s *ReconcileService) verifySettleOperations(ctx context.Context, dataSource string) error {
	return s.verifyOperations(ctx, entity.PaymentStatusSettleInProgress, dataSource)
}

func (s *ReconcileService) verifyRefundOperations(ctx context.Context, dataSource string) error {
	return s.verifyOperations(ctx, entity.PaymentStatusRefundInProgress, dataSource)
}

// verifyOperations polls the gateway operation recorded for every order with
// an in-flight settle or refund. A resolved "yes" completes the operation; a
// resolved "no" records the failure — transient for settles, which are
// retried as long as it takes, hard for refunds, which are never retried
// automatically to avoid a double refund. Still-pending operations are left
// for the next pass.
func (s *ReconcileService) verifyOperations(ctx context.Context, inProgress entity.PaymentStatus, dataSource string) error {
	orders, err := s.orderRepo.ListByPaymentStatus(ctx, inProgress, s.batchSize())
	if err != nil {
		return err
	}

	settle := inProgress == entity.PaymentStatusSettleInProgress

	var firstErr error
	for _, order := range orders {
		meta, err := s.metaRepo.FindByOrderID(ctx, order.ID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if meta == nil || meta.TxID == nil {
			logrus.WithField("order_id", order.ID).Info("verify_operation_skip_no_txid")
			continue
		}

		operation, err := s.gw.GetPaymentOperation(ctx, strconv.FormatUint(order.ID, 10), *meta.TxID)
		if err != nil {
			logrus.WithError(err).WithField("order_id", order.ID).Warn("verify_operation_poll_failed")
			continue
		}

		switch operation.Status {
		case gateway.OperationStatusSuccess:
			if settle {
				meta.PaymentStatus = entity.PaymentStatusSettled
				meta.ProcessingCompleted = entity.TriStateYes
			} else {
				meta.PaymentStatus = entity.PaymentStatusRefunded
			}
		case gateway.OperationStatusFailed:
			if settle {
				meta.PaymentStatus = entity.PaymentStatusSettleFailed
				firstErr = keepFirstErr(firstErr, s.classifier.RecordTransient(ctx, order.ID,
					entity.RetryActionSettle, codeSettleOpFailed, "payment operation failed"))
			} else {
				meta.PaymentStatus = entity.PaymentStatusRefundFailed
				firstErr = keepFirstErr(firstErr, s.classifier.RecordHard(ctx, order.ID,
					entity.RetryActionRefund, codeRefundOpFailed, "payment operation failed"))
			}
		default:
			// still pending
			continue
		}

		// RecordTransient/RecordHard rewrote the row; re-read before saving
		// the status change so the error fields survive.
		fresh, err := s.metaRepo.FindByOrderID(ctx, order.ID)
		if err != nil || fresh == nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		source := dataSource
		fresh.PaymentStatus = meta.PaymentStatus
		fresh.ProcessingCompleted = meta.ProcessingCompleted
		fresh.DataSource = &source
		fresh.UpdatedAt = time.Now().UTC()
		firstErr = keepFirstErr(firstErr, s.metaRepo.Update(ctx, fresh))
	}

	return firstErr
}

// failUnconfirmedOrders fails orders stuck awaiting payment confirmation
// beyond the cut-off window with no funds received.
func (s *ReconcileService) failUnconfirmedOrders(ctx context.Context, now time.Time) error {
	orders, err := s.orderRepo.ListByStatus(ctx, entity.OrderStatusAwaitingConfirmation, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range orders {
		reference := order.UpdatedAt
		if reference.IsZero() {
			reference = order.CreatedAt
		}
		if now.Sub(reference) <= s.cfg.ConfirmationCutoff {
			continue
		}

		logrus.WithField("order_id", order.ID).Info("order_confirmation_cutoff")
		err := s.updateOrderStatus(ctx, order, entity.OrderStatusFailed,
			"Payment confirmation not received before cut-off time", now)
		firstErr = keepFirstErr(firstErr, err)
	}

	return firstErr
}

// verifyCompleteRefunds re-derives balances for refunded orders. When no
// balance remains the order is done; otherwise the first balance not covered
// by a finished refund operation is refunded again, one attempt per pass,
// until a later pass finds nothing left.
func (s *ReconcileService) verifyCompleteRefunds(ctx context.Context, dataSource string) error {
	orders, err := s.orderRepo.ListByPaymentStatus(ctx, entity.PaymentStatusRefunded, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range orders {
		balances, err := s.resolveBalances(ctx, order, nil)
		if err != nil {
			logrus.WithError(err).WithField("order_id", order.ID).Warn("complete_refund_balance_failed")
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if len(balances) == 0 {
			firstErr = keepFirstErr(firstErr, s.markProcessingCompleted(ctx, order.ID, dataSource))
			continue
		}

		refunded, err := s.refundedTokens(ctx, order.ID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		allRefunded := true
		for _, balance := range balances {
			if refunded[balance.Chain+"/"+balance.Addr] {
				continue
			}
			allRefunded = false
			firstErr = keepFirstErr(firstErr, s.refundOrder(ctx, order, balance, dataSource))
			break // one refund attempt per invocation
		}

		if allRefunded {
			firstErr = keepFirstErr(firstErr, s.markProcessingCompleted(ctx, order.ID, dataSource))
		}
	}

	return firstErr
}

// refundedTokens collects chain/token pairs already covered by a finished
// refund operation. Pagination is capped so a misbehaving gateway cannot
// loop this forever.
func (s *ReconcileService) refundedTokens(ctx context.Context, orderID uint64) (map[string]bool, error) {
	refunded := make(map[string]bool)
	id := strconv.FormatUint(orderID, 10)

	nextToken := ""
	for page := 0; page < s.cfg.MaxPages; page++ {
		operations, err := s.gw.ListPaymentOperations(ctx, id, nextToken)
		if err != nil {
			return nil, err
		}
		for _, operation := range operations.Results {
			if operation.Hash == "" || operation.Status != gateway.OperationStatusSuccess {
				continue
			}
			if operation.FuncName != gateway.FuncCreateAndRefundWallet && operation.FuncName != gateway.FuncRefundWallet {
				continue
			}
			refunded[operation.Chain+"/"+operation.Inputs.Token] = true
		}
		nextToken = operations.NextToken
		if nextToken == "" {
			break
		}
	}

	return refunded, nil
}

func (s *ReconcileService) markProcessingCompleted(ctx context.Context, orderID uint64, dataSource string) error {
	meta, err := s.metaRepo.FindByOrderID(ctx, orderID)
	if err != nil || meta == nil {
		return err
	}

	source := dataSource
	meta.ProcessingCompleted = entity.TriStateYes
	meta.DataSource = &source
	meta.UpdatedAt = time.Now().UTC()

	logrus.WithField("order_id", orderID).Info("processing_completed")
	return s.metaRepo.Update(ctx, meta)
}

// markAsMultiTokenPayment flags an ambiguous payment for manual resolution.
// Legal only while the order is still waiting for funds.
func (s *ReconcileService) markAsMultiTokenPayment(ctx context.Context, order *entity.Order) error {
	if order.Status != entity.OrderStatusPending && order.Status != entity.OrderStatusAwaitingConfirmation {
		return nil
	}

	return s.updateOrderStatus(ctx, order, entity.OrderStatusMultiTokenPayment,
		"Multiple token payment received, the gateway dashboard can be used to refund balances", time.Now().UTC())
}

func retryActionIs(meta *entity.ReconcileMeta, action string) bool {
	return meta.RetryAction != nil && *meta.RetryAction == action
}

func dataSourceIs(meta *entity.ReconcileMeta, source string) bool {
	return meta.DataSource != nil && *meta.DataSource == source
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func clearTransientFields(meta *entity.ReconcileMeta) {
	meta.TransientError = entity.TriStateUnset
	meta.TransientErrorCode = nil
	meta.TransientErrorMsg = nil
	meta.RetryAction = nil
	meta.TransientErrorCount = 0
}
