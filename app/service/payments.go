package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
)

// RunPaymentSyncBatch pulls payments modified at the gateway since the last
// run and applies the received funds to their orders. Payment IDs double as
// order IDs, so every page entry maps straight to a local order.
func (s *ReconcileService) RunPaymentSyncBatch(ctx context.Context) error {
	cursor, err := s.cursorRepo.Get(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	var maxSeen int64

	nextToken := ""
	for page := 0; page < s.cfg.MaxPages; page++ {
		result, err := s.gw.ListPayments(ctx, nextToken, cursor.PaymentUpdatedAt)
		if err != nil {
			return keepFirstErr(firstErr, err)
		}

		for i := range result.Results {
			payment := &result.Results[i]
			orderID, err := strconv.ParseUint(payment.ID, 10, 64)
			if err != nil {
				logrus.WithField("payment_id", payment.ID).Warn("payment_sync_bad_payment_id")
				continue
			}
			if err := s.syncPayment(ctx, payment, orderID, entity.DataSourcePaymentSync); err != nil {
				firstErr = keepFirstErr(firstErr, err)
				continue
			}
			if payment.UpdatedAt > maxSeen {
				maxSeen = payment.UpdatedAt
			}
		}

		nextToken = result.NextToken
		if nextToken == "" {
			break
		}
	}

	if maxSeen > 0 {
		err := s.cursorRepo.SetPaymentUpdatedAt(ctx, time.Unix(maxSeen+1, 0).UTC())
		firstErr = keepFirstErr(firstErr, err)
	}

	return firstErr
}

// syncPayment applies one gateway payment to its order: record the deposit
// addresses, walk the guard chain, resolve the effective token balance and
// flip the order to processing once the received amount covers the total.
func (s *ReconcileService) syncPayment(ctx context.Context, payment *gateway.Payment, orderID uint64, dataSource string) error {
	log := logrus.WithField("order_id", orderID).WithField("data_source", dataSource)

	order, err := s.orderRepo.FindOpenByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}

	meta, err := s.metaRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if meta == nil {
		now := time.Now().UTC()
		if err := s.metaRepo.Create(ctx, orderID, now); err != nil {
			return err
		}
		meta = &entity.ReconcileMeta{OrderID: orderID, UpdatedAt: now}
	}

	if meta.HardError == entity.TriStateYes {
		log.Info("sync_payment_skip_hard_error")
		return nil
	}
	if meta.TransientError == entity.TriStateYes && !retryActionIs(meta, entity.RetryActionSyncPayment) {
		log.WithField("retry_action", stringValue(meta.RetryAction)).Info("sync_payment_skip_retry_action_mismatch")
		return nil
	}
	if meta.ProcessingCompleted == entity.TriStateYes {
		log.Info("sync_payment_skip_completed")
		return nil
	}
	if meta.PaymentStatus.BlocksPaymentSync() {
		log.WithField("payment_status", meta.PaymentStatus.String()).Info("sync_payment_skip_operation_state")
		return nil
	}

	if dataSource == entity.DataSourcePaymentSync &&
		dataSourceIs(meta, entity.DataSourceOrderSync) &&
		time.Now().UTC().Sub(order.UpdatedAt) < s.cfg.CollisionWindow {
		log.Info("sync_payment_collision_deferred")
		return s.classifier.RecordTransient(ctx, orderID, entity.RetryActionSyncPayment, codePaymentSyncCollision,
			"order sync touched this order recently, deferring")
	}

	if err := s.storeAddresses(ctx, meta, payment); err != nil {
		return err
	}

	balances, err := s.ResolveBalance(ctx, order, payment)
	if err != nil {
		if errors.Is(err, ErrMultiTokenPayment) {
			return s.markAsMultiTokenPayment(ctx, order)
		}
		log.WithError(err).Warn("sync_payment_balance_failed")
		return nil
	}
	if len(balances) == 0 {
		return nil
	}

	if balances[0].Balance.LessThan(order.Total) {
		log.WithField("balance", balances[0].Balance.String()).Info("sync_payment_partial_amount")
		return nil
	}

	now := time.Now().UTC()
	err = s.updateOrderStatus(ctx, order, entity.OrderStatusProcessing,
		"Payment received in temporary wallet, complete the order to settle", now)
	if err != nil {
		return err
	}

	source := dataSource
	meta.PaymentStatus = entity.PaymentStatusReceived
	meta.ProcessingCompleted = entity.TriStateNo
	meta.DataSource = &source
	meta.UpdatedAt = now
	if err := s.metaRepo.Update(ctx, meta); err != nil {
		return err
	}

	log.Info("payment_received")
	return nil
}

// storeAddresses persists the payment's per-chain deposit addresses so the
// order can be inspected without another gateway round trip.
func (s *ReconcileService) storeAddresses(ctx context.Context, meta *entity.ReconcileMeta, payment *gateway.Payment) error {
	if payment == nil || len(payment.Addresses) == 0 {
		return nil
	}

	raw, err := json.Marshal(payment.Addresses)
	if err != nil {
		return err
	}

	encoded := string(raw)
	if meta.AddressesJSON != nil && *meta.AddressesJSON == encoded {
		return nil
	}

	meta.AddressesJSON = &encoded
	meta.UpdatedAt = time.Now().UTC()
	return s.metaRepo.Update(ctx, meta)
}
