package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
	"github.com/vibast-solutions/ms-go-reconciler/app/repository"
	"github.com/vibast-solutions/ms-go-reconciler/config"
)

// The hosted page redirects back with a signed pipe-separated input whose
// fourth field is the amount the customer paid.
const checkoutPaidAmountField = 3

// CheckoutService is the storefront-facing half of the module: it hands
// orders to the gateway's hosted checkout page and records the signed
// redirect when the customer returns.
type CheckoutService struct {
	orderRepo orderRepository
	metaRepo  metaRepository
	eventRepo eventRepository
	gw        gatewayClient
	cfg       config.GatewayConfig
}

func NewCheckoutService(
	orderRepo orderRepository,
	metaRepo metaRepository,
	eventRepo eventRepository,
	gw gatewayClient,
	cfg config.GatewayConfig,
) *CheckoutService {
	return &CheckoutService{
		orderRepo: orderRepo,
		metaRepo:  metaRepo,
		eventRepo: eventRepo,
		gw:        gw,
		cfg:       cfg,
	}
}

// CreateCheckout registers the order with the gateway and returns the hosted
// page URL to redirect the customer to. The reconcile metadata row is
// created here so the sync jobs can pick the order up later.
func (s *CheckoutService) CreateCheckout(ctx context.Context, orderID uint64) (*gateway.CheckoutURL, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if err := s.metaRepo.Create(ctx, orderID, time.Now().UTC()); err != nil &&
		!errors.Is(err, repository.ErrMetaAlreadyExists) {
		return nil, err
	}

	id := strconv.FormatUint(orderID, 10)
	checkout, err := s.gw.CreateCheckoutURL(ctx, &gateway.CreateCheckoutURLInput{
		ID:              id,
		Currency:        order.Currency,
		Amount:          order.Total.String(),
		SuccessURL:      s.cfg.CheckoutSuccessURL + "?checkout_id=" + id,
		CancelURL:       s.cfg.CheckoutCancelURL,
		Base64Transform: true,
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("order_id", orderID).Info("checkout_created")
	return checkout, nil
}

// ConfirmCheckoutReturn verifies the signed redirect parameters with the
// gateway, then moves the order to awaiting confirmation when the paid
// amount covers the total. Underpayment leaves the order pending; funds are
// dealt with later by the sync jobs.
func (s *CheckoutService) ConfirmCheckoutReturn(ctx context.Context, orderID uint64, input *gateway.ValidateCheckoutInput) error {
	log := logrus.WithField("order_id", orderID)

	validation, err := s.gw.ValidateCheckout(ctx, input)
	if err != nil {
		return err
	}
	if !validation.Valid {
		log.Warn("checkout_validation_rejected")
		return ErrCheckoutRejected
	}

	if len(validation.InputFields) <= checkoutPaidAmountField {
		log.Warn("checkout_validation_short_input")
		return ErrCheckoutRejected
	}
	paid, err := decimal.NewFromString(validation.InputFields[checkoutPaidAmountField])
	if err != nil {
		log.WithError(err).Warn("checkout_validation_bad_amount")
		return ErrCheckoutRejected
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}

	if paid.LessThan(order.Total) {
		log.WithField("paid", paid.String()).Info("checkout_partial_payment")
		return nil
	}
	if order.Status != entity.OrderStatusPending {
		return nil
	}

	now := time.Now().UTC()
	if err := s.orderRepo.UpdateStatus(ctx, orderID, entity.OrderStatusAwaitingConfirmation, now); err != nil {
		return err
	}

	oldStatus := order.Status
	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   orderID,
		OldStatus: &oldStatus,
		NewStatus: entity.OrderStatusAwaitingConfirmation,
		Comment:   "Checkout completed, awaiting payment confirmation",
		CreatedAt: now,
	})

	log.Info("checkout_confirmed")
	return nil
}
