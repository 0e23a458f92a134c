package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
	"github.com/vibast-solutions/ms-go-reconciler/config"
)

const defaultBatchSize = int32(100)

type orderRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Order, error)
	FindOpenByID(ctx context.Context, id uint64) (*entity.Order, error)
	ListUpdatedSince(ctx context.Context, since, now time.Time, limit int32) ([]*entity.Order, error)
	ListByStatus(ctx context.Context, status int32, limit int32) ([]*entity.Order, error)
	ListByPaymentStatus(ctx context.Context, status entity.PaymentStatus, limit int32) ([]*entity.Order, error)
	ListTransientError(ctx context.Context, limit int32) ([]*entity.Order, error)
	UpdateStatus(ctx context.Context, id uint64, newStatus int32, now time.Time) error
}

type metaRepository interface {
	Create(ctx context.Context, orderID uint64, now time.Time) error
	FindByOrderID(ctx context.Context, orderID uint64) (*entity.ReconcileMeta, error)
	Update(ctx context.Context, meta *entity.ReconcileMeta) error
}

type cursorRepository interface {
	Get(ctx context.Context) (*entity.Cursor, error)
	SetPaymentUpdatedAt(ctx context.Context, t time.Time) error
	SetOrderUpdatedAt(ctx context.Context, t time.Time) error
}

type eventRepository interface {
	Create(ctx context.Context, event *entity.OrderEvent) error
}

type gatewayClient interface {
	ListPayments(ctx context.Context, nextToken string, startAt time.Time) (*gateway.PaymentPage, error)
	GetPayment(ctx context.Context, id string) (*gateway.Payment, error)
	GetPaymentOperation(ctx context.Context, id, txid string) (*gateway.Operation, error)
	ListPaymentOperations(ctx context.Context, id, nextToken string) (*gateway.OperationPage, error)
	SettlePayment(ctx context.Context, id, chain, token, amount string) (*gateway.Operation, error)
	RefundPayment(ctx context.Context, id, chain, token string) (*gateway.Operation, error)
	ListTokens(ctx context.Context, currency string) ([]gateway.Token, error)
	CreateCheckoutURL(ctx context.Context, input *gateway.CreateCheckoutURLInput) (*gateway.CheckoutURL, error)
	ValidateCheckout(ctx context.Context, input *gateway.ValidateCheckoutInput) (*gateway.CheckoutValidation, error)
}

// ReconcileService drives the three reconciliation jobs plus the checkout
// surface. Jobs are safe to re-run: every mutating step re-checks the
// metadata guard flags before acting.
type ReconcileService struct {
	orderRepo  orderRepository
	metaRepo   metaRepository
	cursorRepo cursorRepository
	eventRepo  eventRepository
	gw         gatewayClient
	classifier *Classifier
	cfg        config.ReconcileConfig
}

func NewReconcileService(
	orderRepo orderRepository,
	metaRepo metaRepository,
	cursorRepo cursorRepository,
	eventRepo eventRepository,
	gw gatewayClient,
	cfg config.ReconcileConfig,
) *ReconcileService {
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 3
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 25
	}

	return &ReconcileService{
		orderRepo:  orderRepo,
		metaRepo:   metaRepo,
		cursorRepo: cursorRepo,
		eventRepo:  eventRepo,
		gw:         gw,
		classifier: NewClassifier(metaRepo, cfg.MaxRetryCount),
		cfg:        cfg,
	}
}

// Classifier exposes the error classifier for callers that need direct
// access, such as the retry command's escalation pass.
func (s *ReconcileService) Classifier() *Classifier {
	return s.classifier
}

func (s *ReconcileService) batchSize() int32 {
	if s.cfg.JobBatchSize > 0 {
		return s.cfg.JobBatchSize
	}
	return defaultBatchSize
}

// updateOrderStatus transitions the order and appends the history entry in
// one place, the only path that mutates order status.
func (s *ReconcileService) updateOrderStatus(ctx context.Context, order *entity.Order, newStatus int32, comment string, now time.Time) error {
	if err := s.orderRepo.UpdateStatus(ctx, order.ID, newStatus, now); err != nil {
		return err
	}

	oldStatus := order.Status
	order.Status = newStatus
	order.UpdatedAt = now

	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   order.ID,
		OldStatus: &oldStatus,
		NewStatus: newStatus,
		Comment:   comment,
		CreatedAt: now,
	})

	return nil
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
