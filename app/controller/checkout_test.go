package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
	"github.com/vibast-solutions/ms-go-reconciler/app/service"
	"github.com/vibast-solutions/ms-go-reconciler/app/types"
	"github.com/vibast-solutions/ms-go-reconciler/config"
)

type controllerOrderRepo struct {
	findByIDFn     func(ctx context.Context, id uint64) (*entity.Order, error)
	updateStatusFn func(ctx context.Context, id uint64, newStatus int32, now time.Time) error
}

func (r *controllerOrderRepo) FindByID(ctx context.Context, id uint64) (*entity.Order, error) {
	if r.findByIDFn != nil {
		return r.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (r *controllerOrderRepo) FindOpenByID(ctx context.Context, id uint64) (*entity.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *controllerOrderRepo) ListUpdatedSince(_ context.Context, _, _ time.Time, _ int32) ([]*entity.Order, error) {
	return nil, nil
}

func (r *controllerOrderRepo) ListByStatus(_ context.Context, _ int32, _ int32) ([]*entity.Order, error) {
	return nil, nil
}

func (r *controllerOrderRepo) ListByPaymentStatus(_ context.Context, _ entity.PaymentStatus, _ int32) ([]*entity.Order, error) {
	return nil, nil
}

func (r *controllerOrderRepo) ListTransientError(_ context.Context, _ int32) ([]*entity.Order, error) {
	return nil, nil
}

func (r *controllerOrderRepo) UpdateStatus(ctx context.Context, id uint64, newStatus int32, now time.Time) error {
	if r.updateStatusFn != nil {
		return r.updateStatusFn(ctx, id, newStatus, now)
	}
	return nil
}

type controllerMetaRepo struct{}

func (r *controllerMetaRepo) Create(_ context.Context, _ uint64, _ time.Time) error { return nil }

func (r *controllerMetaRepo) FindByOrderID(_ context.Context, _ uint64) (*entity.ReconcileMeta, error) {
	return nil, nil
}

func (r *controllerMetaRepo) Update(_ context.Context, _ *entity.ReconcileMeta) error { return nil }

type controllerEventRepo struct{}

func (r *controllerEventRepo) Create(_ context.Context, _ *entity.OrderEvent) error { return nil }

type controllerGateway struct {
	checkoutURL *gateway.CheckoutURL
	checkoutErr error
	validation  *gateway.CheckoutValidation
	validateErr error
}

func (g *controllerGateway) ListPayments(_ context.Context, _ string, _ time.Time) (*gateway.PaymentPage, error) {
	return &gateway.PaymentPage{}, nil
}

func (g *controllerGateway) GetPayment(_ context.Context, _ string) (*gateway.Payment, error) {
	return nil, nil
}

func (g *controllerGateway) GetPaymentOperation(_ context.Context, _, _ string) (*gateway.Operation, error) {
	return &gateway.Operation{}, nil
}

func (g *controllerGateway) ListPaymentOperations(_ context.Context, _, _ string) (*gateway.OperationPage, error) {
	return &gateway.OperationPage{}, nil
}

func (g *controllerGateway) SettlePayment(_ context.Context, _, _, _, _ string) (*gateway.Operation, error) {
	return &gateway.Operation{}, nil
}

func (g *controllerGateway) RefundPayment(_ context.Context, _, _, _ string) (*gateway.Operation, error) {
	return &gateway.Operation{}, nil
}

func (g *controllerGateway) ListTokens(_ context.Context, _ string) ([]gateway.Token, error) {
	return nil, nil
}

func (g *controllerGateway) CreateCheckoutURL(_ context.Context, _ *gateway.CreateCheckoutURLInput) (*gateway.CheckoutURL, error) {
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	if g.checkoutURL != nil {
		return g.checkoutURL, nil
	}
	return &gateway.CheckoutURL{URL: "https://pay.example.com/checkout/abc"}, nil
}

func (g *controllerGateway) ValidateCheckout(_ context.Context, _ *gateway.ValidateCheckoutInput) (*gateway.CheckoutValidation, error) {
	if g.validateErr != nil {
		return nil, g.validateErr
	}
	if g.validation != nil {
		return g.validation, nil
	}
	return &gateway.CheckoutValidation{}, nil
}

func newTestController(orders *controllerOrderRepo, gw *controllerGateway) *CheckoutController {
	checkoutService := service.NewCheckoutService(orders, &controllerMetaRepo{}, &controllerEventRepo{}, gw, config.GatewayConfig{
		CheckoutSuccessURL: "https://store.example.com/checkout/complete",
		CheckoutCancelURL:  "https://store.example.com/cart",
	})
	return NewCheckoutController(checkoutService)
}

func pendingOrder(id uint64, total string) *entity.Order {
	now := time.Now().UTC()
	return &entity.Order{
		ID:        id,
		Total:     decimal.RequireFromString(total),
		Currency:  "USD",
		Status:    entity.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func performRequest(c *CheckoutController, method, target, body string, handler func(echo.Context) error) *httptest.ResponseRecorder {
	e := echo.New()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	_ = handler(ctx)
	return rec
}

func TestHealth(t *testing.T) {
	c := newTestController(&controllerOrderRepo{}, &controllerGateway{})

	rec := performRequest(c, http.MethodGet, "/health", "", c.Health)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body types.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("unexpected health status: %s", body.Status)
	}
}

func TestCreateCheckoutReturnsURL(t *testing.T) {
	orders := &controllerOrderRepo{
		findByIDFn: func(_ context.Context, id uint64) (*entity.Order, error) {
			return pendingOrder(id, "25.50"), nil
		},
	}
	c := newTestController(orders, &controllerGateway{})

	rec := performRequest(c, http.MethodPost, "/checkout", `{"order_id":7}`, c.CreateCheckout)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body: %s", rec.Code, rec.Body.String())
	}
	var body types.CheckoutURLResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.URL == "" {
		t.Fatal("expected a checkout url")
	}
}

func TestCreateCheckoutRejectsMissingOrderID(t *testing.T) {
	c := newTestController(&controllerOrderRepo{}, &controllerGateway{})

	rec := performRequest(c, http.MethodPost, "/checkout", `{}`, c.CreateCheckout)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestCreateCheckoutUnknownOrderIs404(t *testing.T) {
	c := newTestController(&controllerOrderRepo{}, &controllerGateway{})

	rec := performRequest(c, http.MethodPost, "/checkout", `{"order_id":42}`, c.CreateCheckout)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestCompleteCheckoutConfirms(t *testing.T) {
	var updatedTo int32
	orders := &controllerOrderRepo{
		findByIDFn: func(_ context.Context, id uint64) (*entity.Order, error) {
			return pendingOrder(id, "25.50"), nil
		},
		updateStatusFn: func(_ context.Context, _ uint64, newStatus int32, _ time.Time) error {
			updatedTo = newStatus
			return nil
		},
	}
	gw := &controllerGateway{validation: &gateway.CheckoutValidation{
		Valid:       true,
		InputFields: []string{"7", "USD", "ethereum", "25.50", "1700000000"},
	}}
	c := newTestController(orders, gw)

	target := "/checkout/complete?id=7&hmac_alg=HMAC-SHA256&hmac_input=abc&hmac_keyId=key-1&hmac_value=sig"
	rec := performRequest(c, http.MethodGet, target, "", c.CompleteCheckout)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body: %s", rec.Code, rec.Body.String())
	}
	if updatedTo != entity.OrderStatusAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %d", updatedTo)
	}
}

func TestCompleteCheckoutRejectedSignatureIs400(t *testing.T) {
	orders := &controllerOrderRepo{
		findByIDFn: func(_ context.Context, id uint64) (*entity.Order, error) {
			return pendingOrder(id, "25.50"), nil
		},
	}
	gw := &controllerGateway{validation: &gateway.CheckoutValidation{Valid: false}}
	c := newTestController(orders, gw)

	target := "/checkout/complete?id=7&hmac_alg=HMAC-SHA256&hmac_input=abc&hmac_keyId=key-1&hmac_value=sig"
	rec := performRequest(c, http.MethodGet, target, "", c.CompleteCheckout)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestCompleteCheckoutMissingParamsIs400(t *testing.T) {
	c := newTestController(&controllerOrderRepo{}, &controllerGateway{})

	rec := performRequest(c, http.MethodGet, "/checkout/complete?id=7", "", c.CompleteCheckout)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
