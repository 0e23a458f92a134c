package service

import (
	"context"
	"sort"
	"time"

	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
	"github.com/vibast-solutions/ms-go-reconciler/app/repository"
	"github.com/vibast-solutions/ms-go-reconciler/config"
)

type fakeMetaRepo struct {
	metas map[uint64]*entity.ReconcileMeta
}

func newFakeMetaRepo() *fakeMetaRepo {
	return &fakeMetaRepo{metas: map[uint64]*entity.ReconcileMeta{}}
}

func (r *fakeMetaRepo) Create(_ context.Context, orderID uint64, now time.Time) error {
	if _, ok := r.metas[orderID]; ok {
		return repository.ErrMetaAlreadyExists
	}
	r.metas[orderID] = &entity.ReconcileMeta{OrderID: orderID, UpdatedAt: now}
	return nil
}

func (r *fakeMetaRepo) FindByOrderID(_ context.Context, orderID uint64) (*entity.ReconcileMeta, error) {
	item, ok := r.metas[orderID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeMetaRepo) Update(_ context.Context, meta *entity.ReconcileMeta) error {
	if _, ok := r.metas[meta.OrderID]; !ok {
		return repository.ErrMetaNotFound
	}
	copyItem := *meta
	r.metas[meta.OrderID] = &copyItem
	return nil
}

type fakeOrderRepo struct {
	orders map[uint64]*entity.Order
	metas  *fakeMetaRepo
}

func newFakeOrderRepo(metas *fakeMetaRepo) *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[uint64]*entity.Order{}, metas: metas}
}

func (r *fakeOrderRepo) put(order *entity.Order) {
	copyItem := *order
	r.orders[order.ID] = &copyItem
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uint64) (*entity.Order, error) {
	item, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeOrderRepo) FindOpenByID(ctx context.Context, id uint64) (*entity.Order, error) {
	item, err := r.FindByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	if !entity.OpenStatus(item.Status) {
		return nil, nil
	}
	return item, nil
}

func (r *fakeOrderRepo) ListUpdatedSince(_ context.Context, since, now time.Time, limit int32) ([]*entity.Order, error) {
	items := make([]*entity.Order, 0)
	for _, item := range r.orders {
		if item.Status != entity.OrderStatusCompleted && item.Status != entity.OrderStatusCanceled {
			continue
		}
		if !item.UpdatedAt.After(since) || item.UpdatedAt.After(now) {
			continue
		}
		meta, ok := r.metas.metas[item.ID]
		if !ok || meta.ProcessingCompleted == entity.TriStateYes {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.Before(items[j].UpdatedAt) })
	return capOrders(items, limit), nil
}

func (r *fakeOrderRepo) ListByStatus(_ context.Context, status int32, limit int32) ([]*entity.Order, error) {
	items := make([]*entity.Order, 0)
	for _, item := range r.orders {
		if item.Status != status {
			continue
		}
		meta, ok := r.metas.metas[item.ID]
		if !ok || meta.ProcessingCompleted == entity.TriStateYes {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return capOrders(items, limit), nil
}

func (r *fakeOrderRepo) ListByPaymentStatus(_ context.Context, status entity.PaymentStatus, limit int32) ([]*entity.Order, error) {
	items := make([]*entity.Order, 0)
	for _, item := range r.orders {
		meta, ok := r.metas.metas[item.ID]
		if !ok || meta.PaymentStatus != status || meta.ProcessingCompleted == entity.TriStateYes {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return capOrders(items, limit), nil
}

func (r *fakeOrderRepo) ListTransientError(_ context.Context, limit int32) ([]*entity.Order, error) {
	items := make([]*entity.Order, 0)
	for _, item := range r.orders {
		meta, ok := r.metas.metas[item.ID]
		if !ok {
			continue
		}
		if meta.TransientError != entity.TriStateYes {
			continue
		}
		if meta.HardError == entity.TriStateYes || meta.ProcessingCompleted == entity.TriStateYes {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return capOrders(items, limit), nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id uint64, newStatus int32, now time.Time) error {
	item, ok := r.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	item.Status = newStatus
	item.UpdatedAt = now
	return nil
}

func capOrders(items []*entity.Order, limit int32) []*entity.Order {
	if limit > 0 && int32(len(items)) > limit {
		return items[:limit]
	}
	return items
}

type fakeCursorRepo struct {
	cursor           entity.Cursor
	paymentCursorSet []time.Time
	orderCursorSet   []time.Time
}

func newFakeCursorRepo(at time.Time) *fakeCursorRepo {
	return &fakeCursorRepo{cursor: entity.Cursor{PaymentUpdatedAt: at, OrderUpdatedAt: at}}
}

func (r *fakeCursorRepo) Get(_ context.Context) (*entity.Cursor, error) {
	copyItem := r.cursor
	return &copyItem, nil
}

func (r *fakeCursorRepo) SetPaymentUpdatedAt(_ context.Context, t time.Time) error {
	r.cursor.PaymentUpdatedAt = t
	r.paymentCursorSet = append(r.paymentCursorSet, t)
	return nil
}

func (r *fakeCursorRepo) SetOrderUpdatedAt(_ context.Context, t time.Time) error {
	r.cursor.OrderUpdatedAt = t
	r.orderCursorSet = append(r.orderCursorSet, t)
	return nil
}

type fakeEventRepo struct {
	events []*entity.OrderEvent
}

func (r *fakeEventRepo) Create(_ context.Context, event *entity.OrderEvent) error {
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

type settleCall struct {
	id     string
	chain  string
	token  string
	amount string
}

type refundCall struct {
	id    string
	chain string
	token string
}

type fakeGateway struct {
	payments     map[string]*gateway.Payment
	paymentPages []*gateway.PaymentPage
	listErr      error

	operations     map[string]*gateway.Operation
	operationPages []*gateway.OperationPage

	tokens    []gateway.Token
	tokensErr error

	settleResult *gateway.Operation
	settleErr    error
	settleCalls  []settleCall

	refundResult *gateway.Operation
	refundErr    error
	refundCalls  []refundCall

	checkoutURL *gateway.CheckoutURL
	checkoutErr error

	validation  *gateway.CheckoutValidation
	validateErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:   map[string]*gateway.Payment{},
		operations: map[string]*gateway.Operation{},
	}
}

func (g *fakeGateway) ListPayments(_ context.Context, nextToken string, _ time.Time) (*gateway.PaymentPage, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	if len(g.paymentPages) == 0 {
		return &gateway.PaymentPage{}, nil
	}
	for i, page := range g.paymentPages {
		if nextToken == "" && i == 0 {
			return page, nil
		}
	}
	for i, page := range g.paymentPages {
		if i > 0 && g.paymentPages[i-1].NextToken == nextToken {
			return page, nil
		}
	}
	return &gateway.PaymentPage{}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*gateway.Payment, error) {
	item, ok := g.payments[id]
	if !ok {
		return nil, nil
	}
	return item, nil
}

func (g *fakeGateway) GetPaymentOperation(_ context.Context, id, txid string) (*gateway.Operation, error) {
	item, ok := g.operations[id+"/"+txid]
	if !ok {
		return &gateway.Operation{TxID: txid, Status: gateway.OperationStatusPending}, nil
	}
	return item, nil
}

func (g *fakeGateway) ListPaymentOperations(_ context.Context, _, nextToken string) (*gateway.OperationPage, error) {
	if len(g.operationPages) == 0 {
		return &gateway.OperationPage{}, nil
	}
	if nextToken == "" {
		return g.operationPages[0], nil
	}
	for i, page := range g.operationPages {
		if i > 0 && g.operationPages[i-1].NextToken == nextToken {
			return page, nil
		}
	}
	return &gateway.OperationPage{}, nil
}

func (g *fakeGateway) SettlePayment(_ context.Context, id, chain, token, amount string) (*gateway.Operation, error) {
	g.settleCalls = append(g.settleCalls, settleCall{id: id, chain: chain, token: token, amount: amount})
	if g.settleErr != nil {
		return nil, g.settleErr
	}
	if g.settleResult != nil {
		return g.settleResult, nil
	}
	return &gateway.Operation{TxID: "settle-tx-1"}, nil
}

func (g *fakeGateway) RefundPayment(_ context.Context, id, chain, token string) (*gateway.Operation, error) {
	g.refundCalls = append(g.refundCalls, refundCall{id: id, chain: chain, token: token})
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	if g.refundResult != nil {
		return g.refundResult, nil
	}
	return &gateway.Operation{TxID: "refund-tx-1"}, nil
}

func (g *fakeGateway) ListTokens(_ context.Context, currency string) ([]gateway.Token, error) {
	if g.tokensErr != nil {
		return nil, g.tokensErr
	}
	items := make([]gateway.Token, 0)
	for _, token := range g.tokens {
		if token.Currency == currency {
			items = append(items, token)
		}
	}
	return items, nil
}

func (g *fakeGateway) CreateCheckoutURL(_ context.Context, _ *gateway.CreateCheckoutURLInput) (*gateway.CheckoutURL, error) {
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	if g.checkoutURL != nil {
		return g.checkoutURL, nil
	}
	return &gateway.CheckoutURL{URL: "https://pay.example.com/checkout/abc"}, nil
}

func (g *fakeGateway) ValidateCheckout(_ context.Context, _ *gateway.ValidateCheckoutInput) (*gateway.CheckoutValidation, error) {
	if g.validateErr != nil {
		return nil, g.validateErr
	}
	if g.validation != nil {
		return g.validation, nil
	}
	return &gateway.CheckoutValidation{}, nil
}

type testEnv struct {
	svc    *ReconcileService
	orders *fakeOrderRepo
	metas  *fakeMetaRepo
	cursor *fakeCursorRepo
	events *fakeEventRepo
	gw     *fakeGateway
}

func newTestEnv(cursorAt time.Time) *testEnv {
	metas := newFakeMetaRepo()
	orders := newFakeOrderRepo(metas)
	cursor := newFakeCursorRepo(cursorAt)
	events := &fakeEventRepo{}
	gw := newFakeGateway()

	cfg := config.ReconcileConfig{
		CollisionWindow:    10 * time.Minute,
		ConfirmationCutoff: 24 * time.Hour,
		OperationDelay:     time.Millisecond,
		MaxRetryCount:      3,
		MaxPages:           5,
		JobBatchSize:       100,
	}

	return &testEnv{
		svc:    NewReconcileService(orders, metas, cursor, events, gw, cfg),
		orders: orders,
		metas:  metas,
		cursor: cursor,
		events: events,
		gw:     gw,
	}
}

func singleTokenPayment(network, chain, addr, balance string) *gateway.Payment {
	return &gateway.Payment{
		Addresses: map[string]map[string]gateway.Address{
			network: {chain: gateway.Address{Addr: "0xwallet"}},
		},
		Balances: map[string]map[string]map[string]gateway.BalanceEntry{
			network: {chain: {addr: gateway.BalanceEntry{Balance: balance}}},
		},
	}
}
