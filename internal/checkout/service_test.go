package checkout_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-shop/internal/catalog"
	"github.com/noah-isme/backend-shop/internal/checkout"
	"github.com/noah-isme/backend-shop/internal/common"
	"github.com/noah-isme/backend-shop/internal/discount"
	"github.com/noah-isme/backend-shop/internal/lock"
	"github.com/noah-isme/backend-shop/internal/orderstore"
	"github.com/noah-isme/backend-shop/internal/paypal"
	"github.com/noah-isme/backend-shop/internal/pricing"
)

type priceTable map[int64]string

func (p priceTable) PriceLookup(_ context.Context, kind catalog.Kind, id int64) (catalog.PricedItem, error) {
	price, ok := p[id]
	if !ok || !kind.Valid() {
		return catalog.PricedItem{}, catalog.ErrNotFound
	}
	return catalog.PricedItem{Name: "item", UnitPrice: decimal.RequireFromString(price)}, nil
}

type fakeTokens struct {
	calls       int32
	invalidated int32
	err         error
}

func (f *fakeTokens) Invalidate() { atomic.AddInt32(&f.invalidated, 1) }

func (f *fakeTokens) Token(context.Context) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return "tok", nil
}

type fakeGateway struct {
	creates  int32
	captures int32
	total    decimal.Decimal
	id       string
	result   paypal.CaptureResult
	err      error
}

func (f *fakeGateway) CreateOrder(_ context.Context, _ string, total decimal.Decimal) (string, error) {
	atomic.AddInt32(&f.creates, 1)
	f.total = total
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func (f *fakeGateway) CaptureOrder(context.Context, string, string) (paypal.CaptureResult, error) {
	atomic.AddInt32(&f.captures, 1)
	if f.err != nil {
		return paypal.CaptureResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeGateway) Currency() string { return "EUR" }

type memOrders struct {
	created []*orderstore.Order
	updates []orderstore.Capture
	err     error
}

func (m *memOrders) Create(_ context.Context, o *orderstore.Order) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, o)
	return nil
}

func (m *memOrders) UpdateCapture(_ context.Context, remoteID string, c orderstore.Capture) (orderstore.Order, error) {
	m.updates = append(m.updates, c)
	for _, o := range m.created {
		if o.RemoteOrderID == remoteID {
			o.Status = c.Status
			return *o, nil
		}
	}
	return orderstore.Order{}, orderstore.ErrNotFound
}

func (m *memOrders) Get(context.Context, string) (orderstore.Order, error) {
	return orderstore.Order{}, orderstore.ErrNotFound
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]orderstore.Order, error) {
	out := []orderstore.Order{}
	for _, o := range m.created {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type fixture struct {
	svc     *checkout.Service
	tokens  *fakeTokens
	gateway *fakeGateway
	orders  *memOrders
}

func newFixture(t *testing.T, prices priceTable) *fixture {
	t.Helper()
	f := &fixture{
		tokens:  &fakeTokens{},
		gateway: &fakeGateway{id: "PP-1", result: paypal.CaptureResult{OK: true, Status: paypal.StatusCompleted}},
		orders:  &memOrders{},
	}
	svc, err := checkout.NewService(checkout.ServiceConfig{
		Pricing: pricing.NewEngine(prices, discount.NewEvaluator(nil)),
		Tokens:  f.tokens,
		Gateway: f.gateway,
		Orders:  f.orders,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func requireAppError(t *testing.T, err error, status int, message string) *common.AppError {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	require.Equal(t, status, appErr.HTTPStatus)
	require.Equal(t, message, appErr.Message)
	return appErr
}

func TestCreateOrderUsesServerComputedTotal(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	out, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{
		Items:        []byte(`[{"id":1,"kind":"product","qty":2,"price":0.01}]`),
		DiscountCode: "dev10",
	}, "user-1")
	require.NoError(t, err)
	require.Equal(t, "PP-1", out.ID)
	require.Equal(t, "18.00", out.Amounts.Total.String())
	require.True(t, f.gateway.total.Equal(decimal.NewFromInt(18)))

	require.Len(t, f.orders.created, 1)
	rec := f.orders.created[0]
	require.Equal(t, orderstore.StatusCreated, rec.Status)
	require.Equal(t, "user-1", *rec.UserID)
	require.Equal(t, "dev10", *rec.DiscountCode)
	require.Equal(t, "20.00", rec.Items[0].LineTotal.String())
}

func TestCreateOrderZeroTotalSkipsGateway(t *testing.T) {
	f := newFixture(t, priceTable{9: "0.00"})
	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{
		Items: []byte(`[{"id":9,"kind":"service","qty":3}]`),
	}, "")
	requireAppError(t, err, http.StatusBadRequest, "total must be greater than 0")
	require.Zero(t, atomic.LoadInt32(&f.tokens.calls))
	require.Zero(t, atomic.LoadInt32(&f.gateway.creates))
}

func TestCreateOrderDiscountToZeroSkipsGateway(t *testing.T) {
	f := newFixture(t, priceTable{2: "4.00"})
	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{
		Items: []byte(`[{"id":2,"kind":"product"}]`), DiscountCode: "SAVE5",
	}, "")
	requireAppError(t, err, http.StatusBadRequest, "total must be greater than 0")
	require.Zero(t, atomic.LoadInt32(&f.gateway.creates))
}

func TestCreateOrderPricingErrors(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	cases := map[string]string{
		`[]`:                            "empty cart",
		`[{"id":"x","kind":"product"}]`: "invalid item payload",
		`[{"id":7,"kind":"service"}]`:   "item not found: service 7",
	}
	for items, msg := range cases {
		_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{Items: []byte(items)}, "")
		appErr := requireAppError(t, err, http.StatusBadRequest, msg)
		require.Equal(t, common.CodeInvalidInput, appErr.Code)
	}
	require.Zero(t, atomic.LoadInt32(&f.gateway.creates))
}

func TestCreateOrderAuthFailure(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	f.tokens.err = paypal.ErrAuthNotConfigured
	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{Items: []byte(`[{"id":1,"kind":"product"}]`)}, "")
	appErr := requireAppError(t, err, http.StatusInternalServerError, "payment auth failed")
	require.Equal(t, common.CodePaymentAuthFailed, appErr.Code)
	require.Zero(t, atomic.LoadInt32(&f.gateway.creates))
}

func TestCreateOrderGatewayFailureCarriesDetails(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	f.gateway.err = &paypal.GatewayError{Op: "create_order", StatusCode: 422, Details: map[string]any{"name": "UNPROCESSABLE_ENTITY"}}
	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{Items: []byte(`[{"id":1,"kind":"product"}]`)}, "")
	appErr := requireAppError(t, err, http.StatusInternalServerError, "failed to create order")
	require.Equal(t, map[string]any{"name": "UNPROCESSABLE_ENTITY"}, appErr.Details)
	require.Empty(t, f.orders.created)
}

func TestCreateOrderPersistenceFailureStillSucceeds(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	f.orders.err = errors.New("db down")
	out, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{Items: []byte(`[{"id":1,"kind":"product"}]`)}, "")
	require.NoError(t, err)
	require.Equal(t, "PP-1", out.ID)
}

func TestCreateOrderSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gw := &ctxGateway{fakeGateway: f.gateway}
	svc, err := checkout.NewService(checkout.ServiceConfig{
		Pricing: pricing.NewEngine(priceTable{1: "10.00"}, nil),
		Tokens:  f.tokens,
		Gateway: gw,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, checkout.CreateOrderInput{Items: []byte(`[{"id":1,"kind":"product"}]`)}, "")
	require.NoError(t, err)
	require.NoError(t, gw.seen)
}

type ctxGateway struct {
	*fakeGateway
	seen error
}

func (g *ctxGateway) CreateOrder(ctx context.Context, token string, total decimal.Decimal) (string, error) {
	g.seen = ctx.Err()
	return g.fakeGateway.CreateOrder(ctx, token, total)
}

func TestCaptureOrderIncompleteIsNotAnError(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	f.gateway.result = paypal.CaptureResult{OK: false, Status: "PENDING", Details: map[string]any{"status": "PENDING"}}

	res, err := f.svc.CaptureOrder(context.Background(), checkout.CaptureInput{OrderID: "PP-1"})
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "PENDING", res.Status)
}

func TestCaptureOrderRequiresID(t *testing.T) {
	f := newFixture(t, priceTable{})
	_, err := f.svc.CaptureOrder(context.Background(), checkout.CaptureInput{OrderID: "  "})
	requireAppError(t, err, http.StatusBadRequest, "order_id required")
	require.Zero(t, atomic.LoadInt32(&f.tokens.calls))
}

func TestCaptureOrderUpdatesMirror(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{Items: []byte(`[{"id":1,"kind":"product"}]`)}, "u-1")
	require.NoError(t, err)

	amount := decimal.NewFromInt(10)
	f.gateway.result = paypal.CaptureResult{OK: true, Status: paypal.StatusCompleted, CaptureID: "CAP-1", Amount: &amount}
	res, err := f.svc.CaptureOrder(context.Background(), checkout.CaptureInput{OrderID: "PP-1"})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Len(t, f.orders.updates, 1)
	require.Equal(t, "CAP-1", f.orders.updates[0].CaptureID)
	require.Equal(t, paypal.StatusCompleted, f.orders.created[0].Status)

	orders, err := f.svc.ListOrders(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestCaptureOrderGatewayFailure(t *testing.T) {
	f := newFixture(t, priceTable{})
	f.gateway.err = &paypal.GatewayError{Op: "capture_order", Details: "connection refused", Err: errors.New("dial tcp")}
	_, err := f.svc.CaptureOrder(context.Background(), checkout.CaptureInput{OrderID: "PP-9"})
	appErr := requireAppError(t, err, http.StatusInternalServerError, "failed to capture order")
	require.Equal(t, "connection refused", appErr.Details)
	require.Empty(t, f.orders.updates)
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration, func(context.Context) error) error {
	return lock.ErrHeld
}

func TestCaptureOrderLockContention(t *testing.T) {
	f := newFixture(t, priceTable{})
	svc, err := checkout.NewService(checkout.ServiceConfig{
		Pricing: pricing.NewEngine(priceTable{}, nil),
		Tokens:  f.tokens,
		Gateway: f.gateway,
		Locker:  busyLocker{},
		LockTTL: time.Minute,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	start := time.Now()
	_, err = svc.CaptureOrder(context.Background(), checkout.CaptureInput{OrderID: "PP-1"})
	require.Less(t, time.Since(start), time.Second, "a held lock answers at once")
	appErr := requireAppError(t, err, http.StatusConflict, "capture already in progress")
	require.Equal(t, common.CodeConflict, appErr.Code)
	require.Zero(t, atomic.LoadInt32(&f.gateway.captures))
}

func TestGatewayUnauthorizedDropsCachedToken(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	f.gateway.err = &paypal.GatewayError{Op: "create_order", StatusCode: http.StatusUnauthorized, Details: map[string]any{"error": "invalid_token"}}
	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{Items: []byte(`[{"id":1,"kind":"product"}]`)}, "")
	requireAppError(t, err, http.StatusInternalServerError, "failed to create order")
	require.EqualValues(t, 1, atomic.LoadInt32(&f.tokens.invalidated))

	_, err = f.svc.CaptureOrder(context.Background(), checkout.CaptureInput{OrderID: "PP-1"})
	requireAppError(t, err, http.StatusInternalServerError, "failed to capture order")
	require.EqualValues(t, 2, atomic.LoadInt32(&f.tokens.invalidated))
}

func TestGatewayFailureKeepsCachedToken(t *testing.T) {
	f := newFixture(t, priceTable{1: "10.00"})
	f.gateway.err = &paypal.GatewayError{Op: "create_order", StatusCode: http.StatusUnprocessableEntity}
	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{Items: []byte(`[{"id":1,"kind":"product"}]`)}, "")
	require.Error(t, err)
	require.Zero(t, atomic.LoadInt32(&f.tokens.invalidated))
}

func TestNewServiceValidation(t *testing.T) {
	_, err := checkout.NewService(checkout.ServiceConfig{})
	require.Error(t, err)
	_, err = checkout.NewService(checkout.ServiceConfig{Pricing: pricing.NewEngine(priceTable{}, nil)})
	require.Error(t, err)
}
