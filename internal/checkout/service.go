package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-shop/internal/catalog"
	"github.com/noah-isme/backend-shop/internal/common"
	"github.com/noah-isme/backend-shop/internal/lock"
	"github.com/noah-isme/backend-shop/internal/money"
	"github.com/noah-isme/backend-shop/internal/obs"
	"github.com/noah-isme/backend-shop/internal/orderstore"
	"github.com/noah-isme/backend-shop/internal/paypal"
	"github.com/noah-isme/backend-shop/internal/pricing"
)

// Pricer values a raw cart.
type Pricer interface {
	Quote(ctx context.Context, raw []byte, code string) (pricing.Quote, error)
}

// TokenSource yields a gateway bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Gateway creates and captures remote orders.
type Gateway interface {
	CreateOrder(ctx context.Context, token string, total decimal.Decimal) (string, error)
	CaptureOrder(ctx context.Context, token, orderID string) (paypal.CaptureResult, error)
	Currency() string
}

// Locker runs fn only if the key is free, returning lock.ErrHeld otherwise.
// lock.Locker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// tokenInvalidator is implemented by token sources that cache credentials.
type tokenInvalidator interface {
	Invalidate()
}

// CreateOrderInput is the create-order request body.
type CreateOrderInput struct {
	Items        json.RawMessage `json:"items"`
	DiscountCode string          `json:"discount_code"`
}

// CreateOrderOutput returns the remote order id and the amounts it was opened for.
type CreateOrderOutput struct {
	ID      string                  `json:"id"`
	Amounts pricing.AmountBreakdown `json:"amounts"`
}

// CaptureInput is the capture-order request body.
type CaptureInput struct {
	OrderID string `json:"order_id"`
}

// ServiceConfig wires a Service. Orders and Locker are optional.
type ServiceConfig struct {
	Pricing Pricer
	Tokens  TokenSource
	Gateway Gateway
	Orders  orderstore.Store
	Locker  Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// Service prices carts server-side and drives the remote order through
// create and capture.
type Service struct {
	pricing Pricer
	tokens  TokenSource
	gateway Gateway
	orders  orderstore.Store
	locker  Locker
	lockTTL time.Duration
	logger  zerolog.Logger
}

// NewService validates cfg and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Pricing == nil {
		return nil, errors.New("checkout: pricing engine is required")
	}
	if cfg.Tokens == nil || cfg.Gateway == nil {
		return nil, errors.New("checkout: gateway is required")
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	return &Service{
		pricing: cfg.Pricing,
		tokens:  cfg.Tokens,
		gateway: cfg.Gateway,
		orders:  cfg.Orders,
		locker:  cfg.Locker,
		lockTTL: ttl,
		logger:  cfg.Logger,
	}, nil
}

// Currency is the settlement currency of the gateway.
func (s *Service) Currency() string { return s.gateway.Currency() }

// CreateOrder prices the cart, opens a remote order for the computed total and
// records it locally. userID may be empty for guest checkouts.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput, userID string) (CreateOrderOutput, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout.CreateOrder")
	defer span.End()
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("checkout.result", result))
		obs.IncCounter(obs.CheckoutOrdersTotal, "create", result)
	}()

	quote, err := s.pricing.Quote(ctx, in.Items, in.DiscountCode)
	if err != nil {
		result = "invalid"
		return CreateOrderOutput{}, pricingError(err)
	}
	amounts := quote.Amounts
	if !amounts.Total.IsPositive() {
		result = "invalid"
		return CreateOrderOutput{}, common.BadRequest("total must be greater than 0", nil)
	}

	// Gateway work continues even if the client goes away.
	gwCtx := context.WithoutCancel(ctx)
	token, err := s.tokens.Token(gwCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("paypal token exchange failed")
		return CreateOrderOutput{}, authError(err)
	}
	remoteID, err := s.gateway.CreateOrder(gwCtx, token, amounts.Total.Decimal)
	if err != nil {
		s.logger.Warn().Err(err).Interface("details", gatewayDetails(err)).Msg("paypal create order failed")
		s.dropRejectedToken(err)
		return CreateOrderOutput{}, gatewayError("failed to create order", err)
	}
	span.SetAttributes(attribute.String("paypal.order_id", remoteID), attribute.String("checkout.total", amounts.Total.String()))

	s.record(gwCtx, remoteID, userID, quote)
	if obs.CheckoutAmountTotal != nil {
		obs.CheckoutAmountTotal.WithLabelValues(s.gateway.Currency()).Add(amounts.Total.InexactFloat64())
	}
	result = "ok"
	return CreateOrderOutput{ID: remoteID, Amounts: amounts}, nil
}

// record stores the local mirror. Failures are logged only; the remote order
// already exists and the gateway stays authoritative for payment state.
func (s *Service) record(ctx context.Context, remoteID, userID string, quote pricing.Quote) {
	if s.orders == nil {
		return
	}
	order := &orderstore.Order{
		RemoteOrderID: remoteID,
		Status:        orderstore.StatusCreated,
		Currency:      s.gateway.Currency(),
		Subtotal:      quote.Amounts.Subtotal,
		Discount:      quote.Amounts.Discount,
		Total:         quote.Amounts.Total,
		Items:         make([]orderstore.Item, 0, len(quote.Lines)),
	}
	if userID != "" {
		order.UserID = &userID
	}
	if code := strings.TrimSpace(quote.DiscountCode); code != "" && quote.Amounts.Discount.IsPositive() {
		order.DiscountCode = &code
	}
	for _, line := range quote.Lines {
		order.Items = append(order.Items, orderstore.Item{
			Kind:      line.Kind,
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: money.New(line.UnitPrice),
			Quantity:  line.Quantity,
			LineTotal: money.New(money.Round(line.LineTotal)),
		})
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.Error().Err(err).Str("paypal_order_id", remoteID).Msg("persist checkout order failed")
	}
}

// CaptureOrder captures the remote order. A capture that reaches the gateway
// but does not complete is reported with OK=false, not as an error.
func (s *Service) CaptureOrder(ctx context.Context, in CaptureInput) (res paypal.CaptureResult, err error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout.CaptureOrder")
	defer span.End()
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("checkout.result", result))
		obs.IncCounter(obs.CheckoutOrdersTotal, "capture", result)
	}()

	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		result = "invalid"
		return paypal.CaptureResult{}, common.BadRequest("order_id required", nil)
	}
	span.SetAttributes(attribute.String("paypal.order_id", orderID))

	gwCtx := context.WithoutCancel(ctx)
	token, err := s.tokens.Token(gwCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("paypal token exchange failed")
		return paypal.CaptureResult{}, authError(err)
	}

	capture := func(ctx context.Context) error {
		var cerr error
		res, cerr = s.gateway.CaptureOrder(ctx, token, orderID)
		return cerr
	}
	if err := s.withCaptureLock(gwCtx, orderID, capture); err != nil {
		return paypal.CaptureResult{}, err
	}

	s.updateMirror(gwCtx, orderID, res)
	if res.OK {
		result = "ok"
	} else {
		result = "incomplete"
	}
	return res, nil
}

func (s *Service) withCaptureLock(ctx context.Context, orderID string, capture func(context.Context) error) error {
	if s.locker == nil {
		if err := capture(ctx); err != nil {
			return s.captureFailed(orderID, err)
		}
		return nil
	}
	ran := false
	var captureErr error
	err := s.locker.TryLock(ctx, "checkout:capture:"+orderID, s.lockTTL, func(ctx context.Context) error {
		ran = true
		captureErr = capture(ctx)
		return captureErr
	})
	if ran {
		if captureErr != nil {
			return s.captureFailed(orderID, captureErr)
		}
		return nil
	}
	if errors.Is(err, lock.ErrHeld) {
		return common.NewAppError(common.CodeConflict, "capture already in progress", http.StatusConflict, err)
	}
	s.logger.Error().Err(err).Str("paypal_order_id", orderID).Msg("capture lock failed")
	return common.NewAppError(common.CodeInternal, "failed to capture order", http.StatusInternalServerError, err)
}

func (s *Service) captureFailed(orderID string, err error) error {
	s.dropRejectedToken(err)
	s.logger.Warn().Err(err).Str("paypal_order_id", orderID).Interface("details", gatewayDetails(err)).Msg("paypal capture failed")
	return gatewayError("failed to capture order", err)
}

func (s *Service) updateMirror(ctx context.Context, orderID string, res paypal.CaptureResult) {
	if s.orders == nil {
		return
	}
	order, err := s.orders.UpdateCapture(ctx, orderID, orderstore.Capture{
		Status:    res.Status,
		CaptureID: res.CaptureID,
		Amount:    res.Amount,
	})
	switch {
	case errors.Is(err, orderstore.ErrNotFound):
		s.logger.Debug().Str("paypal_order_id", orderID).Msg("captured order has no local record")
		return
	case err != nil:
		s.logger.Error().Err(err).Str("paypal_order_id", orderID).Msg("update checkout order failed")
		return
	}
	if res.Amount != nil && !res.Amount.Equal(order.Total.Decimal) {
		s.logger.Warn().
			Str("paypal_order_id", orderID).
			Str("expected", order.Total.String()).
			Str("captured", res.Amount.StringFixed(2)).
			Msg("captured amount differs from order total")
	}
}

// dropRejectedToken forgets the cached token when the gateway refused it, so
// the next request exchanges credentials again instead of reusing a revoked
// token until it expires.
func (s *Service) dropRejectedToken(err error) {
	var gwErr *paypal.GatewayError
	if !errors.As(err, &gwErr) || gwErr.StatusCode != http.StatusUnauthorized {
		return
	}
	if inv, ok := s.tokens.(tokenInvalidator); ok {
		inv.Invalidate()
		s.logger.Warn().Str("op", gwErr.Op).Msg("paypal rejected cached token")
	}
}

// ListOrders returns the orders recorded for userID.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]orderstore.Order, error) {
	if s.orders == nil {
		return []orderstore.Order{}, nil
	}
	return s.orders.ListByUser(ctx, userID)
}

func pricingError(err error) error {
	var notFound *pricing.ItemNotFoundError
	switch {
	case errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, pricing.ErrInvalidItem),
		errors.As(err, &notFound),
		errors.Is(err, catalog.ErrNotFound):
		return common.BadRequest(err.Error(), err)
	default:
		return common.NewAppError(common.CodeInternal, "failed to price cart", http.StatusInternalServerError, err)
	}
}

func authError(err error) error {
	appErr := common.NewAppError(common.CodePaymentAuthFailed, "payment auth failed", http.StatusInternalServerError, err)
	var authErr *paypal.AuthError
	if errors.As(err, &authErr) && authErr.Details != nil {
		return appErr.WithDetails(authErr.Details)
	}
	return appErr.WithDetails(err.Error())
}

func gatewayError(message string, err error) error {
	return common.NewAppError(common.CodeGateway, message, http.StatusInternalServerError, err).WithDetails(gatewayDetails(err))
}

func gatewayDetails(err error) any {
	var gwErr *paypal.GatewayError
	if errors.As(err, &gwErr) && gwErr.Details != nil {
		return gwErr.Details
	}
	return err.Error()
}
