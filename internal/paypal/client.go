package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-shop/internal/obs"
)

// Remote order statuses reported by PayPal.
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
)

// GatewayError reports a non-success response or transport failure from PayPal.
// Details holds the provider payload (decoded JSON or raw text) or the
// transport error message.
type GatewayError struct {
	Op         string
	StatusCode int
	Details    any
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("paypal %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("paypal %s: unexpected status %d", e.Op, e.StatusCode)
	default:
		return "paypal " + e.Op + ": failed"
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// CaptureResult is the outcome of a capture call that reached PayPal.
type CaptureResult struct {
	OK      bool   `json:"ok"`
	Status  string `json:"status"`
	Details any    `json:"details"`
	// CaptureID and Amount come from the first purchase unit capture when present.
	CaptureID string           `json:"-"`
	Amount    *decimal.Decimal `json:"-"`
}

// ClientConfig wires a Client.
type ClientConfig struct {
	BaseURL  string
	Currency string
	HTTP     Doer
}

// Client calls the v2 checkout order endpoints. One attempt per call.
type Client struct {
	baseURL  string
	currency string
	http     Doer
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	doer := cfg.HTTP
	if doer == nil {
		doer = StdDoer{Client: &http.Client{Timeout: 30 * time.Second}}
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "EUR"
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		currency: currency,
		http:     doer,
	}
}

// Currency returns the settlement currency code.
func (c *Client) Currency() string { return c.currency }

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount amount `json:"amount"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

// CreateOrder opens a remote order for total in the configured currency and
// returns its identifier.
func (c *Client) CreateOrder(ctx context.Context, token string, total decimal.Decimal) (string, error) {
	payload := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount: amount{CurrencyCode: c.currency, Value: total.StringFixed(2)},
		}},
	}
	body, err := c.call(ctx, "create_order", token, c.baseURL+"/v2/checkout/orders", payload)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", &GatewayError{Op: "create_order", Details: decodeDetails(body), Err: errors.New("response missing order id")}
	}
	return out.ID, nil
}

// CaptureOrder captures a previously approved remote order. Statuses other
// than COMPLETED or APPROVED yield OK=false rather than an error.
func (c *Client) CaptureOrder(ctx context.Context, token, orderID string) (CaptureResult, error) {
	endpoint := c.baseURL + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	body, err := c.call(ctx, "capture_order", token, endpoint, struct{}{})
	if err != nil {
		return CaptureResult{}, err
	}
	var out captureResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return CaptureResult{}, &GatewayError{Op: "capture_order", Details: decodeDetails(body), Err: err}
	}
	res := CaptureResult{
		OK:      out.Status == StatusCompleted || out.Status == StatusApproved,
		Status:  out.Status,
		Details: decodeDetails(body),
	}
	res.CaptureID, res.Amount = out.firstCapture()
	return res, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount amount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (r captureResponse) firstCapture() (string, *decimal.Decimal) {
	for _, pu := range r.PurchaseUnits {
		for _, capture := range pu.Payments.Captures {
			if capture.ID == "" {
				continue
			}
			if v, err := decimal.NewFromString(capture.Amount.Value); err == nil {
				return capture.ID, &v
			}
			return capture.ID, nil
		}
	}
	return "", nil
}

func (c *Client) call(ctx context.Context, op, token, endpoint string, payload any) ([]byte, error) {
	ctx, span := otel.Tracer("paypal.Client").Start(ctx, "PayPal."+op)
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("paypal.operation", op), attribute.String("paypal.result", result))
		if obs.GatewayRequestDuration != nil {
			obs.GatewayRequestDuration.WithLabelValues(op, result).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, &GatewayError{Op: op, Details: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Details: err.Error(), Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		details := decodeDetails(body)
		if details == nil {
			details = resp.Status
		}
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Details: details}
	}
	result = "ok"
	return body, nil
}
