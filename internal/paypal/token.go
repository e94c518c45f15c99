// Package paypal talks to the PayPal REST API: OAuth2 client-credential
// exchange and the v2 checkout order endpoints.
package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/backend-shop/internal/obs"
)

// refreshMargin is how long before expiry a cached token stops being handed out.
const refreshMargin = 60 * time.Second

// ErrAuthNotConfigured is returned when client id or secret are empty.
var ErrAuthNotConfigured = errors.New("paypal: client credentials not configured")

// AuthError reports a failed client-credentials exchange.
type AuthError struct {
	StatusCode int
	Details    any
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paypal: token exchange failed with status %d", e.StatusCode)
	}
	if e.Err != nil {
		return "paypal: token exchange failed: " + e.Err.Error()
	}
	return "paypal: token exchange failed"
}

func (e *AuthError) Unwrap() error { return e.Err }

// Doer sends an HTTP request. resilience.HTTPClient and *http.Client adapters satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// StdDoer adapts a plain *http.Client.
type StdDoer struct{ Client *http.Client }

// Do sends req with ctx attached.
func (d StdDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req.WithContext(ctx))
}

// TokenCacheConfig wires a TokenCache.
type TokenCacheConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTP         Doer
	Now          func() time.Time
}

// TokenCache holds one bearer credential and refreshes it shortly before it
// expires. Concurrent refreshes share a single exchange.
type TokenCache struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         Doer
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache constructs a TokenCache. Missing credentials are not an error
// here; Token reports ErrAuthNotConfigured instead.
func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	doer := cfg.HTTP
	if doer == nil {
		doer = StdDoer{Client: &http.Client{Timeout: 30 * time.Second}}
	}
	return &TokenCache{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		http:         doer,
		now:          now,
	}
}

// Configured reports whether client credentials are present.
func (c *TokenCache) Configured() bool {
	return c != nil && c.clientID != "" && c.clientSecret != ""
}

// Token returns a bearer token valid for at least refreshMargin.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrAuthNotConfigured
	}
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	v, err, _ := c.group.Do("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call performs an exchange.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-refreshMargin)) {
		return c.token, true
	}
	return "", false
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	ctx, span := otel.Tracer("paypal.TokenCache").Start(ctx, "PayPal.Token")
	defer span.End()

	result := "error"
	defer func() { obs.IncCounter(obs.GatewayTokenRefreshTotal, result) }()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := c.now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", &AuthError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{StatusCode: resp.StatusCode, Details: decodeDetails(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if payload.AccessToken == "" {
		return "", &AuthError{Err: errors.New("empty access_token")}
	}

	c.mu.Lock()
	c.token = payload.AccessToken
	c.expiresAt = issuedAt.Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.mu.Unlock()
	result = "ok"
	return payload.AccessToken, nil
}

// decodeDetails returns the body as decoded JSON when possible, else as text.
func decodeDetails(body []byte) any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	return trimmed
}
