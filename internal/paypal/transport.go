package paypal

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-shop/internal/resilience"
)

// TransportConfig shapes the outbound HTTP stack shared by TokenCache and Client.
type TransportConfig struct {
	Timeout        time.Duration
	BreakerMinReqs int
	BreakerRatio   float64
	BreakerOpenFor time.Duration
	Logger         zerolog.Logger
}

// NewTransport returns a single-attempt resilience client with a circuit
// breaker and traced transport. Server errors are reported to the caller
// with their body intact.
func NewTransport(cfg TransportConfig) resilience.HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breaker := resilience.NewBreaker(cfg.BreakerMinReqs, cfg.BreakerRatio, cfg.BreakerOpenFor).
		WithTarget("paypal").
		WithLogger(cfg.Logger)
	return resilience.HTTPClient{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker:     breaker,
		MaxAttempts: 1,
		Timeout:     timeout,
	}
}
