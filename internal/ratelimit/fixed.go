package ratelimit

import (
	"fmt"
	"net/http"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-shop/internal/common"
	"github.com/noah-isme/backend-shop/internal/obs"
)

// FixedConfig configures a fixed-window limiter such as the one guarding login.
type FixedConfig struct {
	// Rate uses the limiter format, e.g. "10-M" for ten requests per minute.
	Rate   string
	Prefix string
	// Redis is optional; without it counters live in process memory.
	Redis   *redis.Client
	OnError func(error)
}

// NewFixedWindow builds a per-client-IP middleware on top of ulule/limiter.
// Unlike Handler it fails closed when the store errors.
func NewFixedWindow(cfg FixedConfig) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", cfg.Rate, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit:fixed"
	}

	var store limiter.Store
	if cfg.Redis != nil {
		store, err = limiterredis.NewStoreWithOptions(cfg.Redis, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix})
	}

	mw := stdlib.NewMiddleware(
		limiter.New(store, rate),
		stdlib.WithKeyGetter(common.ClientIP),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			obs.IncCounter(obs.RateLimitedTotal, routeName(r))
			common.JSONError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			if cfg.OnError != nil {
				cfg.OnError(err)
			}
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "rate limiter unavailable", nil)
		}),
	)
	return mw.Handler, nil
}
