package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-shop/internal/app"
	"github.com/noah-isme/backend-shop/internal/common"
	"github.com/noah-isme/backend-shop/internal/config"
	"github.com/noah-isme/backend-shop/internal/health"
	"github.com/noah-isme/backend-shop/internal/obs"
	"github.com/noah-isme/backend-shop/internal/ratelimit"
	"github.com/noah-isme/backend-shop/internal/security"
)

func newRouter(cfg *config.Config, deps *app.Dependencies, h apiHandlers, logger zerolog.Logger) (http.Handler, error) {
	loginLimit, err := ratelimit.NewFixedWindow(ratelimit.FixedConfig{
		Rate:   cfg.LoginRateLimit,
		Prefix: "ratelimit:auth",
		Redis:  deps.Redis,
		OnError: func(err error) {
			logger.Error().Err(err).Msg("auth rate limiter")
		},
	})
	if err != nil {
		return nil, err
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "rl:checkout:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ClientRouteKey,
			Window: cfg.CheckoutRateWindow,
			Max:    cfg.CheckoutRateLimit,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("checkout rate limiter unavailable")
		},
	}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		httpMetrics := obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, cfg.Obs.MetricsBuckets, nil)
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", security.CSRFHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: len(cfg.CORSAllowedOrigins) > 0,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		Enable:     true,
		EnableHSTS: cfg.AppEnv == "production",
		HSTSMaxAge: 31536000,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(security.CSRF{SessionCookie: cfg.AccessCookieName}.Middleware)

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: deps, Redis: deps.Redis},
		DBTimeout:    cfg.Obs.HealthDBTimeout,
		RedisTimeout: cfg.Obs.HealthRedisTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/products", h.Catalog.Products)
		api.Get("/services", h.Catalog.Services)
		api.Get("/discounts/validate", h.Discount.Validate)

		api.Route("/paypal", func(p chi.Router) {
			p.Get("/config", h.Checkout.Config)
			p.Group(func(g chi.Router) {
				g.Use(checkoutLimit.Middleware)
				g.Use(h.AuthMW.Authenticate)
				g.With(idem.Middleware).Post("/create-order", h.Checkout.CreateOrder)
				g.Post("/capture-order", h.Checkout.CaptureOrder)
			})
		})

		api.With(h.AuthMW.RequireAuth).Get("/orders", h.Checkout.Orders)

		api.Route("/auth", func(a chi.Router) {
			a.With(loginLimit).Post("/register", h.Auth.Register)
			a.With(loginLimit).Post("/login", h.Auth.Login)
			a.With(h.AuthMW.RequireAuth).Get("/me", h.Auth.Me)
		})
	})

	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// newPprofMux registers pprof under its default paths. Index also serves the
// named profiles such as heap and goroutine.
func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// protectPprof requires basic auth when a user is configured.
func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "unauthorised", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
