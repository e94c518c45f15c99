package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-shop/internal/app"
	"github.com/noah-isme/backend-shop/internal/auth"
	"github.com/noah-isme/backend-shop/internal/catalog"
	"github.com/noah-isme/backend-shop/internal/checkout"
	"github.com/noah-isme/backend-shop/internal/config"
	"github.com/noah-isme/backend-shop/internal/discount"
	"github.com/noah-isme/backend-shop/internal/health"
	"github.com/noah-isme/backend-shop/internal/lock"
	"github.com/noah-isme/backend-shop/internal/obs"
	"github.com/noah-isme/backend-shop/internal/paypal"
	"github.com/noah-isme/backend-shop/internal/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	if cfg.Obs.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "shop-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.Obs.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := app.Open(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	handlers, err := buildHandlers(cfg, deps, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise handlers")
	}
	router, err := newRouter(cfg, deps, handlers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

// apiHandlers holds the HTTP handlers mounted by newRouter.
type apiHandlers struct {
	Catalog  *catalog.Handler
	Discount discount.Handler
	Checkout *checkout.Handler
	Auth     *auth.Handler
	AuthMW   auth.Middleware
}

func buildHandlers(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) (apiHandlers, error) {
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store:  deps.Catalog,
		Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Logger: logger,
	})
	if err != nil {
		return apiHandlers{}, err
	}

	evaluator := discount.NewEvaluator(nil)
	engine := pricing.NewEngine(deps.Catalog, evaluator)

	transport := paypal.NewTransport(paypal.TransportConfig{
		Timeout:        cfg.PayPal.Timeout,
		BreakerMinReqs: cfg.PayPal.BreakerMinReqs,
		BreakerRatio:   cfg.PayPal.BreakerRatio,
		BreakerOpenFor: cfg.PayPal.BreakerOpenFor,
		Logger:         logger,
	})
	baseURL := cfg.PayPal.GatewayBaseURL()
	tokens := paypal.NewTokenCache(paypal.TokenCacheConfig{
		BaseURL:      baseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		HTTP:         transport,
	})
	if !tokens.Configured() {
		logger.Warn().Msg("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET not set: checkout will answer 500")
	}
	gateway := paypal.NewClient(paypal.ClientConfig{
		BaseURL:  baseURL,
		Currency: cfg.PayPal.Currency,
		HTTP:     transport,
	})

	var locker checkout.Locker
	if deps.Redis != nil {
		locker = lock.Locker{R: deps.Redis, Prefix: "lock:"}
	}
	checkoutService, err := checkout.NewService(checkout.ServiceConfig{
		Pricing: engine,
		Tokens:  tokens,
		Gateway: gateway,
		Orders:  deps.Orders,
		Locker:  locker,
		LockTTL: cfg.CaptureLockTTL,
		Logger:  logger,
	})
	if err != nil {
		return apiHandlers{}, err
	}

	authService, err := auth.NewService(auth.Config{
		Users:          deps.Users,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
	})
	if err != nil {
		return apiHandlers{}, err
	}

	return apiHandlers{
		Catalog:  catalog.NewHandler(catalog.HandlerConfig{Service: catalogService}),
		Discount: discount.Handler{Evaluator: evaluator},
		Checkout: &checkout.Handler{
			Svc: checkoutService,
			PayPal: checkout.PublicConfig{
				ClientID: cfg.PayPal.ClientID,
				Currency: gateway.Currency(),
				Env:      cfg.PayPal.Env,
			},
		},
		Auth: &auth.Handler{
			Service:          authService,
			AccessCookieName: cfg.AccessCookieName,
			CookieDomain:     cfg.CookieDomain,
			CookieSecure:     cfg.CookieSecure,
			CookieSameSite:   cfg.CookieSameSite,
		},
		AuthMW: auth.Middleware{Service: authService, AccessCookie: cfg.AccessCookieName},
	}, nil
}
