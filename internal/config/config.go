package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/backend-shop/internal/obs"
)

// PayPal environments.
const (
	PayPalSandbox = "sandbox"
	PayPalLive    = "live"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string `validate:"required"`
	Port               string
	DatabaseURL        string `validate:"required"`
	RedisURL           string
	JWTSecret          string `validate:"required"`
	JWTIssuer          string
	JWTAudience        string
	AccessTokenTTL     time.Duration `validate:"gt=0"`
	CORSAllowedOrigins []string
	MigrateOnStart     bool

	LogFormat string `validate:"oneof=json console text"`
	LogLevel  string
	Obs       ObsConfig

	AccessCookieName string
	CookieDomain     string
	CookieSecure     bool
	CookieSameSite   http.SameSite

	PayPal PayPalConfig

	CatalogCacheTTL    time.Duration
	IdempotencyTTL     time.Duration
	CaptureLockTTL     time.Duration `validate:"gt=0"`
	CheckoutRateLimit  int           `validate:"gte=0"`
	CheckoutRateWindow time.Duration
	LoginRateLimit     string
	BodyLimitBytes     int64 `validate:"gte=0"`
	ShutdownTimeout    time.Duration
}

// ObsConfig toggles metrics, tracing and profiling.
type ObsConfig struct {
	MetricsEnabled     bool
	MetricsNamespace   string
	MetricsBuckets     []float64
	TracingEnabled     bool
	TracingExporter    string  `validate:"oneof=otlp none"`
	OTLPEndpoint       string
	SamplingRatio      float64 `validate:"gte=0,lte=1"`
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string
	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
}

// PayPalConfig configures the payment gateway integration. Missing
// credentials are not a startup error: the config endpoint and token
// exchange report them per request instead.
type PayPalConfig struct {
	ClientID       string
	ClientSecret   string
	Env            string `validate:"oneof=sandbox live"`
	Currency       string `validate:"len=3,uppercase"`
	BaseURL        string `validate:"omitempty,url"`
	Timeout        time.Duration `validate:"gt=0"`
	BreakerMinReqs int           `validate:"gte=1"`
	BreakerRatio   float64       `validate:"gt=0,lte=1"`
	BreakerOpenFor time.Duration `validate:"gt=0"`
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "backend-shop"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "shop-frontend"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		LogFormat:          strings.ToLower(valueOrDefault(k.String("OBS_LOG_FORMAT"), "json")),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		Obs: ObsConfig{
			MetricsEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "shop"),
			MetricsBuckets:     obs.ParseBucketsCSV(k.String("OBS_METRICS_BUCKETS_MS")),
			TracingEnabled:     parseBool(k.String("OBS_ENABLE_TRACING")),
			TracingExporter:    strings.ToLower(valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp")),
			OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:      parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			PprofEnabled:       parseBool(k.String("OBS_ENABLE_PPROF")),
			PprofUser:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
			HealthDBTimeout:    parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
			HealthRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		},
		AccessCookieName:   strings.TrimSpace(k.String("ACCESS_COOKIE_NAME")),
		CookieDomain:       strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:     parseSameSite(k.String("COOKIE_SAMESITE")),
		PayPal: PayPalConfig{
			ClientID:       strings.TrimSpace(k.String("PAYPAL_CLIENT_ID")),
			ClientSecret:   strings.TrimSpace(k.String("PAYPAL_CLIENT_SECRET")),
			Env:            strings.ToLower(valueOrDefault(k.String("PAYPAL_ENV"), PayPalSandbox)),
			Currency:       strings.ToUpper(valueOrDefault(k.String("PAYPAL_CURRENCY"), "EUR")),
			BaseURL:        strings.TrimRight(strings.TrimSpace(k.String("PAYPAL_BASE_URL")), "/"),
			Timeout:        parseDuration(k.String("PAYPAL_TIMEOUT"), "30s"),
			BreakerMinReqs: parseInt(k.String("PAYPAL_BREAKER_MIN_REQUESTS"), 5),
			BreakerRatio:   parseFloat(k.String("PAYPAL_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor: parseDuration(k.String("PAYPAL_BREAKER_OPEN_FOR"), "30s"),
		},
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CaptureLockTTL:     parseDuration(k.String("CAPTURE_LOCK_TTL"), "45s"),
		CheckoutRateLimit:  parseInt(k.String("CHECKOUT_RATE_LIMIT"), 30),
		CheckoutRateWindow: parseDuration(k.String("CHECKOUT_RATE_WINDOW"), "1m"),
		LoginRateLimit:     valueOrDefault(k.String("LOGIN_RATE_LIMIT"), "10-M"),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// UsesSQLite reports whether DatabaseURL points at an embedded SQLite file.
func (c *Config) UsesSQLite() bool {
	return strings.HasPrefix(c.DatabaseURL, "sqlite://") || strings.HasPrefix(c.DatabaseURL, "file:")
}

// SQLitePath strips the sqlite:// scheme from DatabaseURL.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}

// GatewayBaseURL resolves the PayPal REST base URL for the configured environment.
func (p PayPalConfig) GatewayBaseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	if p.Env == PayPalLive {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
