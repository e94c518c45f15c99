package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutOrdersTotal counts checkout operations by outcome.
	CheckoutOrdersTotal *prometheus.CounterVec
	// CheckoutAmountTotal sums priced order totals handed to the gateway, per currency.
	CheckoutAmountTotal *prometheus.CounterVec
	// GatewayRequestDuration records payment gateway latency in milliseconds.
	GatewayRequestDuration *prometheus.HistogramVec
	// GatewayTokenRefreshTotal counts bearer credential exchanges.
	GatewayTokenRefreshTotal *prometheus.CounterVec
	// CatalogCacheTotal counts catalog listing cache lookups.
	CatalogCacheTotal *prometheus.CounterVec
	// RateLimitedTotal counts requests rejected by a rate limiter, per route.
	RateLimitedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutOrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Count of checkout create/capture outcomes.",
		}, []string{"operation", "result"})
		CheckoutAmountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_amount_total",
			Help:      "Sum of order totals submitted to the payment gateway.",
		}, []string{"currency"})
		GatewayRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_ms",
			Help:      "Latency of payment gateway calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"operation", "result"})
		GatewayTokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_token_refresh_total",
			Help:      "Count of gateway credential exchanges by outcome.",
		}, []string{"result"})
		CatalogCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Catalog listing cache lookups by result.",
		}, []string{"kind", "result"})
		RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429.",
		}, []string{"route"})

		CheckoutOrdersTotal = registerOrReuse(reg, CheckoutOrdersTotal)
		CheckoutAmountTotal = registerOrReuse(reg, CheckoutAmountTotal)
		GatewayRequestDuration = registerOrReuse(reg, GatewayRequestDuration)
		GatewayTokenRefreshTotal = registerOrReuse(reg, GatewayTokenRefreshTotal)
		CatalogCacheTotal = registerOrReuse(reg, CatalogCacheTotal)
		RateLimitedTotal = registerOrReuse(reg, RateLimitedTotal)
	})
}

// IncCounter increments vec when it has been registered. Packages call it so
// they keep working in tests that never register domain metrics.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
