package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker collectors, labelled by target ("paypal" in the API).
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current breaker state: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_transition_total",
		Help: "Breaker state transitions.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_open_total",
		Help: "Times a breaker opened.",
	}, []string{"target"})
)

func init() {
	RegisterMetrics(prometheus.DefaultRegisterer)
}

// RegisterMetrics adds the breaker collectors to reg. Registering the same
// collectors twice is a no-op.
func RegisterMetrics(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
}
