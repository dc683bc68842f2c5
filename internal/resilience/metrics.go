package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker metrics share the grosir namespace with the HTTP and pricing
// collectors. The target label names the upstream, e.g. shopify-admin.
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "grosir",
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Admin API breaker state per upstream: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grosir",
			Subsystem: "upstream",
			Name:      "breaker_transitions_total",
			Help:      "Admin API breaker state changes by from and to state",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grosir",
			Subsystem: "upstream",
			Name:      "breaker_opened_total",
			Help:      "Times the Admin API breaker tripped open, stopping attribute reads and writes",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
