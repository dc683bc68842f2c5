package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// WholesaleSaveTotal counts batch submissions by outcome.
	WholesaleSaveTotal *prometheus.CounterVec
	// StoreBatchTotal counts attribute store sub-batches by action and outcome.
	StoreBatchTotal *prometheus.CounterVec
	// StoreBatchLatency records sub-batch latency in milliseconds.
	StoreBatchLatency *prometheus.HistogramVec
	// DiscountEvaluationsTotal counts evaluator runs by outcome.
	DiscountEvaluationsTotal *prometheus.CounterVec
	// DiscountCandidatesTotal counts emitted discount candidates.
	DiscountCandidatesTotal prometheus.Counter
	// ComplianceWebhookTotal counts inbound compliance webhooks.
	ComplianceWebhookTotal *prometheus.CounterVec
	// ProductsCacheTotal counts product listing cache lookups.
	ProductsCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		WholesaleSaveTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wholesale_save_total",
			Help:      "Count of wholesale batch submissions by outcome.",
		}, []string{"result"}))
		StoreBatchTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attribute_store_batch_total",
			Help:      "Count of attribute store sub-batches by action and outcome.",
		}, []string{"action", "result"}))
		StoreBatchLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attribute_store_batch_duration_ms",
			Help:      "Latency for attribute store sub-batches in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"action"}))
		DiscountEvaluationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_evaluations_total",
			Help:      "Count of wholesale discount evaluations by outcome.",
		}, []string{"result"}))
		DiscountCandidatesTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_candidates_total",
			Help:      "Total number of wholesale discount candidates emitted.",
		}))
		ComplianceWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compliance_webhook_total",
			Help:      "Count of compliance webhooks by topic and outcome.",
		}, []string{"topic", "result"}))
		ProductsCacheTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_cache_total",
			Help:      "Count of product listing cache lookups by outcome.",
		}, []string{"result"}))
	})
}
