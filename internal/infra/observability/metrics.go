package observability

import (
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the marketplace API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration      *prometheus.HistogramVec
	externalErrors         *prometheus.CounterVec
	cacheHits              *prometheus.CounterVec
	cacheMisses            *prometheus.CounterVec
	certificationDecisions *prometheus.CounterVec
	checkouts              *prometheus.CounterVec
	webhookEvents          *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "selo_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selo_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selo_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selo_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		certificationDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selo_certification_decisions_total",
				Help: "Certification resolutions by outcome.",
			},
			[]string{"decision"},
		),
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selo_checkouts_total",
				Help: "Checkout attempts by result.",
			},
			[]string{"status"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selo_payment_webhooks_total",
				Help: "Payment webhook events by type and result.",
			},
			[]string{"type", "result"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrCertificationDecision counts an applied approve/reject.
func (m *Metrics) IncrCertificationDecision(state domain.CertificationState) {
	m.certificationDecisions.WithLabelValues(string(state)).Inc()
}

// IncrCheckout counts a checkout attempt ("completed", "conflict", "rejected").
func (m *Metrics) IncrCheckout(status string) {
	m.checkouts.WithLabelValues(status).Inc()
}

// IncrWebhook counts a webhook delivery by result ("processed", "duplicate",
// "stale", "refund_required", "ignored", "rejected", "failed").
func (m *Metrics) IncrWebhook(eventType, result string) {
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// GetMarketplaceSnapshot returns the counters behind GET /v1/admin/metrics.
func (m *Metrics) GetMarketplaceSnapshot() *domain.MarketplaceMetrics {
	hits := getCounterValue(m.cacheHits, "catalog")
	misses := getCounterValue(m.cacheMisses, "catalog")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.MarketplaceMetrics{
		CertificationsApproved: getCounterValue(m.certificationDecisions, string(domain.CertApproved)),
		CertificationsRejected: getCounterValue(m.certificationDecisions, string(domain.CertRejected)),
		CheckoutsCompleted:     getCounterValue(m.checkouts, "completed"),
		CheckoutsConflicted:    getCounterValue(m.checkouts, "conflict"),
		WebhooksProcessed:      sumCounter(m.webhookEvents, "result", "processed"),
		WebhooksRejected:       sumCounter(m.webhookEvents, "result", "rejected"),
		CatalogCacheHitRate:    hitRate,
		RegistryErrors:         getCounterValue(m.externalErrors, "registry"),
		Period:                 "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounter adds every series of cv whose label name equals value.
func sumCounter(cv *prometheus.CounterVec, name, value string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				total += m.Counter.GetValue()
			}
		}
	}
	return total
}
