package traversal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/orneryd/nornictrav/pkg/traversal")

// Merge outcomes recorded by Metrics.
const (
	outcomeMatched = "matched"
	outcomeCreated = "created"
	outcomeFailed  = "failed"
)

// Metrics holds the Prometheus collectors of the traversal engine. A nil
// *Metrics records nothing.
type Metrics struct {
	mergeTotal       *prometheus.CounterVec
	mergeDuration    *prometheus.HistogramVec
	mergeEvents      *prometheus.CounterVec
	strategyTotal    *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		mergeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_total",
			Help:      "Merge step executions by element kind and outcome",
		}, []string{"kind", "outcome"}),
		mergeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Merge step latency per traverser",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14), // 50us to ~400ms
		}, []string{"kind"}),
		mergeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_events_total",
			Help:      "Mutation events emitted by merge steps",
		}, []string{"kind", "event"}),
		strategyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_applications_total",
			Help:      "Strategy applications by strategy and result",
		}, []string{"strategy", "result"}),
		strategyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Strategy application latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12), // 10us to ~20ms
		}, []string{"strategy"}),
	}
}

func (m *Metrics) observeMerge(kind, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.mergeTotal.WithLabelValues(kind, outcome).Inc()
	m.mergeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) countEvent(kind, name string) {
	if m == nil {
		return
	}
	m.mergeEvents.WithLabelValues(kind, name).Inc()
}

func (m *Metrics) observeStrategy(name string, err error, start time.Time) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.strategyTotal.WithLabelValues(name, result).Inc()
	m.strategyDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
