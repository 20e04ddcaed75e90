package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics implements the Metrics interface using Prometheus, reporting
// only the built-in pipeline metrics every transport shares.
type metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	publishTotal      *prometheus.CounterVec
	consumeTotal      *prometheus.CounterVec
	deadletterTotal   *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	cacheCreatedTotal *prometheus.CounterVec
}

// prometheusCounter wraps a Prometheus counter.
type prometheusCounter struct {
	counter prometheus.Counter
}

// prometheusHistogram wraps a Prometheus histogram observer.
type prometheusHistogram struct {
	observer prometheus.Observer
}

// prometheusTimer implements the Timer interface.
type prometheusTimer struct {
	start time.Time
	obs   prometheus.Observer
}

// NewMetrics creates a new metrics instance.
func NewMetrics(config MetricsConfig) (Metrics, error) {
	if !config.Enabled {
		return &noopMetrics{}, nil
	}

	m := &metrics{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	m.initializeBuiltinMetrics()

	return m, nil
}

// initializeBuiltinMetrics registers the metrics every transport reports
// through on the shared pipeline: publish, consume, dead-letter, dispatch
// latency, and client-cache creation.
func (m *metrics) initializeBuiltinMetrics() {
	namespace := m.config.Namespace
	subsystem := m.config.Subsystem

	m.publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "publish_total",
			Help:      "Total number of events handed to a transport for publish.",
		},
		[]string{"transport", "event", "outcome"},
	)
	m.registry.MustRegister(m.publishTotal)

	m.consumeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "consume_total",
			Help:      "Total number of messages run through the consume pipeline, by decision.",
		},
		[]string{"transport", "event", "consumer", "decision"},
	)
	m.registry.MustRegister(m.consumeTotal)

	m.deadletterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deadletter_total",
			Help:      "Total number of messages moved to a dead-letter destination.",
		},
		[]string{"transport", "event", "consumer"},
	)
	m.registry.MustRegister(m.deadletterTotal)

	m.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running a consumer's Consume method.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"transport", "event", "consumer"},
	)
	m.registry.MustRegister(m.dispatchDuration)

	m.cacheCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_cache_created_total",
			Help:      "Total number of times the single-flight client cache had to create a new client.",
		},
		[]string{"transport"},
	)
	m.registry.MustRegister(m.cacheCreatedTotal)
}

// PublishTotal returns the publish-outcome counter for one transport/event/outcome triple.
func (m *metrics) PublishTotal(transport, event, outcome string) Counter {
	return &prometheusCounter{counter: m.publishTotal.WithLabelValues(transport, event, outcome)}
}

// ConsumeTotal returns the consume-decision counter for one transport/event/consumer/decision quad.
func (m *metrics) ConsumeTotal(transport, event, consumer, decision string) Counter {
	return &prometheusCounter{counter: m.consumeTotal.WithLabelValues(transport, event, consumer, decision)}
}

// DeadletterTotal returns the dead-letter counter for one transport/event/consumer triple.
func (m *metrics) DeadletterTotal(transport, event, consumer string) Counter {
	return &prometheusCounter{counter: m.deadletterTotal.WithLabelValues(transport, event, consumer)}
}

// DispatchDuration returns the dispatch-latency histogram for one transport/event/consumer triple.
func (m *metrics) DispatchDuration(transport, event, consumer string) Histogram {
	return &prometheusHistogram{observer: m.dispatchDuration.WithLabelValues(transport, event, consumer)}
}

// CacheCreatedTotal returns the client-cache-miss counter for one transport.
func (m *metrics) CacheCreatedTotal(transport string) Counter {
	return &prometheusCounter{counter: m.cacheCreatedTotal.WithLabelValues(transport)}
}

func (c *prometheusCounter) Inc()              { c.counter.Inc() }
func (c *prometheusCounter) Add(value float64) { c.counter.Add(value) }

func (h *prometheusHistogram) Observe(value float64) { h.observer.Observe(value) }
func (h *prometheusHistogram) Timer() Timer {
	return &prometheusTimer{start: time.Now(), obs: h.observer}
}

func (t *prometheusTimer) ObserveDuration() { t.obs.Observe(time.Since(t.start).Seconds()) }

// noopMetrics is used when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) PublishTotal(transport, event, outcome string) Counter { return &noopCounter{} }
func (n *noopMetrics) ConsumeTotal(transport, event, consumer, decision string) Counter {
	return &noopCounter{}
}
func (n *noopMetrics) DeadletterTotal(transport, event, consumer string) Counter {
	return &noopCounter{}
}
func (n *noopMetrics) DispatchDuration(transport, event, consumer string) Histogram {
	return &noopHistogram{}
}
func (n *noopMetrics) CacheCreatedTotal(transport string) Counter { return &noopCounter{} }

type noopCounter struct{}

func (n *noopCounter) Inc()              {}
func (n *noopCounter) Add(value float64) {}

type noopHistogram struct{}

func (n *noopHistogram) Observe(value float64) {}
func (n *noopHistogram) Timer() Timer          { return &noopTimer{} }

type noopTimer struct{}

func (n *noopTimer) ObserveDuration() {}
