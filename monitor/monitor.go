// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/session"
)

const accepted = "ACCEPTED"

type Metrics struct {
	ActiveSessions    prometheus.Gauge
	OpenStreams       prometheus.Gauge
	Moves             *prometheus.CounterVec
	Updates           *prometheus.CounterVec
	Merges            *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
	WebhookLatency    prometheus.Histogram
	RequestLatency    *prometheus.HistogramVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions in the registry",
		}),
		OpenStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_streams",
			Help:      "Number of connected websocket watchers",
		}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Placements evaluated, by rules and outcome",
		}, []string{"rules", "outcome"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_published_total",
			Help:      "Session updates published, by type",
		}, []string{"type"}),
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Remote snapshots merged, by whether they applied",
		}, []string{"applied"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries, by payload kind and result",
		}, []string{"kind", "result"}),
		WebhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_latency_seconds",
			Help:      "Webhook round trip latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency, by route",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.OpenStreams,
		m.Moves,
		m.Updates,
		m.Merges,
		m.WebhookDeliveries,
		m.WebhookLatency,
		m.RequestLatency,
	)

	return m
}

// Monitor owns a metrics registry and records session activity. It
// implements session.Recorder.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

var publishOnce sync.Once

func NewMonitor(namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Monitor{
		metrics:   NewMetrics(namespace, registry),
		registry:  registry,
		startTime: time.Now(),
	}

	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})
	return m
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// VarsHandler serves the expvar variables.
func (m *Monitor) VarsHandler() http.Handler {
	return expvar.Handler()
}

func (m *Monitor) MoveRecorded(rules string, violation game.Violation) {
	outcome := accepted
	if violation != "" {
		outcome = violation.Code()
	}
	m.metrics.Moves.WithLabelValues(rules, outcome).Inc()
}

func (m *Monitor) UpdatePublished(kind session.UpdateType) {
	m.metrics.Updates.WithLabelValues(string(kind)).Inc()
}

func (m *Monitor) Merged(applied bool) {
	label := "false"
	if applied {
		label = "true"
	}
	m.metrics.Merges.WithLabelValues(label).Inc()
}

func (m *Monitor) SetActiveSessions(count int) {
	m.metrics.ActiveSessions.Set(float64(count))
}

func (m *Monitor) IncOpenStreams() {
	m.metrics.OpenStreams.Inc()
}

func (m *Monitor) DecOpenStreams() {
	m.metrics.OpenStreams.Dec()
}

// WebhookDelivered records one delivery attempt of kind.
func (m *Monitor) WebhookDelivered(kind string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.metrics.WebhookDeliveries.WithLabelValues(kind, result).Inc()
	m.metrics.WebhookLatency.Observe(duration.Seconds())
}

func (m *Monitor) ObserveRequest(route string, duration time.Duration) {
	m.metrics.RequestLatency.WithLabelValues(route).Observe(duration.Seconds())
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}
