package sink

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibrandiay/chronicle/pkg/chronicle"
)

type moduleMetrics struct {
	recordsTotal      *prometheus.CounterVec
	recordErrorsTotal *prometheus.CounterVec
	forwardDuration   *prometheus.HistogramVec
	timeSetTotal      *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			recordsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chronicle_records_total",
					Help: "Total records forwarded to the sink by kind.",
				},
				[]string{"kind"},
			),
			recordErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chronicle_record_errors_total",
					Help: "Total record forwarding failures by kind.",
				},
				[]string{"kind"},
			),
			forwardDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chronicle_forward_duration_seconds",
					Help:    "Record forwarding latency in seconds by kind.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind"},
			),
			timeSetTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chronicle_time_set_total",
					Help: "Total timeline coordinate updates by timeline.",
				},
				[]string{"timeline"},
			),
		}

		prometheus.MustRegister(
			m.recordsTotal,
			m.recordErrorsTotal,
			m.forwardDuration,
			m.timeSetTotal,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered registers the module's metrics with the default
// Prometheus registry. Safe to call from multiple constructors.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler returns the HTTP handler serving the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Instrumented wraps another sink with Prometheus metrics for record counts,
// failures, forwarding latency, and timeline updates.
type Instrumented struct {
	next chronicle.Sink
}

// NewInstrumented wraps a sink with metrics.
func NewInstrumented(next chronicle.Sink) *Instrumented {
	EnsureRegistered()
	return &Instrumented{next: next}
}

func (in *Instrumented) Init(applicationID string, spawnViewer bool) error {
	return in.next.Init(applicationID, spawnViewer)
}

func (in *Instrumented) Persist(path string) error {
	return in.next.Persist(path)
}

func (in *Instrumented) SetTime(timeline string, cell chronicle.TimeCell) {
	getMetrics().timeSetTotal.WithLabelValues(timeline).Inc()
	in.next.SetTime(timeline, cell)
}

func (in *Instrumented) Log(path string, rec chronicle.Record) error {
	start := time.Now()
	err := in.next.Log(path, rec)

	m := getMetrics()
	kind := string(rec.Kind)
	m.forwardDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	m.recordsTotal.WithLabelValues(kind).Inc()
	if err != nil {
		m.recordErrorsTotal.WithLabelValues(kind).Inc()
	}
	return err
}

func (in *Instrumented) Close() error {
	return in.next.Close()
}
