package bserve

import (
	"context"
	"net/http"
	"time"

	"github.com/advdv/bssr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus collectors. Each app has its own registry.
type Metrics struct {
	registry *prometheus.Registry

	// Dispatches counts requests by how the bridge finalized them.
	Dispatches *prometheus.CounterVec
	// Duration records the time until the bridge decided the outcome.
	Duration *prometheus.HistogramVec
	// Reloads counts stack builds by result.
	Reloads *prometheus.CounterVec
	// Generation is the generation of the current stack.
	Generation prometheus.Gauge
}

// NewMetrics creates the collectors and registers them, together with the go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bssr_dispatch_total",
				Help: "Requests by dispatch outcome",
			},
			[]string{"outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bssr_stack_duration_seconds",
				Help:    "Time spent in the middleware stack",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bssr_stack_builds_total",
				Help: "Stack builds by result",
			},
			[]string{"result"},
		),
		Generation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bssr_stack_generation",
				Help: "Generation of the current stack",
			},
		),
	}

	m.registry.MustRegister(
		m.Dispatches,
		m.Duration,
		m.Reloads,
		m.Generation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type ctxKeyStart struct{}

// withStart records when the request entered the bridge, for the duration histogram.
func withStart(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyStart{}, time.Now())))
	})
}

// Observer returns the bridge observer that counts outcomes.
func (m *Metrics) Observer() bssr.Observer {
	return func(r *http.Request, o bssr.Outcome) {
		m.Dispatches.WithLabelValues(o.String()).Inc()

		if start, ok := r.Context().Value(ctxKeyStart{}).(time.Time); ok {
			m.Duration.WithLabelValues(o.String()).Observe(time.Since(start).Seconds())
		}
	}
}

// observeBuild records the result of a stack build.
func (m *Metrics) observeBuild(generation uint64, err error) {
	if err != nil {
		m.Reloads.WithLabelValues("failed").Inc()
		return
	}

	m.Reloads.WithLabelValues("ok").Inc()
	m.Generation.Set(float64(generation))
}
