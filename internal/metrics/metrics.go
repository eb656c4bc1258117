// Package metrics exposes Prometheus metrics for runs, model fits and the
// HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records service metrics. A nil *Recorder records nothing.
type Recorder struct {
	runsTotal     *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   prometheus.Histogram
	fitsTotal     *prometheus.CounterVec
	gridTrials    *prometheus.CounterVec
	requestsTotal *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a Recorder registered with reg, or with the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serenity_runs_total",
				Help: "Total number of finished forecast runs",
			},
			[]string{"status"},
		),
		runsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "serenity_runs_in_progress",
				Help: "Number of forecast runs currently processing",
			},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "serenity_run_duration_seconds",
				Help:    "Duration of forecast runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
		fitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serenity_model_fits_total",
				Help: "Total number of model fits by outcome",
			},
			[]string{"model", "result"},
		),
		gridTrials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serenity_grid_trials_total",
				Help: "Total number of parameter combinations evaluated",
			},
			[]string{"model"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serenity_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serenity_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RunStarted marks a run as processing.
func (r *Recorder) RunStarted() {
	if r == nil {
		return
	}
	r.runsActive.Inc()
}

// RunFinished records the outcome and duration of a run.
func (r *Recorder) RunFinished(status string, seconds float64) {
	if r == nil {
		return
	}
	r.runsActive.Dec()
	r.runsTotal.WithLabelValues(status).Inc()
	r.runDuration.Observe(seconds)
}

// RecordFit records one model fit and the number of grid trials it took.
func (r *Recorder) RecordFit(model string, ok bool, trials int) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.fitsTotal.WithLabelValues(model, result).Inc()
	if trials > 0 {
		r.gridTrials.WithLabelValues(model).Add(float64(trials))
	}
}

// RecordRequest records one HTTP request.
func (r *Recorder) RecordRequest(method, route, status string, seconds float64) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(method, route, status).Inc()
	r.latency.WithLabelValues(method, route).Observe(seconds)
}
