package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecrop",
		Name:      "runs_total",
		Help:      "Workflow runs by final status.",
	}, []string{"status"})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ecrop",
		Name:      "run_duration_seconds",
		Help:      "Wall time of completed workflow runs.",
		Buckets:   prometheus.ExponentialBuckets(30, 2, 10),
	})
	RunsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecrop",
		Name:      "runs_active",
		Help:      "Workflow runs currently holding the browser.",
	})
	KhatasProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecrop",
		Name:      "khatas_processed_total",
		Help:      "Khatas processed by result (updated, skipped, search_failed).",
	}, []string{"result"})
	RowOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecrop",
		Name:      "row_outcomes_total",
		Help:      "Survey row outcomes (updated, skipped, failed).",
	}, []string{"outcome"})
	MobileReplacements = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecrop",
		Name:      "mobile_replacements_total",
		Help:      "Malformed on-screen mobiles replaced from the dataset.",
	})
	InvalidMobiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecrop",
		Name:      "invalid_mobiles_total",
		Help:      "Rows rejected for lack of a valid replacement mobile.",
	})
	ScanDivergences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecrop",
		Name:      "scan_divergences_total",
		Help:      "Rows that stayed in the pending list after repeated updates.",
	})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecrop",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecrop",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP handling time by route. POST /run spans the whole portal session.",
		Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 30, 120, 600, 1800},
	}, []string{"route"})
)

var registerOnce sync.Once

// Init registers collectors; safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RunsTotal, RunDuration, RunsActive, KhatasProcessed,
			RowOutcomes, MobileReplacements, InvalidMobiles, ScanDivergences,
			HTTPRequests, HTTPDuration)
	})
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
