package observe

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docweaver/docweaver/internal/ratelimit"
)

// Metrics holds all workflow Prometheus metrics.
type Metrics struct {
	GenerationsTotal *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	ParseFailures    *prometheus.CounterVec
	QuotaWaits       prometheus.Gauge
	QuotaWaitSeconds prometheus.Gauge
	WindowOccupancy  prometheus.Gauge
	BreakerState     prometheus.Gauge
}

// NewMetrics creates and registers all workflow metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docweaver_generations_total",
				Help: "Total number of upstream generation calls by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "docweaver_stage_duration_seconds",
				Help: "Generation call duration per stage in seconds.",
				// Hosted completions run from sub-second to minutes.
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		ParseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docweaver_parse_failures_total",
				Help: "Model responses that were not the expected JSON shape.",
			},
			[]string{"stage"},
		),
		QuotaWaits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docweaver_quota_waits_total",
			Help: "Times a caller was suspended waiting for the quota window.",
		}),
		QuotaWaitSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docweaver_quota_wait_seconds_total",
			Help: "Cumulative seconds spent waiting for the quota window.",
		}),
		WindowOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docweaver_quota_window_occupancy",
			Help: "Admissions currently inside the trailing quota window.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docweaver_upstream_breaker_state",
			Help: "Upstream circuit state: 0=closed, 1=open, 2=half-open.",
		}),
	}

	reg.MustRegister(
		m.GenerationsTotal,
		m.StageDuration,
		m.ParseFailures,
		m.QuotaWaits,
		m.QuotaWaitSeconds,
		m.WindowOccupancy,
		m.BreakerState,
	)

	return m
}

// ObserveQuota publishes a controller stats snapshot.
func (m *Metrics) ObserveQuota(s ratelimit.Stats) {
	m.QuotaWaits.Set(float64(s.Waits))
	m.QuotaWaitSeconds.Set(s.WaitTime.Seconds())
	m.WindowOccupancy.Set(float64(s.InWindow))
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
