package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matthewbaird/followup/internal/types"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Worklist pass metrics
	PassDuration  prometheus.Histogram
	PassesTotal   *prometheus.CounterVec
	OverdueCount  prometheus.Gauge
	UpcomingCount prometheus.Gauge
	SkippedTotal  *prometheus.CounterVec

	// Write path metrics
	ContactsRecorded *prometheus.CounterVec
	IngestErrors     prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "followup_pass_duration_seconds",
			Help:    "Duration of worklist passes",
			Buckets: prometheus.DefBuckets,
		}),
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_passes_total",
			Help: "Total number of worklist passes",
		}, []string{"partial"}),
		OverdueCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "followup_overdue_reminders",
			Help: "Overdue reminders in the latest worklist",
		}),
		UpcomingCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "followup_upcoming_reminders",
			Help: "Upcoming reminders in the latest worklist",
		}),
		SkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_skipped_customers_total",
			Help: "Customers skipped during worklist passes",
		}, []string{"reason"}),

		ContactsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_contacts_recorded_total",
			Help: "Contacts recorded in the ledger",
		}, []string{"channel", "source"}),
		IngestErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "followup_ingest_errors_total",
			Help: "Contact messages that could not be recorded",
		}),

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "followup_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObservePass records one completed worklist pass.
func (m *Metrics) ObservePass(wl types.Worklist, took time.Duration) {
	m.PassDuration.Observe(took.Seconds())
	partial := "false"
	if wl.Partial {
		partial = "true"
	}
	m.PassesTotal.WithLabelValues(partial).Inc()
	m.OverdueCount.Set(float64(wl.OverdueCount))
	m.UpcomingCount.Set(float64(wl.UpcomingCount))
	for _, s := range wl.Skipped {
		m.SkippedTotal.WithLabelValues(s.Reason).Inc()
	}
}

// ContactRecorded counts one contact on channel from source ("api", "kafka").
func (m *Metrics) ContactRecorded(channel types.Channel, source string) {
	m.ContactsRecorded.WithLabelValues(string(channel), source).Inc()
}

// IngestError counts one contact message that could not be recorded.
func (m *Metrics) IngestError() {
	m.IngestErrors.Inc()
}
