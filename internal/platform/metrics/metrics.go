package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ContactsCreated      prometheus.Counter
	SubmissionsRejected  prometheus.Counter
	EventsApplied        *prometheus.CounterVec
	RegistrySize         prometheus.Gauge
	CSVExports           prometheus.Counter
	AnalyticsPublishErrs prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ContactsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contacthub_contacts_created_total",
			Help: "Total number of contact submissions stored",
		}),
		SubmissionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contacthub_submissions_rejected_total",
			Help: "Total number of contact submissions rejected by validation",
		}),
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "contacthub_change_events_applied_total",
			Help: "Change events applied to the live registry by type",
		}, []string{"type"}),
		RegistrySize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "contacthub_registry_records",
			Help: "Number of contact records mirrored in the live registry",
		}),
		CSVExports: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contacthub_csv_exports_total",
			Help: "Total number of CSV exports served",
		}),
		AnalyticsPublishErrs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contacthub_analytics_publish_errors_total",
			Help: "Failed analytics event publishes (best effort, never fatal)",
		}),
	}
}
