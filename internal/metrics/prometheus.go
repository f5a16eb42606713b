package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "binlog_router"

// Metrics is a centralized registry of all router metrics.
type Metrics struct {
	// Router metrics
	PacketsTotal       *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	RegistryTables     prometheus.Gauge
	DynamicRouting     prometheus.Gauge

	// Reader metrics
	ReaderReconnects prometheus.Counter
	ReaderErrors     prometheus.Counter

	// Publisher metrics
	JetstreamPublished  prometheus.Counter
	JetstreamAckFailure prometheus.Counter
}

// NewMetrics registers all collectors with reg. Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PacketsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "packets_total",
			Help:      "Total number of packets handled, by packet kind",
		}, []string{"kind"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "notifications_total",
			Help:      "Total number of notifications emitted, by class (canonical or dynamic)",
		}, []string{"class"}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "errors_total",
			Help:      "Total number of error notifications, by kind",
		}, []string{"kind"}),
		RegistryTables: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "registry_tables",
			Help:      "Number of table ids currently known to the registry",
		}),
		DynamicRouting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "dynamic_routing_enabled",
			Help:      "1 once a non-canonical subscription was observed",
		}),

		ReaderReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "reconnects_total",
			Help:      "Total number of binlog reconnect attempts",
		}),
		ReaderErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "errors_total",
			Help:      "Total number of binlog stream errors",
		}),

		JetstreamPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "jetstream_published_total",
			Help:      "Total number of messages published to JetStream",
		}),
		JetstreamAckFailure: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "jetstream_ack_failures_total",
			Help:      "Total number of JetStream ack failures",
		}),
	}
}

// Global metrics instance
var GlobalMetrics = NewMetrics(prometheus.DefaultRegisterer)
