package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus counters for the ingestion pipeline.
// A nil *Metrics disables instrumentation.
type Metrics struct {
	PacketsReceived prometheus.Counter
	PacketsFailed   prometheus.Counter
	PacketsDropped  prometheus.Counter
	AlertsEmitted   prometheus.Counter
	PersistFailures *prometheus.CounterVec
}

// NewMetrics creates and registers the ingestion metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetpulse",
			Subsystem: "ingest",
			Name:      "packets_received_total",
			Help:      "Telemetry packets successfully processed",
		}),
		PacketsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetpulse",
			Subsystem: "ingest",
			Name:      "packets_failed_total",
			Help:      "Telemetry packets dropped at the decode boundary",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetpulse",
			Subsystem: "ingest",
			Name:      "packets_dropped_total",
			Help:      "Datagrams dropped because the ingest queue was full",
		}),
		AlertsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetpulse",
			Subsystem: "ingest",
			Name:      "alerts_emitted_total",
			Help:      "Alerts that passed their cooldown gate",
		}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetpulse",
			Subsystem: "ingest",
			Name:      "persist_failures_total",
			Help:      "Failed writes by backing store",
		}, []string{"store"}),
	}

	reg.MustRegister(
		m.PacketsReceived,
		m.PacketsFailed,
		m.PacketsDropped,
		m.AlertsEmitted,
		m.PersistFailures,
	)
	return m
}
