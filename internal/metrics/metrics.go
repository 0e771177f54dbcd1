package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry of the service's metrics so tests can
// create isolated instances.
type Collector struct {
	reg *prometheus.Registry

	TelemetryReceived prometheus.Counter
	InvalidInput      prometheus.Counter
	TripsCompleted    prometheus.Counter
	DemandSignals     prometheus.Counter
	AssignmentWrites  prometheus.Counter
	Conflicts         prometheus.Counter

	EventsDropped prometheus.Counter

	Subscribers   prometheus.Gauge
	NATSConnected prometheus.Gauge

	UpsertDuration    prometheus.Histogram
	BroadcastDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TelemetryReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttled_telemetry_received_total",
			Help: "Total telemetry and occupancy updates applied to the registry.",
		}),
		InvalidInput: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttled_invalid_input_total",
			Help: "Total inbound events rejected before mutating state.",
		}),
		TripsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttled_trips_completed_total",
			Help: "Total trip records emitted by the synthesizer.",
		}),
		DemandSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttled_demand_signals_total",
			Help: "Total demand signals accepted.",
		}),
		AssignmentWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttled_assignment_writes_total",
			Help: "Total assignment create/update/delete writes.",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttled_assignment_conflicts_total",
			Help: "Total assignment requests rejected for exclusivity conflicts.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttled_events_dropped_total",
			Help: "Total fan-out events dropped for a full queue or client buffer.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttled_subscribers",
			Help: "Currently connected fan-out subscribers.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttled_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		UpsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttled_registry_upsert_duration_seconds",
			Help:    "Duration of registry upserts.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttled_broadcast_duration_seconds",
			Help:    "Duration of one event fan-out across all subscribers.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
	}

	reg.MustRegister(
		c.TelemetryReceived, c.InvalidInput, c.TripsCompleted,
		c.DemandSignals, c.AssignmentWrites, c.Conflicts,
		c.EventsDropped, c.Subscribers, c.NATSConnected,
		c.UpsertDuration, c.BroadcastDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
