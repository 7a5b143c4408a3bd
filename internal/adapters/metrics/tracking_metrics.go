package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace for all metrics
	namespace = "fleettrack"
	// Subsystem for daemon metrics
	subsystem = "daemon"
)

var (
	// Registry is the global Prometheus registry for all metrics
	Registry *prometheus.Registry

	// globalCollector is the singleton tracking metrics collector
	// Set by InitRegistry() when metrics are enabled
	globalCollector *TrackingMetricsCollector
)

// TrackingMetricsCollector handles all tracking pipeline metrics
type TrackingMetricsCollector struct {
	positionsAdmitted *prometheus.CounterVec
	positionsDropped  *prometheus.CounterVec
	snapRejections    *prometheus.CounterVec
	queueDrops        prometheus.Counter
	eventsPublished   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	reroutesProposed  prometheus.Counter
	reroutesAccepted  prometheus.Counter
	activeShipments   prometheus.Gauge
	activeSessions    prometheus.Gauge
}

// NewTrackingMetricsCollector creates and registers the tracking collectors
func NewTrackingMetricsCollector(reg *prometheus.Registry) *TrackingMetricsCollector {
	c := &TrackingMetricsCollector{
		positionsAdmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "positions_admitted_total",
				Help:      "Positions admitted into shipment actors",
			},
			[]string{"shipment_id"},
		),
		positionsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "positions_dropped_total",
				Help:      "Positions dropped at admission by reason",
			},
			[]string{"reason"},
		),
		snapRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "snap_rejections_total",
				Help:      "Road-snap rejections by reason",
			},
			[]string{"reason"},
		),
		queueDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "queue_drops_total",
				Help:      "Positions dropped from full per-shipment queues (drop-oldest)",
			},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_published_total",
				Help:      "Events fanned out to subscribers by type",
			},
			[]string{"type"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_dropped_total",
				Help:      "Events dropped from lagging subscriber buffers by type",
			},
			[]string{"type"},
		),
		reroutesProposed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reroutes_proposed_total",
				Help:      "Reroute proposals persisted",
			},
		),
		reroutesAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reroutes_accepted_total",
				Help:      "Reroute proposals accepted",
			},
		),
		activeShipments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_shipments",
				Help:      "Shipment actors currently running",
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriber_sessions",
				Help:      "Open subscriber sessions",
			},
		),
	}

	reg.MustRegister(
		c.positionsAdmitted, c.positionsDropped, c.snapRejections,
		c.queueDrops, c.eventsPublished, c.eventsDropped,
		c.reroutesProposed, c.reroutesAccepted,
		c.activeShipments, c.activeSessions,
	)
	return c
}

// InitRegistry initializes the Prometheus registry and the global collector.
// Should be called once at application startup if metrics are enabled.
func InitRegistry() {
	Registry = prometheus.NewRegistry()
	globalCollector = NewTrackingMetricsCollector(Registry)
}

// GetRegistry returns the global Prometheus registry
// Returns nil if metrics are not initialized
func GetRegistry() *prometheus.Registry {
	return Registry
}

// IsEnabled returns true if metrics collection is enabled
func IsEnabled() bool {
	return Registry != nil
}

// Package-level recorders. All are no-ops until InitRegistry runs, so the
// pipeline never nil-checks metrics.

func RecordPositionAdmitted(shipmentID string) {
	if globalCollector != nil {
		globalCollector.positionsAdmitted.WithLabelValues(shipmentID).Inc()
	}
}

func RecordPositionDropped(reason string) {
	if globalCollector != nil {
		globalCollector.positionsDropped.WithLabelValues(reason).Inc()
	}
}

func RecordSnapRejection(reason string) {
	if globalCollector != nil {
		globalCollector.snapRejections.WithLabelValues(reason).Inc()
	}
}

func RecordQueueDrop() {
	if globalCollector != nil {
		globalCollector.queueDrops.Inc()
	}
}

func RecordEventPublished(eventType string) {
	if globalCollector != nil {
		globalCollector.eventsPublished.WithLabelValues(eventType).Inc()
	}
}

func RecordEventDropped(eventType string) {
	if globalCollector != nil {
		globalCollector.eventsDropped.WithLabelValues(eventType).Inc()
	}
}

func RecordRerouteProposed() {
	if globalCollector != nil {
		globalCollector.reroutesProposed.Inc()
	}
}

func RecordRerouteAccepted() {
	if globalCollector != nil {
		globalCollector.reroutesAccepted.Inc()
	}
}

func RecordActorStarted() {
	if globalCollector != nil {
		globalCollector.activeShipments.Inc()
	}
}

func RecordActorStopped() {
	if globalCollector != nil {
		globalCollector.activeShipments.Dec()
	}
}

func RecordSessionOpened() {
	if globalCollector != nil {
		globalCollector.activeSessions.Inc()
	}
}

func RecordSessionClosed() {
	if globalCollector != nil {
		globalCollector.activeSessions.Dec()
	}
}
