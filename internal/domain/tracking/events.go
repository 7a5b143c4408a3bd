package tracking

import (
	"time"

	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Event is the closed union of outbound events published per shipment topic.
// Event names are part of the wire contract.
type Event interface {
	EventType() string
	Shipment() string
}

// StopETA is the per-stop slice of a position update payload
type StopETA struct {
	StopID           string           `json:"stop_id"`
	Sequence         int              `json:"sequence"`
	EstimatedArrival time.Time        `json:"estimated_arrival"`
	ResidualM        float64          `json:"residual_m"`
	Bucket           ConfidenceBucket `json:"confidence_bucket"`
	Confidence       float64          `json:"confidence"`
}

// PositionUpdateEvent is the composite event emitted after each accepted position
type PositionUpdateEvent struct {
	ShipmentID      string    `json:"shipment_id"`
	Snapped         geo.Point `json:"snapped"`
	Progress        float64   `json:"progress"`
	ResidualPercent float64   `json:"residual_percent"`
	StopETAs        []StopETA `json:"per_stop_etas"`
	Advisory        *Advisory `json:"advisory,omitempty"`
	ObservedAt      time.Time `json:"observed_at"`
}

func (e PositionUpdateEvent) EventType() string { return "position_update" }
func (e PositionUpdateEvent) Shipment() string  { return e.ShipmentID }

// RerouteSuggestedEvent announces a new proposed reroute
type RerouteSuggestedEvent struct {
	ShipmentID   string  `json:"shipment_id"`
	RerouteID    string  `json:"reroute_id"`
	TimeSavedMin float64 `json:"time_saved_min"`
	Reason       string  `json:"reason"`
}

func (e RerouteSuggestedEvent) EventType() string { return "reroute_suggested" }
func (e RerouteSuggestedEvent) Shipment() string  { return e.ShipmentID }

// RouteSummary describes the newly active route after acceptance
type RouteSummary struct {
	RouteID   string        `json:"route_id"`
	DistanceM float64       `json:"distance_m"`
	Duration  time.Duration `json:"duration"`
	Source    string        `json:"source"`
}

// RerouteAcceptedEvent announces an accepted reroute with recomputed stop ETAs
type RerouteAcceptedEvent struct {
	ShipmentID       string       `json:"shipment_id"`
	RerouteID        string       `json:"reroute_id"`
	NewRouteSummary  RouteSummary `json:"new_route_summary"`
	StopsWithNewETAs []StopETA    `json:"stops_with_new_etas"`
}

func (e RerouteAcceptedEvent) EventType() string { return "reroute_accepted" }
func (e RerouteAcceptedEvent) Shipment() string  { return e.ShipmentID }

// AdvisoryChangedEvent announces a superseding advisory
type AdvisoryChangedEvent struct {
	ShipmentID  string     `json:"shipment_id"`
	Reason      ReasonCode `json:"reason_code"`
	Confidence  float64    `json:"confidence"`
	Explanation string     `json:"explanation"`
	Severity    Severity   `json:"severity"`
}

func (e AdvisoryChangedEvent) EventType() string { return "advisory_changed" }
func (e AdvisoryChangedEvent) Shipment() string  { return e.ShipmentID }

// LaggedEvent marks dropped events after subscriber buffer overflow
// so the client can refetch authoritative state.
type LaggedEvent struct {
	ShipmentID string `json:"shipment_id"`
	Dropped    int    `json:"dropped"`
}

func (e LaggedEvent) EventType() string { return "lagged" }
func (e LaggedEvent) Shipment() string  { return e.ShipmentID }

// StorageDegradedEvent signals the actor is buffering positions it could not persist
type StorageDegradedEvent struct {
	ShipmentID string `json:"shipment_id"`
	Buffered   int    `json:"buffered"`
	Lost       int    `json:"lost"`
}

func (e StorageDegradedEvent) EventType() string { return "storage_degraded" }
func (e StorageDegradedEvent) Shipment() string  { return e.ShipmentID }
