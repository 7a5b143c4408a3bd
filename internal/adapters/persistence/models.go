package persistence

import (
	"time"
)

// ShipmentModel represents the shipments table
type ShipmentModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Reference     string    `gorm:"column:reference;unique;not null"`
	VehicleID     string    `gorm:"column:vehicle_id;index;not null"`
	PromisedAt    time.Time `gorm:"column:promised_at"`
	Status        string    `gorm:"column:status;not null;default:'pending'"`
	ActiveRouteID string    `gorm:"column:active_route_id"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (ShipmentModel) TableName() string {
	return "shipments"
}

// StopModel represents the stops table
type StopModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	ShipmentID       string     `gorm:"column:shipment_id;index;not null"`
	Shipment         *ShipmentModel `gorm:"foreignKey:ShipmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Sequence         int        `gorm:"column:sequence;not null"`
	Name             string     `gorm:"column:name"`
	Lat              float64    `gorm:"column:lat;not null"`
	Lon              float64    `gorm:"column:lon;not null"`
	PlannedArrival   time.Time  `gorm:"column:planned_arrival"`
	PlannedDeparture time.Time  `gorm:"column:planned_departure"`
	ServiceMinutes   int        `gorm:"column:service_minutes;default:0"`
	ActualArrival    *time.Time `gorm:"column:actual_arrival"`
	ActualDeparture  *time.Time `gorm:"column:actual_departure"`
	Completed        bool       `gorm:"column:completed;not null;default:false"`
}

func (StopModel) TableName() string {
	return "stops"
}

// PositionModel represents the positions table.
// The unique (vehicle_id, ts) index makes appends idempotent.
type PositionModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	VehicleID   string    `gorm:"column:vehicle_id;not null;uniqueIndex:idx_positions_vehicle_ts"`
	TS          time.Time `gorm:"column:ts;not null;uniqueIndex:idx_positions_vehicle_ts"`
	Lat         float64   `gorm:"column:lat;not null"`
	Lon         float64   `gorm:"column:lon;not null"`
	SnappedLat  float64   `gorm:"column:snapped_lat"`
	SnappedLon  float64   `gorm:"column:snapped_lon"`
	RouteID     string    `gorm:"column:route_id"`
	Progress    float64   `gorm:"column:progress"`
	CrossTrackM float64   `gorm:"column:cross_track_m"`
	EdgeSpeed   float64   `gorm:"column:edge_speed_kph"`
	SpeedKPH    *float64  `gorm:"column:speed_kph"`
	AccuracyM   float64   `gorm:"column:accuracy_m;not null"`
	Source      string    `gorm:"column:source"`
}

func (PositionModel) TableName() string {
	return "positions"
}

// RouteModel represents the routes table. The polyline is stored in Google
// encoded-polyline form; segments are JSON.
type RouteModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	ShipmentID string    `gorm:"column:shipment_id;index;not null"`
	Polyline   string    `gorm:"column:polyline;type:text;not null"`
	DistanceM  float64   `gorm:"column:distance_m;not null"`
	DurationS  float64   `gorm:"column:duration_s;not null"`
	Segments   string    `gorm:"column:segments;type:text;not null"`
	Costing    string    `gorm:"column:costing;not null;default:'truck'"`
	Source     string    `gorm:"column:source"`
	Active     bool      `gorm:"column:active;index;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (RouteModel) TableName() string {
	return "routes"
}

// RerouteModel represents the reroutes table
type RerouteModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	ShipmentID   string    `gorm:"column:shipment_id;index;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	OldRouteID   string    `gorm:"column:old_route_id;not null"`
	NewRouteID   string    `gorm:"column:new_route_id;not null"`
	TimeSavedMin float64   `gorm:"column:time_saved_min;not null"`
	Reason       string    `gorm:"column:reason"`
	Status       string    `gorm:"column:status;index;not null;default:'proposed'"`
}

func (RerouteModel) TableName() string {
	return "reroutes"
}

// AdvisoryModel represents the advisories table.
// At most one row per shipment has active = true.
type AdvisoryModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ShipmentID  string    `gorm:"column:shipment_id;index;not null"`
	ObservedAt  time.Time `gorm:"column:observed_at;not null"`
	Reason      string    `gorm:"column:reason;not null"`
	Confidence  float64   `gorm:"column:confidence;not null"`
	Explanation string    `gorm:"column:explanation;type:text"`
	Severity    string    `gorm:"column:severity;not null"`
	Active      bool      `gorm:"column:active;index;not null;default:true"`
}

func (AdvisoryModel) TableName() string {
	return "advisories"
}

// ETASampleModel represents the eta_samples table
type ETASampleModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	ShipmentID       string    `gorm:"column:shipment_id;index;not null"`
	StopID           string    `gorm:"column:stop_id;index;not null"`
	ObservedAt       time.Time `gorm:"column:observed_at;not null"`
	EstimatedArrival time.Time `gorm:"column:estimated_arrival;not null"`
	ResidualM        float64   `gorm:"column:residual_m;not null"`
	ResidualRawS     float64   `gorm:"column:residual_raw_s;not null"`
	ResidualSmoothS  float64   `gorm:"column:residual_smoothed_s;not null"`
	Bucket           string    `gorm:"column:bucket;not null"`
	Confidence       float64   `gorm:"column:confidence;not null"`
}

func (ETASampleModel) TableName() string {
	return "eta_samples"
}

// EventModel represents the events audit log table
type EventModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ShipmentID string    `gorm:"column:shipment_id;index;not null"`
	EventType  string    `gorm:"column:event_type;not null"`
	Payload    string    `gorm:"column:payload;type:text"`
	TS         time.Time `gorm:"column:ts;not null"`
}

func (EventModel) TableName() string {
	return "events"
}
