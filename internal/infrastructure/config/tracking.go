package config

import "time"

// TrackingConfig holds the tracking pipeline tunables
type TrackingConfig struct {
	Position   PositionConfig       `mapstructure:"position"`
	Snap       SnapConfig           `mapstructure:"snap"`
	Dwell      DwellConfig          `mapstructure:"dwell"`
	ETA        ETAConfig            `mapstructure:"eta"`
	Classifier ClassifierConfig     `mapstructure:"classifier"`
	Reroute    RerouteConfig        `mapstructure:"reroute"`
	Queue      QueueConfig          `mapstructure:"queue"`
	Subscriber SubscriberConfig     `mapstructure:"subscriber"`
	Ingest     IngestConfig         `mapstructure:"ingest"`
}

// PositionConfig holds raw position admission thresholds
type PositionConfig struct {
	// Positions with accuracy beyond this are rejected (meters)
	MaxAccuracyM float64 `mapstructure:"max_accuracy_m" validate:"gt=0"`
}

// SnapConfig holds road-snapping thresholds
type SnapConfig struct {
	// Upper bound on cross-track reject threshold (meters)
	MaxCrossTrackM float64 `mapstructure:"max_cross_track_m" validate:"gt=0"`

	// Allowed backward jitter before rejection (meters)
	MinProgressToleranceM float64 `mapstructure:"min_progress_tolerance_m" validate:"min=0"`

	// Ceiling on displacement-derived speed (km/h)
	MaxEdgeSpeedKPH float64 `mapstructure:"max_edge_speed_kph" validate:"gt=0"`

	// One-pole low-pass filter factor for edge speed
	SpeedFilterAlpha float64 `mapstructure:"speed_filter_alpha" validate:"gt=0,lte=1"`
}

// DwellConfig holds arrival/departure detection thresholds
type DwellConfig struct {
	// Arrival/departure detection radius (meters)
	RadiusM float64 `mapstructure:"radius_m" validate:"gt=0"`

	// Stopped threshold (km/h)
	StoppedSpeedKPH float64 `mapstructure:"stopped_speed_kph" validate:"gt=0"`

	// Sustained exit duration before a departure is recorded
	MinDepartureGap time.Duration `mapstructure:"min_departure_gap"`
}

// ETAConfig holds ETA estimation parameters
type ETAConfig struct {
	// EWMA smoothing factor
	Alpha float64 `mapstructure:"alpha" validate:"gt=0,lte=1"`

	// Deviation band for high confidence (minutes)
	ConfidenceHighDevMin float64 `mapstructure:"confidence_high_dev_min" validate:"gt=0"`

	// Deviation band for medium confidence (minutes)
	ConfidenceMediumDevMin float64 `mapstructure:"confidence_medium_dev_min" validate:"gt=0"`

	// Floor for effective segment speed (km/h)
	MinSpeedKPH float64 `mapstructure:"min_speed_kph" validate:"gt=0"`

	// Stops farther than this from the polyline degrade confidence (meters)
	OffRouteStopM float64 `mapstructure:"off_route_stop_m" validate:"gt=0"`
}

// ClassifierConfig holds delay classification thresholds
type ClassifierConfig struct {
	// Minimum winning score
	MinScore float64 `mapstructure:"min_score" validate:"gt=0,lte=1"`

	// Traffic speed factor below this scores congestion
	TrafficFactorThreshold float64 `mapstructure:"traffic_factor_threshold" validate:"gt=0,lte=1"`

	// Projected lateness counting as delayed (minutes)
	LateThresholdMin float64 `mapstructure:"late_threshold_min" validate:"gt=0"`

	// Precipitation rate scoring weather delay (mm/h)
	PrecipThresholdMM float64 `mapstructure:"precip_threshold_mm" validate:"gt=0"`

	// Regulatory active-drive ceiling
	HOSDriveLimit time.Duration `mapstructure:"hos_drive_limit"`

	// Remaining drive time that starts scoring risk
	HOSWarningWindow time.Duration `mapstructure:"hos_warning_window"`

	// Recency window for manual vehicle events
	VehicleIssueWindow time.Duration `mapstructure:"vehicle_issue_window"`

	// Snap-rejection streak scoring off-route
	OffRouteRejects int `mapstructure:"off_route_rejects" validate:"min=1"`
}

// RerouteConfig holds reroute evaluation thresholds
type RerouteConfig struct {
	// Minimum saving to propose (minutes)
	MinSavingMin float64 `mapstructure:"min_saving_min" validate:"gt=0"`

	// Expiry time for an unaccepted proposal
	ProposalTTL time.Duration `mapstructure:"proposal_ttl"`

	// Alternatives requested from the routing backend
	Alternatives int `mapstructure:"alternatives" validate:"min=1"`

	// Distance overshoot beyond which a detour penalty applies (percent)
	DetourMaxPct float64 `mapstructure:"detour_max_pct" validate:"min=0"`

	// Penalty subtracted from a long detour's saving
	DetourPenalty time.Duration `mapstructure:"detour_penalty"`
}

// QueueConfig holds actor queue sizing
type QueueConfig struct {
	// Bounded inbound queue per shipment
	PerShipmentCapacity int `mapstructure:"per_shipment_capacity" validate:"min=1"`

	// Positions buffered in memory while storage is degraded
	DegradedBufferCap int `mapstructure:"degraded_buffer_cap" validate:"min=1"`
}

// SubscriberConfig holds subscription hub sizing
type SubscriberConfig struct {
	// Bounded outbound buffer per session
	Buffer int `mapstructure:"buffer" validate:"min=1"`
}

// IngestConfig holds gateway admission tunables
type IngestConfig struct {
	// Oldest acceptable timestamp relative to now
	MaxPastWindow time.Duration `mapstructure:"max_past_window"`

	// Newest acceptable timestamp relative to now
	MaxFutureSkew time.Duration `mapstructure:"max_future_skew"`

	// Sustained batches per second per vehicle
	VehicleRate float64 `mapstructure:"vehicle_rate" validate:"gt=0"`

	// Burst allowance per vehicle
	VehicleBurst int `mapstructure:"vehicle_burst" validate:"min=1"`

	// Upper bound on time spent admitting one batch
	AdmissionTimeout time.Duration `mapstructure:"admission_timeout"`
}
