package tracking

import (
	"time"
)

// ReasonCode is the closed set of delay classifications
type ReasonCode string

const (
	ReasonOnTime            ReasonCode = "ON_TIME"
	ReasonTrafficCongestion ReasonCode = "TRAFFIC_CONGESTION"
	ReasonWeatherDelay      ReasonCode = "WEATHER_DELAY"
	ReasonDriverHOSRisk     ReasonCode = "DRIVER_HOS_RISK"
	ReasonRoadIncident      ReasonCode = "ROAD_INCIDENT"
	ReasonVehicleIssue      ReasonCode = "VEHICLE_ISSUE"
	ReasonOffRoute          ReasonCode = "OFF_ROUTE"
	ReasonUnknownDelay      ReasonCode = "UNKNOWN_DELAY"
)

// TiePriority breaks equal-score ties between candidate causes.
// Higher wins: ROAD_INCIDENT > VEHICLE_ISSUE > DRIVER_HOS_RISK >
// WEATHER_DELAY > TRAFFIC_CONGESTION > OFF_ROUTE > UNKNOWN_DELAY.
func (r ReasonCode) TiePriority() int {
	switch r {
	case ReasonRoadIncident:
		return 7
	case ReasonVehicleIssue:
		return 6
	case ReasonDriverHOSRisk:
		return 5
	case ReasonWeatherDelay:
		return 4
	case ReasonTrafficCongestion:
		return 3
	case ReasonOffRoute:
		return 2
	case ReasonUnknownDelay:
		return 1
	default:
		return 0
	}
}

// Severity grades an advisory for dashboard display
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Advisory is the single currently effective delay classification for a shipment.
// A new advisory supersedes the previous active one.
type Advisory struct {
	ID          string     `json:"id"`
	ShipmentID  string     `json:"shipment_id"`
	ObservedAt  time.Time  `json:"observed_at"`
	Reason      ReasonCode `json:"reason_code"`
	Confidence  float64    `json:"confidence"`
	Explanation string     `json:"explanation"`
	Severity    Severity   `json:"severity"`
}

// Supersedes reports whether this advisory should replace the previous one.
// Identical reason and severity keep the existing advisory to avoid churn.
func (a *Advisory) Supersedes(prev *Advisory) bool {
	if prev == nil {
		return true
	}
	return a.Reason != prev.Reason || a.Severity != prev.Severity
}
