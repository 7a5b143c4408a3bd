package signals

import (
	"context"
	"time"

	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// TrafficSample is a normalized traffic observation near a point
type TrafficSample struct {
	Location        geo.Point
	Timestamp       time.Time
	SpeedKPH        float64
	FreeFlowKPH     float64
	CongestionRatio float64 // observed speed / free-flow speed, 0..1
	Incident        bool
	IncidentDetail  string
	Source          string
	TTL             time.Duration
}

// SpeedFactor returns the multiplier applied to free-flow segment speeds
func (s *TrafficSample) SpeedFactor() float64 {
	if s.FreeFlowKPH <= 0 {
		return 1.0
	}
	f := s.SpeedKPH / s.FreeFlowKPH
	if f > 1.0 {
		return 1.0
	}
	if f < 0.05 {
		return 0.05
	}
	return f
}

// WeatherSample is a normalized weather observation near a point
type WeatherSample struct {
	Location       geo.Point
	Timestamp      time.Time
	PrecipMMPerH   float64
	WindKPH        float64
	TempC          float64
	SevereAdvisory string // named advisory in the corridor, empty if none
	Source         string
	TTL            time.Duration
}

// SpeedFactor degrades free-flow speed under precipitation and severe weather
func (s *WeatherSample) SpeedFactor() float64 {
	factor := 1.0
	switch {
	case s.PrecipMMPerH >= 10:
		factor = 0.7
	case s.PrecipMMPerH >= 2.5:
		factor = 0.85
	case s.PrecipMMPerH > 0:
		factor = 0.95
	}
	if s.SevereAdvisory != "" && factor > 0.7 {
		factor = 0.7
	}
	return factor
}

// TrafficProvider supplies traffic samples keyed by coarse spatial buckets
// and time windows. Unavailability is non-fatal: callers treat errors as a
// missing input and proceed with defaults.
type TrafficProvider interface {
	Sample(ctx context.Context, point geo.Point, at time.Time) (*TrafficSample, error)
}

// WeatherProvider supplies weather samples with the same cache semantics
type WeatherProvider interface {
	Sample(ctx context.Context, point geo.Point, at time.Time) (*WeatherSample, error)
}
