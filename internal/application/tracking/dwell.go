package tracking

import (
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// DwellConfig holds arrival/departure detection thresholds
type DwellConfig struct {
	RadiusM         float64
	StoppedSpeedKPH float64
	MinDepartureGap time.Duration
}

// DefaultDwellConfig returns the production thresholds
func DefaultDwellConfig() DwellConfig {
	return DwellConfig{
		RadiusM:         80,
		StoppedSpeedKPH: 5,
		MinDepartureGap: 60 * time.Second,
	}
}

// DwellEvent is the outcome of feeding one snap to the detector
type DwellEvent int

const (
	DwellNone DwellEvent = iota
	DwellArrived
	DwellDeparted
)

// DwellDetector tracks the dwell-radius predicate for one shipment.
// Arrival: within the radius and below the stopped threshold for one sample.
// Departure: outside the radius above the stopped threshold, sustained for
// the minimum gap. Owned by the shipment actor, so no locking.
type DwellDetector struct {
	cfg          DwellConfig
	outsideSince *time.Time
}

// NewDwellDetector creates a detector with the given thresholds
func NewDwellDetector(cfg DwellConfig) *DwellDetector {
	return &DwellDetector{cfg: cfg}
}

// Observe evaluates the predicate for the next incomplete stop.
// The returned DwellEvent tells the actor which stop mutation to apply;
// for DwellDeparted, departedAt is the instant the vehicle first left.
func (d *DwellDetector) Observe(stop *tracking.Stop, location geo.Point, speedKPH float64, at time.Time) (DwellEvent, time.Time) {
	dist := geo.Haversine(location, stop.Location)
	inside := dist <= d.cfg.RadiusM
	stopped := speedKPH < d.cfg.StoppedSpeedKPH

	if stop.ActualArrival == nil {
		if inside && stopped {
			d.outsideSince = nil
			return DwellArrived, at
		}
		return DwellNone, time.Time{}
	}

	// Arrived but not yet departed: watch for a sustained exit.
	if inside || stopped {
		d.outsideSince = nil
		return DwellNone, time.Time{}
	}
	if d.outsideSince == nil {
		t := at
		d.outsideSince = &t
		return DwellNone, time.Time{}
	}
	if at.Sub(*d.outsideSince) >= d.cfg.MinDepartureGap {
		departedAt := *d.outsideSince
		d.outsideSince = nil
		return DwellDeparted, departedAt
	}
	return DwellNone, time.Time{}
}

// Reset clears transient state, used when the active stop changes
func (d *DwellDetector) Reset() {
	d.outsideSince = nil
}
