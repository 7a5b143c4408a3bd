package tracking

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Stop is one scheduled visit within a shipment
//
// Invariants:
// - completed implies actual_arrival is set
// - actual_departure is never before actual_arrival
// - a completed stop's sequence never changes
type Stop struct {
	ID               string
	ShipmentID       string
	Sequence         int
	Name             string
	Location         geo.Point
	PlannedArrival   time.Time
	PlannedDeparture time.Time
	ServiceMinutes   int
	ActualArrival    *time.Time
	ActualDeparture  *time.Time
	Completed        bool
}

// NewStop creates a stop with validation
func NewStop(id, shipmentID string, sequence int, name string, location geo.Point, plannedArrival, plannedDeparture time.Time, serviceMinutes int) (*Stop, error) {
	if sequence < 1 {
		return nil, shared.NewValidationError("sequence", "must be >= 1")
	}
	if !location.Valid() {
		return nil, shared.NewValidationError("location", "outside WGS84 ranges")
	}
	if serviceMinutes < 0 {
		return nil, shared.NewValidationError("service_minutes", "cannot be negative")
	}
	return &Stop{
		ID:               id,
		ShipmentID:       shipmentID,
		Sequence:         sequence,
		Name:             name,
		Location:         location,
		PlannedArrival:   plannedArrival,
		PlannedDeparture: plannedDeparture,
		ServiceMinutes:   serviceMinutes,
	}, nil
}

// MarkArrived records the first arrival time. Subsequent calls are no-ops,
// keeping arrival detection idempotent across repeated dwell samples.
func (s *Stop) MarkArrived(at time.Time) {
	if s.ActualArrival != nil {
		return
	}
	t := at
	s.ActualArrival = &t
}

// MarkDeparted records departure and completes the stop
func (s *Stop) MarkDeparted(at time.Time) error {
	if s.ActualArrival == nil {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("stop %s cannot depart before arriving", s.ID))
	}
	if at.Before(*s.ActualArrival) {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("stop %s departure %s precedes arrival %s", s.ID, at, *s.ActualArrival))
	}
	if s.Completed {
		return nil
	}
	t := at
	s.ActualDeparture = &t
	s.Completed = true
	return nil
}

func (s *Stop) String() string {
	return fmt.Sprintf("Stop(seq=%d, name=%s, completed=%t)", s.Sequence, s.Name, s.Completed)
}
