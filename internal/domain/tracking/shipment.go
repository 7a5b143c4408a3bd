package tracking

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
)

// ShipmentStatus represents the shipment lifecycle state
type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusCompleted ShipmentStatus = "completed"
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
)

// statusRank orders statuses for the monotonic-progression invariant.
// Cancelled is reachable from any non-terminal state.
var statusRank = map[ShipmentStatus]int{
	ShipmentStatusPending:   0,
	ShipmentStatusInTransit: 1,
	ShipmentStatusCompleted: 2,
	ShipmentStatusCancelled: 3,
}

// Shipment aggregate root - a multi-stop delivery assigned to one vehicle
//
// Invariants:
// - Stops carry dense sequences 1..N with exactly one origin (seq 1) and one terminal (seq N)
// - Status only progresses forward through pending → in_transit → completed
// - While in_transit the shipment has exactly one active route
type Shipment struct {
	ID            string
	Reference     string
	VehicleID     string
	Stops         []*Stop
	PromisedAt    time.Time
	Status        ShipmentStatus
	ActiveRouteID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewShipment creates a shipment with validation
func NewShipment(id, reference, vehicleID string, stops []*Stop, promisedAt time.Time, now time.Time) (*Shipment, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "cannot be empty")
	}
	if vehicleID == "" {
		return nil, shared.NewValidationError("vehicle_id", "cannot be empty")
	}
	if err := validateStopSequences(stops); err != nil {
		return nil, err
	}

	return &Shipment{
		ID:         id,
		Reference:  reference,
		VehicleID:  vehicleID,
		Stops:      stops,
		PromisedAt: promisedAt,
		Status:     ShipmentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func validateStopSequences(stops []*Stop) error {
	if len(stops) < 2 {
		return shared.NewValidationError("stops", "shipment requires an origin and a terminal stop")
	}
	seen := make(map[int]bool, len(stops))
	for _, s := range stops {
		if s.Sequence < 1 || s.Sequence > len(stops) {
			return shared.NewValidationError("stops", fmt.Sprintf("sequence %d outside 1..%d", s.Sequence, len(stops)))
		}
		if seen[s.Sequence] {
			return shared.NewValidationError("stops", fmt.Sprintf("duplicate sequence %d", s.Sequence))
		}
		seen[s.Sequence] = true
	}
	return nil
}

// TransitionTo moves the shipment to a new status, enforcing monotonic progression
func (s *Shipment) TransitionTo(status ShipmentStatus, now time.Time) error {
	if s.Status == ShipmentStatusCompleted || s.Status == ShipmentStatusCancelled {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("shipment %s is %s and cannot transition to %s", s.ID, s.Status, status))
	}
	if statusRank[status] <= statusRank[s.Status] {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("shipment %s cannot move backwards from %s to %s", s.ID, s.Status, status))
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

// Start transitions pending → in_transit
func (s *Shipment) Start(now time.Time) error {
	if s.Status != ShipmentStatusPending {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("cannot start shipment %s in status %s", s.ID, s.Status))
	}
	return s.TransitionTo(ShipmentStatusInTransit, now)
}

// Complete transitions in_transit → completed once the terminal stop is done
func (s *Shipment) Complete(now time.Time) error {
	if s.Status != ShipmentStatusInTransit {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("cannot complete shipment %s in status %s", s.ID, s.Status))
	}
	return s.TransitionTo(ShipmentStatusCompleted, now)
}

// Cancel transitions any non-terminal status → cancelled
func (s *Shipment) Cancel(now time.Time) error {
	return s.TransitionTo(ShipmentStatusCancelled, now)
}

// IsActive reports whether the shipment still accepts positions
func (s *Shipment) IsActive() bool {
	return s.Status == ShipmentStatusPending || s.Status == ShipmentStatusInTransit
}

// NextStop returns the lowest-sequence stop not yet completed, nil when all are done
func (s *Shipment) NextStop() *Stop {
	var next *Stop
	for _, stop := range s.Stops {
		if stop.Completed {
			continue
		}
		if next == nil || stop.Sequence < next.Sequence {
			next = stop
		}
	}
	return next
}

// RemainingStops returns the incomplete stops ordered by sequence
func (s *Shipment) RemainingStops() []*Stop {
	remaining := make([]*Stop, 0, len(s.Stops))
	for seq := 1; seq <= len(s.Stops); seq++ {
		for _, stop := range s.Stops {
			if stop.Sequence == seq && !stop.Completed {
				remaining = append(remaining, stop)
			}
		}
	}
	return remaining
}

// TerminalStop returns the highest-sequence stop
func (s *Shipment) TerminalStop() *Stop {
	var terminal *Stop
	for _, stop := range s.Stops {
		if terminal == nil || stop.Sequence > terminal.Sequence {
			terminal = stop
		}
	}
	return terminal
}

func (s *Shipment) String() string {
	return fmt.Sprintf("Shipment(id=%s, ref=%s, vehicle=%s, stops=%d, status=%s)",
		s.ID, s.Reference, s.VehicleID, len(s.Stops), s.Status)
}
