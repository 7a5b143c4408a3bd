package tracking

import (
	"context"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
)

// Service is the outer command and query surface. It routes shipment-scoped
// commands through the owning actor so every mutation stays serialized, and
// serves reads from actor snapshots or, for retired shipments, the repository.
type Service struct {
	repo     tracking.Repository
	registry *Registry
	hub      *Hub
	clock    shared.Clock
	ids      shared.IDGenerator
}

// NewService creates the tracking service
func NewService(repo tracking.Repository, registry *Registry, hub *Hub, clock shared.Clock, ids shared.IDGenerator) *Service {
	return &Service{repo: repo, registry: registry, hub: hub, clock: clock, ids: ids}
}

// GetShipment returns the shipment snapshot by customer-facing reference.
// Active shipments answer from their actor; terminal shipments answer from
// the repository.
func (s *Service) GetShipment(ctx context.Context, reference string) (*ShipmentSnapshot, error) {
	shipment, err := s.repo.GetShipmentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if shipment.IsActive() {
		actor, err := s.registry.ForShipment(ctx, shipment.ID)
		if err == nil {
			return actor.Snapshot(ctx)
		}
		if !shared.IsKind(err, shared.KindStateConflict) {
			return nil, err
		}
		// Raced with the shipment going terminal; fall through to the
		// repository view.
	}

	advisory, err := s.repo.GetActiveAdvisory(ctx, shipment.ID)
	if err != nil && !shared.IsKind(err, shared.KindNotFound) {
		return nil, err
	}
	residualPct := 100.0
	if shipment.Status == tracking.ShipmentStatusCompleted {
		residualPct = 0
	}
	return &ShipmentSnapshot{
		Shipment:        shipment,
		Advisory:        advisory,
		ResidualPercent: residualPct,
	}, nil
}

// StartShipment explicitly transitions a pending shipment to in_transit
func (s *Service) StartShipment(ctx context.Context, shipmentID string) error {
	actor, err := s.registry.ForShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	return actor.Start(ctx)
}

// CancelShipment transitions any non-terminal shipment to cancelled
func (s *Service) CancelShipment(ctx context.Context, shipmentID string) error {
	actor, err := s.registry.ForShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	return actor.Cancel(ctx)
}

// ProposeReroute explicitly triggers a reroute evaluation for the shipment.
// A nil reroute with nil error means no alternative cleared the threshold.
func (s *Service) ProposeReroute(ctx context.Context, shipmentID string) (*tracking.Reroute, error) {
	actor, err := s.registry.ForShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	return actor.ProposeReroute(ctx)
}

// AcceptReroute activates a proposed reroute by id
func (s *Service) AcceptReroute(ctx context.Context, rerouteID string) (*tracking.Reroute, error) {
	reroute, err := s.repo.GetReroute(ctx, rerouteID)
	if err != nil {
		return nil, err
	}
	actor, err := s.registry.ForShipment(ctx, reroute.ShipmentID)
	if err != nil {
		return nil, err
	}
	return actor.AcceptReroute(ctx, rerouteID)
}

// RejectReroute declines a proposed reroute by id
func (s *Service) RejectReroute(ctx context.Context, rerouteID string) (*tracking.Reroute, error) {
	reroute, err := s.repo.GetReroute(ctx, rerouteID)
	if err != nil {
		return nil, err
	}
	actor, err := s.registry.ForShipment(ctx, reroute.ShipmentID)
	if err != nil {
		return nil, err
	}
	return actor.RejectReroute(ctx, rerouteID)
}

// ReportVehicleIssue records a manual vehicle event used by delay classification
func (s *Service) ReportVehicleIssue(ctx context.Context, shipmentID, note string) error {
	actor, err := s.registry.ForShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	return actor.ReportVehicleIssue(ctx, note, s.clock.Now())
}

// RecordShiftStart records the driver's shift start for hours-of-service scoring
func (s *Service) RecordShiftStart(ctx context.Context, shipmentID string, at time.Time) error {
	actor, err := s.registry.ForShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	return actor.RecordShiftStart(ctx, at)
}

// OpenSession opens a durable subscriber session
func (s *Service) OpenSession() *Session {
	return s.hub.OpenSession(s.ids.NewID())
}

// CloseSession tears a session down and removes it from all topics
func (s *Service) CloseSession(session *Session) {
	s.hub.CloseSession(session)
}

// Subscribe attaches a session to a shipment's event stream. The shipment
// must exist; subscribing to terminal shipments is allowed and simply stays
// quiet.
func (s *Service) Subscribe(ctx context.Context, session *Session, shipmentID string) error {
	if _, err := s.repo.GetShipmentByID(ctx, shipmentID); err != nil {
		return err
	}
	s.hub.Subscribe(session, shipmentID)
	return nil
}

// Unsubscribe detaches a session from a shipment's event stream
func (s *Service) Unsubscribe(session *Session, shipmentID string) {
	s.hub.Unsubscribe(session, shipmentID)
}
