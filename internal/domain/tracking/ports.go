package tracking

import (
	"context"
	"time"
)

// Repository is the narrow persistence contract for shipment-scoped state.
// All operations are atomic at the single-entity level; multi-entity
// operations are explicitly named. Failures carry shared.ErrorKind
// TRANSIENT (retryable), CONFLICT (re-read and retry), or NOT_FOUND.
type Repository interface {
	GetShipmentByID(ctx context.Context, id string) (*Shipment, error)
	GetShipmentByReference(ctx context.Context, reference string) (*Shipment, error)
	GetShipmentByVehicle(ctx context.Context, vehicleID string) (*Shipment, error)
	ListActiveShipments(ctx context.Context) ([]*Shipment, error)
	UpdateShipmentStatus(ctx context.Context, shipmentID string, status ShipmentStatus) error

	// AppendPositions is idempotent per (vehicle_id, timestamp); returns the
	// number of rows actually inserted.
	AppendPositions(ctx context.Context, vehicleID string, points []*SnappedPoint) (int, error)

	GetStops(ctx context.Context, shipmentID string) ([]*Stop, error)
	UpdateStopActual(ctx context.Context, stopID string, arrival, departure *time.Time, completed bool) error

	SaveRoute(ctx context.Context, shipmentID string, route *Route, active bool) error
	GetActiveRoute(ctx context.Context, shipmentID string) (*Route, error)
	// ReplaceActiveRouteWithReroute atomically swaps the shipment's active
	// route for the reroute's candidate and marks the reroute accepted.
	ReplaceActiveRouteWithReroute(ctx context.Context, shipmentID, rerouteID string) error

	InsertReroute(ctx context.Context, reroute *Reroute) error
	GetReroute(ctx context.Context, id string) (*Reroute, error)
	GetProposedReroute(ctx context.Context, shipmentID string) (*Reroute, error)
	UpdateRerouteStatus(ctx context.Context, id string, status RerouteStatus) error

	// UpsertAdvisory supersedes the previous active advisory for the shipment
	UpsertAdvisory(ctx context.Context, shipmentID string, advisory *Advisory) error
	GetActiveAdvisory(ctx context.Context, shipmentID string) (*Advisory, error)

	InsertETASamples(ctx context.Context, samples []*ETASample) error

	// InsertEvent appends to the audit log
	InsertEvent(ctx context.Context, shipmentID, eventType string, payload []byte, ts time.Time) error
}

// EventPublisher fans events out to subscribed client sessions.
// Publish must never block the caller.
type EventPublisher interface {
	Publish(shipmentID string, event Event)
}
