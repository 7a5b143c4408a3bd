package routing

import (
	"context"

	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Costing selects the vehicle model the routing backend optimizes for
type Costing string

const (
	CostingTruck Costing = "truck"
	CostingAuto  Costing = "auto"
)

// Profile enumerates the recognized routing constraints
type Profile struct {
	HeightM       float64
	WidthM        float64
	WeightTons    float64
	HazmatAllowed bool
	AvoidTolls    bool
	Costing       Costing
}

// DefaultTruckProfile is a common 13.6m trailer profile
func DefaultTruckProfile() Profile {
	return Profile{
		HeightM:    4.11,
		WidthM:     2.6,
		WeightTons: 36.0,
		Costing:    CostingTruck,
	}
}

// RoutingClient wraps the external routing service.
// Implementations must cap request latency with a timeout, attempt a single
// fallback provider when the primary fails, and surface ROUTING_UNAVAILABLE
// when both fail. Results are cacheable by (waypoints, profile).
type RoutingClient interface {
	// Route returns the fastest route through the waypoints in order
	Route(ctx context.Context, waypoints []geo.Point, profile Profile) (*tracking.Route, error)

	// Alternatives returns up to k routes ordered fastest-first;
	// the first entry is the baseline
	Alternatives(ctx context.Context, waypoints []geo.Point, profile Profile, k int) ([]*tracking.Route, error)

	// Snap projects a raw coordinate to the nearest routable road.
	// Used only when no active route polyline is cached for local projection.
	Snap(ctx context.Context, point geo.Point) (geo.Point, error)
}
