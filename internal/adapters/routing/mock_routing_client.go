package routing

import (
	"context"
	"time"

	domainRouting "github.com/andrescamacho/fleettrack-go/internal/domain/routing"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// MockRoutingClient provides synthetic great-circle routes for tests and
// local development (no routing backend required). Behavior can be overridden
// per call through the function fields.
type MockRoutingClient struct {
	ids   shared.IDGenerator
	clock shared.Clock

	// CruiseKPH is the uniform free-flow speed of synthetic routes
	CruiseKPH float64
	// AlternativePenalty stretches each successive alternative's distance
	AlternativePenalty float64

	RouteFn        func(ctx context.Context, waypoints []geo.Point, profile domainRouting.Profile) (*tracking.Route, error)
	AlternativesFn func(ctx context.Context, waypoints []geo.Point, profile domainRouting.Profile, k int) ([]*tracking.Route, error)
	SnapFn         func(ctx context.Context, point geo.Point) (geo.Point, error)
}

// NewMockRoutingClient creates a mock routing client
func NewMockRoutingClient(ids shared.IDGenerator, clock shared.Clock) *MockRoutingClient {
	return &MockRoutingClient{
		ids:                ids,
		clock:              clock,
		CruiseKPH:          65,
		AlternativePenalty: 0.08,
	}
}

var _ domainRouting.RoutingClient = (*MockRoutingClient)(nil)

// Route returns a straight-line route through the waypoints
func (c *MockRoutingClient) Route(ctx context.Context, waypoints []geo.Point, profile domainRouting.Profile) (*tracking.Route, error) {
	if c.RouteFn != nil {
		return c.RouteFn(ctx, waypoints, profile)
	}
	return c.synthesize(waypoints, profile, 1.0)
}

// Alternatives returns k synthetic routes, each a little longer than the last
func (c *MockRoutingClient) Alternatives(ctx context.Context, waypoints []geo.Point, profile domainRouting.Profile, k int) ([]*tracking.Route, error) {
	if c.AlternativesFn != nil {
		return c.AlternativesFn(ctx, waypoints, profile, k)
	}
	if k < 1 {
		k = 1
	}
	routes := make([]*tracking.Route, 0, k)
	for i := 0; i < k; i++ {
		route, err := c.synthesize(waypoints, profile, 1.0+float64(i)*c.AlternativePenalty)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// Snap returns the point unchanged
func (c *MockRoutingClient) Snap(ctx context.Context, point geo.Point) (geo.Point, error) {
	if c.SnapFn != nil {
		return c.SnapFn(ctx, point)
	}
	return point, nil
}

// synthesize builds a single-segment route over the waypoint polyline with
// the duration stretched by the given factor.
func (c *MockRoutingClient) synthesize(waypoints []geo.Point, profile domainRouting.Profile, stretch float64) (*tracking.Route, error) {
	line, err := geo.NewPolyline(waypoints)
	if err != nil {
		return nil, shared.WrapDomainError(shared.KindInvalidInput, "cannot synthesize route", err)
	}
	hours := line.Length() / 1000 / c.CruiseKPH * stretch
	duration := time.Duration(hours * float64(time.Hour))
	segments := []tracking.RouteSegment{{StartFraction: 0, EndFraction: 1, FreeFlowKPH: c.CruiseKPH}}
	return tracking.NewRoute(c.ids.NewID(), line, duration, segments,
		string(profile.Costing), "mock", c.clock.Now())
}
