package helpers

import (
	"testing"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Pt is shorthand for building a coordinate in fixtures
func Pt(lat, lon float64) geo.Point {
	return geo.Point{Lat: lat, Lon: lon}
}

// StraightRoute builds a single-segment route between two points with a
// uniform free-flow speed. Duration is derived from distance and speed.
func StraightRoute(t *testing.T, id string, from, to geo.Point, freeFlowKPH float64, now time.Time) *tracking.Route {
	t.Helper()
	line, err := geo.NewPolyline([]geo.Point{from, to})
	if err != nil {
		t.Fatalf("failed to build polyline: %v", err)
	}
	duration := time.Duration(line.Length() / (freeFlowKPH / 3.6) * float64(time.Second))
	route, err := tracking.NewRoute(id, line, duration, []tracking.RouteSegment{
		{StartFraction: 0, EndFraction: 1, FreeFlowKPH: freeFlowKPH},
	}, "truck", "test", now)
	if err != nil {
		t.Fatalf("failed to build route: %v", err)
	}
	return route
}

// StopAt builds a stop with a planned window around the given arrival
func StopAt(t *testing.T, id, shipmentID string, sequence int, name string, location geo.Point, plannedArrival time.Time, serviceMinutes int) *tracking.Stop {
	t.Helper()
	stop, err := tracking.NewStop(id, shipmentID, sequence, name, location,
		plannedArrival, plannedArrival.Add(time.Duration(serviceMinutes)*time.Minute), serviceMinutes)
	if err != nil {
		t.Fatalf("failed to build stop: %v", err)
	}
	return stop
}

// Shipment builds a shipment over the given stops
func Shipment(t *testing.T, id, reference, vehicleID string, stops []*tracking.Stop, promisedAt, now time.Time) *tracking.Shipment {
	t.Helper()
	shipment, err := tracking.NewShipment(id, reference, vehicleID, stops, promisedAt, now)
	if err != nil {
		t.Fatalf("failed to build shipment: %v", err)
	}
	return shipment
}

// CorridorFixture is a ready-made northbound corridor: a 100 km straight
// route with a midway stop and a terminal stop.
type CorridorFixture struct {
	Shipment *tracking.Shipment
	Route    *tracking.Route
	Mid      *tracking.Stop
	Terminal *tracking.Stop
}

// NewCorridor builds the standard corridor used across pipeline tests
func NewCorridor(t *testing.T, now time.Time) *CorridorFixture {
	t.Helper()
	origin := Pt(37.0, -122.0)
	end := Pt(37.9, -122.0)

	route := StraightRoute(t, "route-1", origin, end, 80, now)
	mid := StopAt(t, "stop-1", "ship-1", 1, "Mid DC", Pt(37.45, -122.0), now.Add(45*time.Minute), 10)
	terminal := StopAt(t, "stop-2", "ship-1", 2, "Final DC", end, now.Add(2*time.Hour), 0)
	shipment := Shipment(t, "ship-1", "REF-1001", "veh-1", []*tracking.Stop{mid, terminal}, now.Add(2*time.Hour), now)
	shipment.ActiveRouteID = route.ID

	return &CorridorFixture{Shipment: shipment, Route: route, Mid: mid, Terminal: terminal}
}
