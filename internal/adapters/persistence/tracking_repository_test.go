package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleettrack-go/internal/adapters/persistence"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/test/helpers"
)

func newRepoEnv(t *testing.T) (*persistence.GormTrackingRepository, *helpers.CorridorFixture, time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	db := helpers.NewTestDB(t)
	fixture := helpers.NewCorridor(t, now)
	helpers.SeedCorridor(t, db, fixture)
	return persistence.NewGormTrackingRepository(db), fixture, now
}

func snapPoint(fixture *helpers.CorridorFixture, progress float64, ts time.Time) *tracking.SnappedPoint {
	return &tracking.SnappedPoint{
		Position: &tracking.Position{
			VehicleID: fixture.Shipment.VehicleID,
			Timestamp: ts,
			Location:  fixture.Route.Line.At(progress),
			AccuracyM: 8,
			Source:    "gps",
		},
		RouteID:  fixture.Route.ID,
		Snapped:  fixture.Route.Line.At(progress),
		Progress: progress,
	}
}

func TestTrackingRepository_ShipmentLookups(t *testing.T) {
	// Arrange
	repo, _, _ := newRepoEnv(t)

	// Act / Assert: all three lookup paths resolve the seeded shipment
	byID, err := repo.GetShipmentByID(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "REF-1001", byID.Reference)
	require.Len(t, byID.Stops, 2)
	assert.Equal(t, "stop-1", byID.Stops[0].ID)
	assert.Equal(t, "stop-2", byID.Stops[1].ID)

	byRef, err := repo.GetShipmentByReference(context.Background(), "REF-1001")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byRef.ID)

	byVehicle, err := repo.GetShipmentByVehicle(context.Background(), "veh-1")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byVehicle.ID)

	_, err = repo.GetShipmentByID(context.Background(), "ship-missing")
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestTrackingRepository_VehicleLookupSkipsTerminalShipments(t *testing.T) {
	repo, _, _ := newRepoEnv(t)
	require.NoError(t, repo.UpdateShipmentStatus(context.Background(), "ship-1", tracking.ShipmentStatusCompleted))

	_, err := repo.GetShipmentByVehicle(context.Background(), "veh-1")

	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestTrackingRepository_UpdateShipmentStatus(t *testing.T) {
	repo, _, _ := newRepoEnv(t)

	require.NoError(t, repo.UpdateShipmentStatus(context.Background(), "ship-1", tracking.ShipmentStatusInTransit))

	stored, err := repo.GetShipmentByID(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, tracking.ShipmentStatusInTransit, stored.Status)

	err = repo.UpdateShipmentStatus(context.Background(), "ship-missing", tracking.ShipmentStatusInTransit)
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestTrackingRepository_AppendPositionsIsIdempotent(t *testing.T) {
	// Arrange
	repo, fixture, now := newRepoEnv(t)
	points := []*tracking.SnappedPoint{
		snapPoint(fixture, 0.2, now.Add(1*time.Minute)),
		snapPoint(fixture, 0.25, now.Add(2*time.Minute)),
	}

	// Act
	inserted, err := repo.AppendPositions(context.Background(), "veh-1", points)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// The same (vehicle, ts) pairs plus one new point
	points = append(points, snapPoint(fixture, 0.3, now.Add(3*time.Minute)))
	inserted, err = repo.AppendPositions(context.Background(), "veh-1", points)

	// Assert: only the new row lands
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	inserted, err = repo.AppendPositions(context.Background(), "veh-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestTrackingRepository_UpdateStopActual(t *testing.T) {
	// Arrange
	repo, _, now := newRepoEnv(t)
	arrival := now.Add(45 * time.Minute)
	departure := now.Add(55 * time.Minute)

	// Act
	require.NoError(t, repo.UpdateStopActual(context.Background(), "stop-1", &arrival, &departure, true))

	// Assert
	stops, err := repo.GetStops(context.Background(), "ship-1")
	require.NoError(t, err)
	require.NotNil(t, stops[0].ActualArrival)
	assert.Equal(t, arrival.Unix(), stops[0].ActualArrival.Unix())
	require.NotNil(t, stops[0].ActualDeparture)
	assert.Equal(t, departure.Unix(), stops[0].ActualDeparture.Unix())
	assert.True(t, stops[0].Completed)

	err = repo.UpdateStopActual(context.Background(), "stop-missing", &arrival, nil, false)
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestTrackingRepository_SaveRouteSwapsTheActiveRoute(t *testing.T) {
	// Arrange: a second route for the same shipment
	repo, fixture, now := newRepoEnv(t)
	replacement := helpers.StraightRoute(t, "route-2", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -121.9), 90, now)

	// Act
	require.NoError(t, repo.SaveRoute(context.Background(), "ship-1", replacement, true))

	// Assert: single active route, shipment repointed, geometry round-trips
	active, err := repo.GetActiveRoute(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "route-2", active.ID)
	assert.InDelta(t, replacement.DistanceM, active.DistanceM, 1.0)
	assert.InDelta(t, replacement.Duration.Seconds(), active.Duration.Seconds(), 1.0)
	require.Len(t, active.Segments, 1)
	assert.InDelta(t, 90, active.Segments[0].FreeFlowKPH, 0.001)

	points := active.Line.Points()
	require.Len(t, points, 2)
	assert.InDelta(t, fixture.Route.Line.Points()[0].Lat, points[0].Lat, 1e-4)

	stored, err := repo.GetShipmentByID(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "route-2", stored.ActiveRouteID)
}

func TestTrackingRepository_ReplaceActiveRouteWithReroute(t *testing.T) {
	// Arrange: an inactive candidate and a proposed reroute pointing at it
	repo, _, now := newRepoEnv(t)
	candidate := helpers.StraightRoute(t, "route-alt", helpers.Pt(37.2, -122.0), helpers.Pt(37.9, -122.0), 100, now)
	require.NoError(t, repo.SaveRoute(context.Background(), "ship-1", candidate, false))

	reroute := &tracking.Reroute{
		ID:           "rr-1",
		ShipmentID:   "ship-1",
		CreatedAt:    now,
		OldRouteID:   "route-1",
		NewRouteID:   "route-alt",
		TimeSavedMin: 14,
		Reason:       "faster alternative available",
		Status:       tracking.RerouteStatusProposed,
	}
	require.NoError(t, repo.InsertReroute(context.Background(), reroute))

	// Act
	require.NoError(t, repo.ReplaceActiveRouteWithReroute(context.Background(), "ship-1", "rr-1"))

	// Assert: atomic swap plus reroute acceptance
	active, err := repo.GetActiveRoute(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "route-alt", active.ID)

	stored, err := repo.GetReroute(context.Background(), "rr-1")
	require.NoError(t, err)
	assert.Equal(t, tracking.RerouteStatusAccepted, stored.Status)

	shipment, err := repo.GetShipmentByID(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "route-alt", shipment.ActiveRouteID)
}

func TestTrackingRepository_ReplaceRejectsAnsweredReroutes(t *testing.T) {
	repo, _, now := newRepoEnv(t)
	reroute := &tracking.Reroute{
		ID:         "rr-1",
		ShipmentID: "ship-1",
		CreatedAt:  now,
		OldRouteID: "route-1",
		NewRouteID: "route-alt",
		Status:     tracking.RerouteStatusRejected,
	}
	require.NoError(t, repo.InsertReroute(context.Background(), reroute))

	err := repo.ReplaceActiveRouteWithReroute(context.Background(), "ship-1", "rr-1")

	assert.True(t, shared.IsKind(err, shared.KindStateConflict))
}

func TestTrackingRepository_ProposedRerouteLifecycle(t *testing.T) {
	// Arrange
	repo, _, now := newRepoEnv(t)

	// No proposal yet: nil, not an error
	proposed, err := repo.GetProposedReroute(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Nil(t, proposed)

	reroute := &tracking.Reroute{
		ID:         "rr-1",
		ShipmentID: "ship-1",
		CreatedAt:  now,
		OldRouteID: "route-1",
		NewRouteID: "route-alt",
		Status:     tracking.RerouteStatusProposed,
	}
	require.NoError(t, repo.InsertReroute(context.Background(), reroute))

	// Act
	proposed, err = repo.GetProposedReroute(context.Background(), "ship-1")
	require.NoError(t, err)
	require.NotNil(t, proposed)
	assert.Equal(t, "rr-1", proposed.ID)

	require.NoError(t, repo.UpdateRerouteStatus(context.Background(), "rr-1", tracking.RerouteStatusExpired))

	// Assert: an answered proposal no longer surfaces
	proposed, err = repo.GetProposedReroute(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Nil(t, proposed)

	err = repo.UpdateRerouteStatus(context.Background(), "rr-missing", tracking.RerouteStatusExpired)
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestTrackingRepository_UpsertAdvisoryKeepsOneActive(t *testing.T) {
	// Arrange
	repo, _, now := newRepoEnv(t)
	first := &tracking.Advisory{
		ID: "adv-1", ShipmentID: "ship-1", ObservedAt: now,
		Reason: tracking.ReasonOnTime, Confidence: 0.9, Severity: tracking.SeverityLow,
	}
	second := &tracking.Advisory{
		ID: "adv-2", ShipmentID: "ship-1", ObservedAt: now.Add(time.Minute),
		Reason: tracking.ReasonTrafficCongestion, Confidence: 0.7,
		Explanation: "traffic at 40% of free flow", Severity: tracking.SeverityMedium,
	}

	// Act
	require.NoError(t, repo.UpsertAdvisory(context.Background(), "ship-1", first))
	require.NoError(t, repo.UpsertAdvisory(context.Background(), "ship-1", second))

	// Assert: the latest advisory supersedes the first
	active, err := repo.GetActiveAdvisory(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "adv-2", active.ID)
	assert.Equal(t, tracking.ReasonTrafficCongestion, active.Reason)

	_, err = repo.GetActiveAdvisory(context.Background(), "ship-missing")
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestTrackingRepository_ListActiveShipments(t *testing.T) {
	// Arrange: one active shipment and one already completed
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	db := helpers.NewTestDB(t)
	fixture := helpers.NewCorridor(t, now)
	helpers.SeedCorridor(t, db, fixture)
	repo := persistence.NewGormTrackingRepository(db)

	stop := helpers.StopAt(t, "stop-9", "ship-2", 1, "Depot", helpers.Pt(38.0, -122.0), now.Add(time.Hour), 0)
	done := helpers.Shipment(t, "ship-2", "REF-2002", "veh-2", []*tracking.Stop{stop}, now.Add(time.Hour), now)
	done.Status = tracking.ShipmentStatusCompleted
	helpers.SeedShipment(t, db, done)

	active, err := repo.ListActiveShipments(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ship-1", active[0].ID)
	assert.Len(t, active[0].Stops, 2)

	// Completing the only shipment empties the active set
	require.NoError(t, repo.UpdateShipmentStatus(context.Background(), "ship-1", tracking.ShipmentStatusCompleted))
	active, err = repo.ListActiveShipments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTrackingRepository_ETASamplesAndEvents(t *testing.T) {
	// Arrange
	repo, _, now := newRepoEnv(t)
	samples := []*tracking.ETASample{
		{
			ID: "eta-1", ShipmentID: "ship-1", StopID: "stop-1", ObservedAt: now,
			EstimatedArrival: now.Add(20 * time.Minute), ResidualM: 25000,
			ResidualRaw: 19 * time.Minute, ResidualSmoothed: 20 * time.Minute,
			Bucket: tracking.ConfidenceHigh, Confidence: 0.92,
		},
		{
			ID: "eta-2", ShipmentID: "ship-1", StopID: "stop-2", ObservedAt: now,
			EstimatedArrival: now.Add(70 * time.Minute), ResidualM: 75000,
			ResidualRaw: 66 * time.Minute, ResidualSmoothed: 68 * time.Minute,
			Bucket: tracking.ConfidenceMedium, Confidence: 0.7,
		},
	}

	// Act / Assert
	require.NoError(t, repo.InsertETASamples(context.Background(), samples))
	require.NoError(t, repo.InsertETASamples(context.Background(), nil))
	require.NoError(t, repo.InsertEvent(context.Background(), "ship-1", "position_update", []byte(`{"progress":0.25}`), now))
}
