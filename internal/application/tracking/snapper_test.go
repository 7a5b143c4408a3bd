package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/test/helpers"
)

func testPosition(lat, lon, accuracy float64, at time.Time) *tracking.Position {
	return &tracking.Position{
		VehicleID: "veh-1",
		Timestamp: at,
		Location:  helpers.Pt(lat, lon),
		AccuracyM: accuracy,
		Source:    "test",
	}
}

func TestSnapper_AcceptsFixOnRoute(t *testing.T) {
	// Arrange
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	// Act
	snap, err := snapper.Snap(testPosition(37.45, -122.0, 10, now), route, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "route-1", snap.RouteID)
	assert.InDelta(t, 0.5, snap.Progress, 0.01)
	assert.Less(t, snap.CrossTrackM, 5.0)
}

func TestSnapper_RejectsLowAccuracy(t *testing.T) {
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	_, err := snapper.Snap(testPosition(37.45, -122.0, 51, now), route, nil)

	assert.ErrorIs(t, err, apptracking.ErrLowAccuracy)
}

func TestSnapper_AccuracyExactlyAtBoundAccepted(t *testing.T) {
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	_, err := snapper.Snap(testPosition(37.45, -122.0, 50, now), route, nil)

	assert.NoError(t, err)
}

func TestSnapper_RejectsOffPolyline(t *testing.T) {
	// ~88 m east of the route, beyond max(60, 2x10) cross-track bound
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	_, err := snapper.Snap(testPosition(37.45, -121.999, 10, now), route, nil)

	assert.ErrorIs(t, err, apptracking.ErrOffPolyline)
}

func TestSnapper_WideAccuracyRaisesCrossTrackBound(t *testing.T) {
	// Same ~88 m offset is tolerated when accuracy is 50 m: bound becomes
	// max(60, 2x50) = 100 m.
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	snap, err := snapper.Snap(testPosition(37.45, -121.999, 50, now), route, nil)

	require.NoError(t, err)
	assert.Greater(t, snap.CrossTrackM, 60.0)
}

func TestSnapper_RejectsBacktrack(t *testing.T) {
	// Arrange: previously accepted at the midpoint
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	prev, err := snapper.Snap(testPosition(37.45, -122.0, 10, now), route, nil)
	require.NoError(t, err)

	// Act: a fix far behind the accepted progress
	_, err = snapper.Snap(testPosition(37.2, -122.0, 10, now.Add(10*time.Second)), route, prev)

	// Assert
	assert.ErrorIs(t, err, apptracking.ErrBacktrack)
}

func TestSnapper_ToleratesBackwardJitter(t *testing.T) {
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	prev, err := snapper.Snap(testPosition(37.45, -122.0, 10, now), route, nil)
	require.NoError(t, err)

	// ~6 m behind the accepted snap, inside the 20 m tolerance
	snap, err := snapper.Snap(testPosition(37.44995, -122.0, 10, now.Add(10*time.Second)), route, prev)

	require.NoError(t, err)
	assert.InDelta(t, prev.Progress, snap.Progress, 0.001)
}

func TestSnapper_EdgeSpeedFiltered(t *testing.T) {
	// Arrange: ~1112 m in 60 s is ~66.7 km/h raw
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	prev, err := snapper.Snap(testPosition(37.0, -122.0, 10, now), route, nil)
	require.NoError(t, err)
	prev.EdgeSpeed = 50

	// Act
	snap, err := snapper.Snap(testPosition(37.01, -122.0, 10, now.Add(60*time.Second)), route, prev)

	// Assert: 0.4*66.7 + 0.6*50
	require.NoError(t, err)
	assert.InDelta(t, 56.7, snap.EdgeSpeed, 1.5)
}

func TestSnapper_FirstFixUsesReportedSpeed(t *testing.T) {
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	pos := testPosition(37.45, -122.0, 10, now)
	speed := 72.0
	pos.SpeedKPH = &speed

	snap, err := snapper.Snap(pos, route, nil)

	require.NoError(t, err)
	assert.InDelta(t, 72.0, snap.EdgeSpeed, 0.01)
}

func TestSnapper_EdgeSpeedClampedAtCeiling(t *testing.T) {
	// 11 km in 60 s would be ~667 km/h raw; the ceiling caps it at 140
	now := time.Now()
	route := helpers.StraightRoute(t, "route-1", helpers.Pt(37.0, -122.0), helpers.Pt(37.9, -122.0), 80, now)
	snapper := apptracking.NewSnapper(apptracking.DefaultSnapperConfig())

	prev, err := snapper.Snap(testPosition(37.0, -122.0, 10, now), route, nil)
	require.NoError(t, err)
	prev.EdgeSpeed = 140

	snap, err := snapper.Snap(testPosition(37.1, -122.0, 10, now.Add(60*time.Second)), route, prev)

	require.NoError(t, err)
	assert.LessOrEqual(t, snap.EdgeSpeed, 140.0)
}
