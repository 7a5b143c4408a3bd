package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/test/helpers"
)

func newEstimator() *apptracking.Estimator {
	return apptracking.NewEstimator(apptracking.DefaultETAConfig(), shared.NewSequentialIDGenerator("eta"))
}

func snapAt(t *testing.T, fixture *helpers.CorridorFixture, progress float64, now time.Time) *tracking.SnappedPoint {
	t.Helper()
	return &tracking.SnappedPoint{
		Position: &tracking.Position{
			VehicleID: fixture.Shipment.VehicleID,
			Timestamp: now,
			Location:  fixture.Route.Line.At(progress),
		},
		RouteID:   fixture.Route.ID,
		Snapped:   fixture.Route.Line.At(progress),
		Progress:  progress,
		EdgeSpeed: 75,
	}
}

func TestEstimator_PerStopETAs(t *testing.T) {
	// Arrange: quarter of the way along a 100 km corridor at 80 km/h
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	estimator := newEstimator()
	smoothed := make(map[string]time.Duration)

	// Act
	est := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		nil, nil, smoothed, now)

	// Assert: one sample per remaining stop, ordered by sequence
	require.Len(t, est.Samples, 2)
	mid, terminal := est.Samples[0], est.Samples[1]
	assert.Equal(t, fixture.Mid.ID, mid.StopID)
	assert.Equal(t, fixture.Terminal.ID, terminal.StopID)

	// Mid stop: 25 km remaining at 80 km/h is ~18.8 min
	assert.InDelta(t, 18.8, mid.ResidualSmoothed.Minutes(), 1.0)

	// Terminal: 75 km of travel plus 10 min of service at the mid stop
	assert.InDelta(t, 56.3+10, terminal.ResidualSmoothed.Minutes(), 1.5)
	assert.True(t, terminal.EstimatedArrival.After(mid.EstimatedArrival))
}

func TestEstimator_SmoothingConverges(t *testing.T) {
	// Arrange: seed the EWMA with an older, larger residual
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	estimator := newEstimator()
	smoothed := map[string]time.Duration{
		fixture.Mid.ID:      40 * time.Minute,
		fixture.Terminal.ID: 90 * time.Minute,
	}

	// Act
	est := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		nil, nil, smoothed, now)

	// Assert: 0.3*raw + 0.7*prev for the mid stop (raw ~18.8 min)
	require.Len(t, est.Samples, 2)
	expected := 0.3*18.8 + 0.7*40
	assert.InDelta(t, expected, est.Samples[0].ResidualSmoothed.Minutes(), 1.0)

	// The map carries the new smoothed state for the next pass
	assert.Equal(t, est.Samples[0].ResidualSmoothed, smoothed[fixture.Mid.ID])
}

func TestEstimator_TrafficSlowsETA(t *testing.T) {
	// Arrange: traffic at half of free-flow speed
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	estimator := newEstimator()

	traffic := &signals.TrafficSample{SpeedKPH: 40, FreeFlowKPH: 80}

	// Act
	clear := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		nil, nil, make(map[string]time.Duration), now)
	congested := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		traffic, nil, make(map[string]time.Duration), now)

	// Assert: halved effective speed doubles the residual
	ratio := float64(congested.Samples[0].ResidualRaw) / float64(clear.Samples[0].ResidualRaw)
	assert.InDelta(t, 2.0, ratio, 0.05)
}

func TestEstimator_EffectiveSpeedFloor(t *testing.T) {
	// Near-standstill traffic still yields a finite ETA via the speed floor
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	estimator := newEstimator()

	traffic := &signals.TrafficSample{SpeedKPH: 1, FreeFlowKPH: 80}

	est := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		traffic, nil, make(map[string]time.Duration), now)

	// 25 km at the 5 km/h floor is 5 h to the mid stop
	assert.InDelta(t, 300, est.Samples[0].ResidualRaw.Minutes(), 10)
}

func TestEstimator_ConfidenceBuckets(t *testing.T) {
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	estimator := newEstimator()

	traffic := &signals.TrafficSample{SpeedKPH: 78, FreeFlowKPH: 80}
	weather := &signals.WeatherSample{}

	// Both signals present and a stable estimate: high
	smoothed := make(map[string]time.Duration)
	est := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		traffic, weather, smoothed, now)
	est = estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		traffic, weather, smoothed, now)
	assert.Equal(t, tracking.ConfidenceHigh, est.Bucket)

	// One signal missing caps the bucket at medium even when stable
	est = estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		traffic, nil, smoothed, now)
	assert.Equal(t, tracking.ConfidenceMedium, est.Bucket)
}

func TestEstimator_LargeDeviationDegradesConfidence(t *testing.T) {
	// Seed a smoothed residual wildly different from the raw one
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	estimator := newEstimator()

	traffic := &signals.TrafficSample{SpeedKPH: 78, FreeFlowKPH: 80}
	weather := &signals.WeatherSample{}
	smoothed := map[string]time.Duration{
		fixture.Mid.ID:      5 * time.Hour,
		fixture.Terminal.ID: 9 * time.Hour,
	}

	est := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		traffic, weather, smoothed, now)

	assert.Equal(t, tracking.ConfidenceLow, est.Bucket)
}

func TestEstimator_OffRouteStopDegradesToLow(t *testing.T) {
	// Arrange: a stop ~700 m off the polyline
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	fixture.Mid.Location = helpers.Pt(37.45, -121.992)
	estimator := newEstimator()

	traffic := &signals.TrafficSample{SpeedKPH: 78, FreeFlowKPH: 80}
	weather := &signals.WeatherSample{}

	// Act
	est := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.25, now),
		traffic, weather, make(map[string]time.Duration), now)

	// Assert
	assert.True(t, est.OffRouteStop)
	assert.Equal(t, tracking.ConfidenceLow, est.Bucket)
}

func TestEstimator_PassedStopHasZeroResidual(t *testing.T) {
	// Snapped beyond the mid stop's projection: residual clamps to zero
	now := time.Now()
	fixture := helpers.NewCorridor(t, now)
	estimator := newEstimator()

	est := estimator.Estimate(fixture.Shipment, fixture.Route, snapAt(t, fixture, 0.6, now),
		nil, nil, make(map[string]time.Duration), now)

	require.Len(t, est.Samples, 2)
	assert.InDelta(t, 0, est.Samples[0].ResidualM, 0.001)
	assert.Equal(t, time.Duration(0), est.Samples[0].ResidualRaw)
}
