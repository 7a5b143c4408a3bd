package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/test/helpers"
)

func TestDwellDetector_ArrivalInsideRadiusStopped(t *testing.T) {
	// Arrange
	now := time.Now()
	stop := helpers.StopAt(t, "stop-1", "ship-1", 1, "DC", helpers.Pt(37.45, -122.0), now, 10)
	detector := apptracking.NewDwellDetector(apptracking.DefaultDwellConfig())

	// Act: ~55 m from the stop, below the stopped threshold
	event, at := detector.Observe(stop, helpers.Pt(37.4505, -122.0), 2.0, now)

	// Assert
	assert.Equal(t, apptracking.DwellArrived, event)
	assert.Equal(t, now, at)
}

func TestDwellDetector_NoArrivalWhileMoving(t *testing.T) {
	now := time.Now()
	stop := helpers.StopAt(t, "stop-1", "ship-1", 1, "DC", helpers.Pt(37.45, -122.0), now, 10)
	detector := apptracking.NewDwellDetector(apptracking.DefaultDwellConfig())

	// Inside the radius but moving at 40 km/h: passing by, not arriving
	event, _ := detector.Observe(stop, helpers.Pt(37.4505, -122.0), 40.0, now)

	assert.Equal(t, apptracking.DwellNone, event)
}

func TestDwellDetector_NoArrivalOutsideRadius(t *testing.T) {
	now := time.Now()
	stop := helpers.StopAt(t, "stop-1", "ship-1", 1, "DC", helpers.Pt(37.45, -122.0), now, 10)
	detector := apptracking.NewDwellDetector(apptracking.DefaultDwellConfig())

	// Stopped, but ~550 m away
	event, _ := detector.Observe(stop, helpers.Pt(37.455, -122.0), 0.0, now)

	assert.Equal(t, apptracking.DwellNone, event)
}

func TestDwellDetector_DepartureRequiresSustainedExit(t *testing.T) {
	// Arrange: arrived stop
	now := time.Now()
	stop := helpers.StopAt(t, "stop-1", "ship-1", 1, "DC", helpers.Pt(37.45, -122.0), now, 10)
	arrivedAt := now
	stop.ActualArrival = &arrivedAt
	detector := apptracking.NewDwellDetector(apptracking.DefaultDwellConfig())

	away := helpers.Pt(37.455, -122.0) // ~550 m out

	// Act: first exit sample starts the clock but does not depart
	event, _ := detector.Observe(stop, away, 30.0, now.Add(1*time.Minute))
	assert.Equal(t, apptracking.DwellNone, event)

	// Still outside after the minimum gap: departure at the first exit instant
	event, departedAt := detector.Observe(stop, away, 30.0, now.Add(2*time.Minute+time.Second))

	// Assert
	assert.Equal(t, apptracking.DwellDeparted, event)
	assert.Equal(t, now.Add(1*time.Minute), departedAt)
}

func TestDwellDetector_ReentryCancelsDeparture(t *testing.T) {
	now := time.Now()
	stop := helpers.StopAt(t, "stop-1", "ship-1", 1, "DC", helpers.Pt(37.45, -122.0), now, 10)
	arrivedAt := now
	stop.ActualArrival = &arrivedAt
	detector := apptracking.NewDwellDetector(apptracking.DefaultDwellConfig())

	away := helpers.Pt(37.455, -122.0)
	inside := helpers.Pt(37.4502, -122.0)

	event, _ := detector.Observe(stop, away, 30.0, now.Add(1*time.Minute))
	assert.Equal(t, apptracking.DwellNone, event)

	// Vehicle loops back inside the radius; the exit clock resets
	event, _ = detector.Observe(stop, inside, 10.0, now.Add(90*time.Second))
	assert.Equal(t, apptracking.DwellNone, event)

	// A fresh exit must sustain the full gap again
	event, _ = detector.Observe(stop, away, 30.0, now.Add(2*time.Minute))
	assert.Equal(t, apptracking.DwellNone, event)

	event, departedAt := detector.Observe(stop, away, 30.0, now.Add(3*time.Minute+time.Second))
	assert.Equal(t, apptracking.DwellDeparted, event)
	assert.Equal(t, now.Add(2*time.Minute), departedAt)
}

func TestDwellDetector_StoppedOutsideRadiusIsNotDeparture(t *testing.T) {
	// Queued at the gate: outside the radius but stationary
	now := time.Now()
	stop := helpers.StopAt(t, "stop-1", "ship-1", 1, "DC", helpers.Pt(37.45, -122.0), now, 10)
	arrivedAt := now
	stop.ActualArrival = &arrivedAt
	detector := apptracking.NewDwellDetector(apptracking.DefaultDwellConfig())

	event, _ := detector.Observe(stop, helpers.Pt(37.455, -122.0), 1.0, now.Add(1*time.Minute))
	assert.Equal(t, apptracking.DwellNone, event)

	event, _ = detector.Observe(stop, helpers.Pt(37.455, -122.0), 1.0, now.Add(5*time.Minute))
	assert.Equal(t, apptracking.DwellNone, event)
}
