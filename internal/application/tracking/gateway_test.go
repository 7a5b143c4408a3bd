package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
)

func newGateway(env *registryEnv, cfg apptracking.GatewayConfig) *apptracking.Gateway {
	return apptracking.NewGateway(cfg, env.registry, env.clock)
}

func ingestPoint(ts time.Time, lat, lon float64) apptracking.PositionPoint {
	accuracy := 8.0
	return apptracking.PositionPoint{TS: ts, Lat: lat, Lon: lon, AccuracyM: &accuracy}
}

func TestGateway_AdmitsValidBatch(t *testing.T) {
	// Arrange
	env := newRegistryEnv(t)
	gateway := newGateway(env, apptracking.DefaultGatewayConfig())

	batch := &apptracking.PositionBatch{
		VehicleID: "veh-1",
		Points: []apptracking.PositionPoint{
			ingestPoint(env.now.Add(-2*time.Minute), 37.2, -122.0),
			ingestPoint(env.now.Add(-1*time.Minute), 37.25, -122.0),
		},
	}

	// Act
	result, err := gateway.Ingest(context.Background(), batch)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Admitted)
	assert.Empty(t, result.Dropped)
	assert.Equal(t, 1, env.registry.ActorCount())
}

func TestGateway_RejectsInvalidBatches(t *testing.T) {
	env := newRegistryEnv(t)
	gateway := newGateway(env, apptracking.DefaultGatewayConfig())
	accuracy := 8.0

	cases := map[string]*apptracking.PositionBatch{
		"missing vehicle": {
			Points: []apptracking.PositionPoint{ingestPoint(env.now, 37.2, -122.0)},
		},
		"empty points": {
			VehicleID: "veh-1",
			Points:    []apptracking.PositionPoint{},
		},
		"latitude out of range": {
			VehicleID: "veh-1",
			Points:    []apptracking.PositionPoint{ingestPoint(env.now, 95.0, -122.0)},
		},
		"missing accuracy": {
			VehicleID: "veh-1",
			Points:    []apptracking.PositionPoint{{TS: env.now, Lat: 37.2, Lon: -122.0}},
		},
		"negative speed": {
			VehicleID: "veh-1",
			Points: []apptracking.PositionPoint{{
				TS: env.now, Lat: 37.2, Lon: -122.0, AccuracyM: &accuracy,
				SpeedKPH: func() *float64 { s := -4.0; return &s }(),
			}},
		},
	}

	for name, batch := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := gateway.Ingest(context.Background(), batch)
			assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
		})
	}
}

func TestGateway_DropsPointsOutsideTimestampWindow(t *testing.T) {
	// Arrange
	env := newRegistryEnv(t)
	gateway := newGateway(env, apptracking.DefaultGatewayConfig())

	batch := &apptracking.PositionBatch{
		VehicleID: "veh-1",
		Points: []apptracking.PositionPoint{
			ingestPoint(env.now.Add(-25*time.Hour), 37.1, -122.0), // beyond the past window
			ingestPoint(env.now.Add(6*time.Minute), 37.3, -122.0), // beyond the future skew
			ingestPoint(env.now.Add(-time.Minute), 37.2, -122.0),
		},
	}

	// Act
	result, err := gateway.Ingest(context.Background(), batch)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Admitted)
	assert.Equal(t, 1, result.Dropped[apptracking.DropReasonStaleTimestamp])
	assert.Equal(t, 1, result.Dropped[apptracking.DropReasonFutureTimestamp])
}

func TestGateway_RateLimitsPerVehicle(t *testing.T) {
	// Arrange: one batch per second, no burst headroom
	env := newRegistryEnv(t)
	cfg := apptracking.DefaultGatewayConfig()
	cfg.VehicleRate = 1
	cfg.VehicleBurst = 1
	gateway := newGateway(env, cfg)

	batch := &apptracking.PositionBatch{
		VehicleID: "veh-1",
		Points: []apptracking.PositionPoint{
			ingestPoint(env.now.Add(-2*time.Minute), 37.2, -122.0),
			ingestPoint(env.now.Add(-1*time.Minute), 37.25, -122.0),
		},
	}

	// Act
	first, err := gateway.Ingest(context.Background(), batch)
	require.NoError(t, err)
	second, err := gateway.Ingest(context.Background(), batch)
	require.NoError(t, err)

	// Assert: the second batch is shed whole, not partially
	assert.Equal(t, 2, first.Admitted)
	assert.Equal(t, 0, second.Admitted)
	assert.Equal(t, 2, second.Dropped[apptracking.DropReasonRateLimited])
}

func TestGateway_UnknownVehicleIsNotFound(t *testing.T) {
	env := newRegistryEnv(t)
	gateway := newGateway(env, apptracking.DefaultGatewayConfig())

	batch := &apptracking.PositionBatch{
		VehicleID: "veh-unknown",
		Points:    []apptracking.PositionPoint{ingestPoint(env.now, 37.2, -122.0)},
	}

	_, err := gateway.Ingest(context.Background(), batch)

	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestGateway_ElapsedDeadlineRejectsBeforeAdmission(t *testing.T) {
	env := newRegistryEnv(t)
	gateway := newGateway(env, apptracking.DefaultGatewayConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := &apptracking.PositionBatch{
		VehicleID: "veh-1",
		Points:    []apptracking.PositionPoint{ingestPoint(env.now, 37.2, -122.0)},
	}
	_, err := gateway.Ingest(ctx, batch)

	assert.True(t, shared.IsKind(err, shared.KindDeadlineExceeded))
}
