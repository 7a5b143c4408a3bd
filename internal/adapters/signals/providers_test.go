package signals_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	signalsadapter "github.com/andrescamacho/fleettrack-go/internal/adapters/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

func TestCachingTrafficProvider_SharesBucketAcrossNearbyPoints(t *testing.T) {
	// Arrange: two fixes ~1 km apart inside one 0.05 degree bucket
	var calls atomic.Int64
	fetch := func(ctx context.Context, point geo.Point, at time.Time) (*signals.TrafficSample, error) {
		calls.Add(1)
		return &signals.TrafficSample{SpeedKPH: 40, FreeFlowKPH: 80, Source: "test"}, nil
	}
	provider := signalsadapter.NewCachingTrafficProvider(fetch, 16, time.Minute, 0.05)
	now := time.Now()

	// Act
	first, err := provider.Sample(context.Background(), geo.Point{Lat: 37.401, Lon: -122.001}, now)
	require.NoError(t, err)
	second, err := provider.Sample(context.Background(), geo.Point{Lat: 37.409, Lon: -122.009}, now)
	require.NoError(t, err)

	// Assert: one upstream call serves both
	assert.Equal(t, int64(1), calls.Load())
	assert.Same(t, first, second)
	assert.Equal(t, time.Minute, first.TTL)
}

func TestCachingTrafficProvider_DistinctBucketsFetchSeparately(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, point geo.Point, at time.Time) (*signals.TrafficSample, error) {
		calls.Add(1)
		return &signals.TrafficSample{SpeedKPH: 60, FreeFlowKPH: 80}, nil
	}
	provider := signalsadapter.NewCachingTrafficProvider(fetch, 16, time.Minute, 0.05)
	now := time.Now()

	_, err := provider.Sample(context.Background(), geo.Point{Lat: 37.40, Lon: -122.0}, now)
	require.NoError(t, err)
	_, err = provider.Sample(context.Background(), geo.Point{Lat: 37.90, Lon: -122.0}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
}

func TestCachingTrafficProvider_CollapsesConcurrentMisses(t *testing.T) {
	// Arrange: a slow upstream so concurrent misses overlap
	var calls atomic.Int64
	gate := make(chan struct{})
	fetch := func(ctx context.Context, point geo.Point, at time.Time) (*signals.TrafficSample, error) {
		calls.Add(1)
		<-gate
		return &signals.TrafficSample{SpeedKPH: 40, FreeFlowKPH: 80}, nil
	}
	provider := signalsadapter.NewCachingTrafficProvider(fetch, 16, time.Minute, 0.05)
	point := geo.Point{Lat: 37.40, Lon: -122.0}

	// Act: ten concurrent samplers on the same bucket
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := provider.Sample(context.Background(), point, time.Now())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	// Assert: the followers waited for the leader instead of dogpiling
	assert.Equal(t, int64(1), calls.Load())
}

func TestCachingTrafficProvider_PropagatesFetchFailure(t *testing.T) {
	fetch := func(ctx context.Context, point geo.Point, at time.Time) (*signals.TrafficSample, error) {
		return nil, shared.NewDomainError(shared.KindServiceUnavailable, "traffic provider down")
	}
	provider := signalsadapter.NewCachingTrafficProvider(fetch, 16, time.Minute, 0.05)

	_, err := provider.Sample(context.Background(), geo.Point{Lat: 37.40, Lon: -122.0}, time.Now())

	assert.True(t, shared.IsKind(err, shared.KindServiceUnavailable))
}

func TestCachingWeatherProvider_CachesByBucket(t *testing.T) {
	// Arrange
	var calls atomic.Int64
	fetch := func(ctx context.Context, point geo.Point, at time.Time) (*signals.WeatherSample, error) {
		calls.Add(1)
		return &signals.WeatherSample{PrecipMMPerH: 4, Source: "test"}, nil
	}
	provider := signalsadapter.NewCachingWeatherProvider(fetch, 16, 10*time.Minute, 0.1)
	now := time.Now()

	// Act: the whole city shares a bucket
	first, err := provider.Sample(context.Background(), geo.Point{Lat: 37.41, Lon: -122.01}, now)
	require.NoError(t, err)
	_, err = provider.Sample(context.Background(), geo.Point{Lat: 37.49, Lon: -122.09}, now)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 10*time.Minute, first.TTL)
	assert.InDelta(t, 0.85, first.SpeedFactor(), 1e-9)
}

func TestCachingWeatherProvider_PropagatesFetchFailure(t *testing.T) {
	fetch := func(ctx context.Context, point geo.Point, at time.Time) (*signals.WeatherSample, error) {
		return nil, shared.NewDomainError(shared.KindTimeout, "weather provider timeout")
	}
	provider := signalsadapter.NewCachingWeatherProvider(fetch, 16, time.Minute, 0.1)

	_, err := provider.Sample(context.Background(), geo.Point{Lat: 37.40, Lon: -122.0}, time.Now())

	assert.True(t, shared.IsKind(err, shared.KindTimeout))
}
