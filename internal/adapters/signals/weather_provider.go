package signals

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// WeatherFetchFunc fetches a fresh weather observation from the upstream provider
type WeatherFetchFunc func(ctx context.Context, point geo.Point, at time.Time) (*signals.WeatherSample, error)

// CachingWeatherProvider caches weather samples by coarse spatial bucket.
// Weather changes slowly, so the bucket and TTL are wider than traffic's.
// Safe for concurrent use.
type CachingWeatherProvider struct {
	fetch  WeatherFetchFunc
	cache  *expirable.LRU[string, *signals.WeatherSample]
	bucket float64
	ttl    time.Duration
}

// NewCachingWeatherProvider wraps the fetch function with a TTL cache.
// bucketDeg of ~0.1 degrees covers roughly a city.
func NewCachingWeatherProvider(fetch WeatherFetchFunc, size int, ttl time.Duration, bucketDeg float64) *CachingWeatherProvider {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if bucketDeg <= 0 {
		bucketDeg = 0.1
	}
	return &CachingWeatherProvider{
		fetch:  fetch,
		cache:  expirable.NewLRU[string, *signals.WeatherSample](size, nil, ttl),
		bucket: bucketDeg,
		ttl:    ttl,
	}
}

var _ signals.WeatherProvider = (*CachingWeatherProvider)(nil)

// Sample returns the cached observation for the point's bucket, fetching on miss.
// Duplicate upstream calls under concurrent misses are tolerated; writes are
// idempotent within the TTL.
func (p *CachingWeatherProvider) Sample(ctx context.Context, point geo.Point, at time.Time) (*signals.WeatherSample, error) {
	key := bucketKey(point, p.bucket)
	if sample, ok := p.cache.Get(key); ok {
		return sample, nil
	}
	sample, err := p.fetch(ctx, point, at)
	if err != nil {
		return nil, err
	}
	sample.TTL = p.ttl
	p.cache.Add(key, sample)
	return sample, nil
}
