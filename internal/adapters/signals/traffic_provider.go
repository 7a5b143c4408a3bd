package signals

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// TrafficFetchFunc fetches a fresh traffic observation from the upstream
// provider. Implementations own the wire format; the core only sees
// normalized samples.
type TrafficFetchFunc func(ctx context.Context, point geo.Point, at time.Time) (*signals.TrafficSample, error)

// CachingTrafficProvider caches traffic samples by coarse spatial bucket so
// vehicles in the same corridor share one upstream call. Stale entries are
// tolerated within the TTL. Safe for concurrent use.
type CachingTrafficProvider struct {
	fetch   TrafficFetchFunc
	cache   *expirable.LRU[string, *signals.TrafficSample]
	bucket  float64 // bucket edge in degrees
	ttl     time.Duration
	mu      sync.Mutex
	inFlight map[string]chan struct{}
}

// NewCachingTrafficProvider wraps the fetch function with a TTL cache.
// bucketDeg controls spatial granularity; ~0.05 degrees is a few kilometers.
func NewCachingTrafficProvider(fetch TrafficFetchFunc, size int, ttl time.Duration, bucketDeg float64) *CachingTrafficProvider {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if bucketDeg <= 0 {
		bucketDeg = 0.05
	}
	return &CachingTrafficProvider{
		fetch:    fetch,
		cache:    expirable.NewLRU[string, *signals.TrafficSample](size, nil, ttl),
		bucket:   bucketDeg,
		ttl:      ttl,
		inFlight: make(map[string]chan struct{}),
	}
}

var _ signals.TrafficProvider = (*CachingTrafficProvider)(nil)

// Sample returns the cached observation for the point's bucket, fetching on
// miss. Concurrent misses for the same bucket collapse into one upstream call.
func (p *CachingTrafficProvider) Sample(ctx context.Context, point geo.Point, at time.Time) (*signals.TrafficSample, error) {
	key := bucketKey(point, p.bucket)
	if sample, ok := p.cache.Get(key); ok {
		return sample, nil
	}

	done, leader := p.claim(key)
	if !leader {
		select {
		case <-done:
			if sample, ok := p.cache.Get(key); ok {
				return sample, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		defer p.release(key, done)
	}

	sample, err := p.fetch(ctx, point, at)
	if err != nil {
		return nil, err
	}
	sample.TTL = p.ttl
	p.cache.Add(key, sample)
	return sample, nil
}

func (p *CachingTrafficProvider) claim(key string) (chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.inFlight[key]; ok {
		return ch, false
	}
	ch := make(chan struct{})
	p.inFlight[key] = ch
	return ch, true
}

func (p *CachingTrafficProvider) release(key string, ch chan struct{}) {
	p.mu.Lock()
	delete(p.inFlight, key)
	p.mu.Unlock()
	close(ch)
}

// bucketKey quantizes a point to its cache bucket
func bucketKey(point geo.Point, bucket float64) string {
	return fmt.Sprintf("%d:%d",
		int(math.Floor(point.Lat/bucket)),
		int(math.Floor(point.Lon/bucket)))
}
