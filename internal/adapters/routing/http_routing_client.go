package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"
	"github.com/twpayne/go-polyline"

	domainRouting "github.com/andrescamacho/fleettrack-go/internal/domain/routing"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// shapeCodec decodes Valhalla's 1e6-precision polylines
var shapeCodec = polyline.Codec{Dim: 2, Scale: 1e6}

// HTTPRoutingClientConfig holds the routing backend endpoints and cache tuning
type HTTPRoutingClientConfig struct {
	PrimaryURL  string
	FallbackURL string // empty disables the fallback provider
	Timeout     time.Duration
	CacheSize   int
	CacheTTL    time.Duration
}

// DefaultHTTPRoutingClientConfig returns the production tunables
func DefaultHTTPRoutingClientConfig() HTTPRoutingClientConfig {
	return HTTPRoutingClientConfig{
		Timeout:   10 * time.Second,
		CacheSize: 512,
		CacheTTL:  5 * time.Minute,
	}
}

// HTTPRoutingClient implements RoutingClient against a Valhalla-compatible
// HTTP service. Requests go to the primary provider behind a circuit breaker;
// on failure one fallback attempt is made. Identical (waypoints, profile)
// requests within the TTL are served from an in-memory cache.
type HTTPRoutingClient struct {
	cfg      HTTPRoutingClientConfig
	http     *http.Client
	ids      shared.IDGenerator
	clock    shared.Clock
	primary  *gobreaker.CircuitBreaker
	fallback *gobreaker.CircuitBreaker
	cache    *expirable.LRU[string, []*tracking.Route]
}

// NewHTTPRoutingClient creates a routing client for the configured providers
func NewHTTPRoutingClient(cfg HTTPRoutingClientConfig, ids shared.IDGenerator, clock shared.Clock) *HTTPRoutingClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPRoutingClientConfig().Timeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultHTTPRoutingClientConfig().CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultHTTPRoutingClientConfig().CacheTTL
	}
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}
	return &HTTPRoutingClient{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		ids:      ids,
		clock:    clock,
		primary:  gobreaker.NewCircuitBreaker(settings("routing-primary")),
		fallback: gobreaker.NewCircuitBreaker(settings("routing-fallback")),
		cache:    expirable.NewLRU[string, []*tracking.Route](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

var _ domainRouting.RoutingClient = (*HTTPRoutingClient)(nil)

// Route returns the fastest route through the waypoints in order
func (c *HTTPRoutingClient) Route(ctx context.Context, waypoints []geo.Point, profile domainRouting.Profile) (*tracking.Route, error) {
	routes, err := c.Alternatives(ctx, waypoints, profile, 1)
	if err != nil {
		return nil, err
	}
	return routes[0], nil
}

// Alternatives returns up to k routes ordered fastest-first
func (c *HTTPRoutingClient) Alternatives(ctx context.Context, waypoints []geo.Point, profile domainRouting.Profile, k int) ([]*tracking.Route, error) {
	if len(waypoints) < 2 {
		return nil, shared.NewDomainError(shared.KindInvalidInput, "routing requires at least two waypoints")
	}
	if k < 1 {
		k = 1
	}

	key := cacheKey(waypoints, profile, k)
	if routes, ok := c.cache.Get(key); ok {
		return routes, nil
	}

	body, err := json.Marshal(routeRequest(waypoints, profile, k-1))
	if err != nil {
		return nil, shared.WrapDomainError(shared.KindInvalidInput, "failed to encode route request", err)
	}

	resp, err := c.post(ctx, c.primary, c.cfg.PrimaryURL, "/route", body)
	if err != nil && c.cfg.FallbackURL != "" {
		resp, err = c.post(ctx, c.fallback, c.cfg.FallbackURL, "/route", body)
	}
	if err != nil {
		return nil, shared.WrapDomainError(shared.KindRoutingUnavailable, "all routing providers failed", err)
	}

	var payload routeResponse
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, shared.WrapDomainError(shared.KindRoutingUnavailable, "malformed routing response", err)
	}

	routes := make([]*tracking.Route, 0, k)
	route, err := c.tripToRoute(&payload.Trip, profile)
	if err != nil {
		return nil, err
	}
	routes = append(routes, route)
	for i := range payload.Alternates {
		if len(routes) >= k {
			break
		}
		alt, err := c.tripToRoute(&payload.Alternates[i].Trip, profile)
		if err != nil {
			continue // a malformed alternate does not fail the request
		}
		routes = append(routes, alt)
	}

	c.cache.Add(key, routes)
	return routes, nil
}

// Snap projects a raw coordinate to the nearest routable road
func (c *HTTPRoutingClient) Snap(ctx context.Context, point geo.Point) (geo.Point, error) {
	body, err := json.Marshal(map[string]interface{}{
		"locations": []location{{Lat: point.Lat, Lon: point.Lon}},
		"verbose":   false,
	})
	if err != nil {
		return geo.Point{}, shared.WrapDomainError(shared.KindInvalidInput, "failed to encode locate request", err)
	}

	resp, err := c.post(ctx, c.primary, c.cfg.PrimaryURL, "/locate", body)
	if err != nil && c.cfg.FallbackURL != "" {
		resp, err = c.post(ctx, c.fallback, c.cfg.FallbackURL, "/locate", body)
	}
	if err != nil {
		return geo.Point{}, shared.WrapDomainError(shared.KindRoutingUnavailable, "all routing providers failed", err)
	}

	var results []locateResult
	if err := json.Unmarshal(resp, &results); err != nil {
		return geo.Point{}, shared.WrapDomainError(shared.KindRoutingUnavailable, "malformed locate response", err)
	}
	if len(results) == 0 || len(results[0].Edges) == 0 {
		return geo.Point{}, shared.NewDomainError(shared.KindNotFound, "no routable road near point")
	}
	edge := results[0].Edges[0]
	return geo.Point{Lat: edge.CorrelatedLat, Lon: edge.CorrelatedLon}, nil
}

// post runs one HTTP call through the provider's circuit breaker
func (c *HTTPRoutingClient) post(ctx context.Context, breaker *gobreaker.CircuitBreaker, base, path string, body []byte) ([]byte, error) {
	result, err := breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("routing provider returned %d: %s", resp.StatusCode, truncate(data, 200))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// tripToRoute converts one Valhalla trip to the domain route. Each leg becomes
// a segment whose free-flow speed is the leg's average.
func (c *HTTPRoutingClient) tripToRoute(trip *trip, profile domainRouting.Profile) (*tracking.Route, error) {
	if len(trip.Legs) == 0 {
		return nil, shared.NewDomainError(shared.KindRoutingUnavailable, "routing response carries no legs")
	}

	var points []geo.Point
	type legSpan struct {
		lengthKM float64
		timeS    float64
	}
	spans := make([]legSpan, 0, len(trip.Legs))
	totalKM := 0.0

	for _, leg := range trip.Legs {
		coords, _, err := shapeCodec.DecodeCoords([]byte(leg.Shape))
		if err != nil {
			return nil, shared.WrapDomainError(shared.KindRoutingUnavailable, "failed to decode leg shape", err)
		}
		for _, coord := range coords {
			p := geo.Point{Lat: coord[0], Lon: coord[1]}
			if n := len(points); n > 0 && points[n-1] == p {
				continue
			}
			points = append(points, p)
		}
		spans = append(spans, legSpan{lengthKM: leg.Summary.Length, timeS: leg.Summary.Time})
		totalKM += leg.Summary.Length
	}

	line, err := geo.NewPolyline(points)
	if err != nil {
		return nil, shared.WrapDomainError(shared.KindRoutingUnavailable, "degenerate route shape", err)
	}

	segments := make([]tracking.RouteSegment, 0, len(spans))
	start := 0.0
	for i, span := range spans {
		end := start + span.lengthKM/totalKM
		if i == len(spans)-1 {
			end = 1.0
		}
		speed := 60.0
		if span.timeS > 0 {
			speed = span.lengthKM / (span.timeS / 3600)
		}
		segments = append(segments, tracking.RouteSegment{
			StartFraction: start,
			EndFraction:   end,
			FreeFlowKPH:   speed,
		})
		start = end
	}

	duration := time.Duration(trip.Summary.Time * float64(time.Second))
	return tracking.NewRoute(c.ids.NewID(), line, duration, segments,
		string(profile.Costing), "valhalla", c.clock.Now())
}

// routeRequest builds the Valhalla request body
func routeRequest(waypoints []geo.Point, profile domainRouting.Profile, alternates int) map[string]interface{} {
	locations := make([]location, 0, len(waypoints))
	for _, w := range waypoints {
		locations = append(locations, location{Lat: w.Lat, Lon: w.Lon})
	}
	costing := string(profile.Costing)
	if costing == "" {
		costing = string(domainRouting.CostingTruck)
	}
	req := map[string]interface{}{
		"locations": locations,
		"costing":   costing,
		"units":     "kilometers",
	}
	if alternates > 0 {
		req["alternates"] = alternates
	}
	if profile.Costing == domainRouting.CostingTruck {
		req["costing_options"] = map[string]interface{}{
			"truck": map[string]interface{}{
				"height":   profile.HeightM,
				"width":    profile.WidthM,
				"weight":   profile.WeightTons,
				"hazmat":   profile.HazmatAllowed,
				"use_tolls": boolToFactor(!profile.AvoidTolls),
			},
		}
	}
	return req
}

func boolToFactor(b bool) float64 {
	if b {
		return 0.5
	}
	return 0.0
}

func cacheKey(waypoints []geo.Point, profile domainRouting.Profile, k int) string {
	var buf bytes.Buffer
	for _, w := range waypoints {
		fmt.Fprintf(&buf, "%.5f,%.5f;", w.Lat, w.Lon)
	}
	fmt.Fprintf(&buf, "%s:%.1f:%.1f:%.1f:%t:%t:%d",
		profile.Costing, profile.HeightM, profile.WidthM, profile.WeightTons,
		profile.HazmatAllowed, profile.AvoidTolls, k)
	return buf.String()
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// Wire payload shapes for the Valhalla-compatible API

type location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type legSummary struct {
	Length float64 `json:"length"` // kilometers
	Time   float64 `json:"time"`   // seconds
}

type leg struct {
	Shape     string          `json:"shape"`
	Maneuvers json.RawMessage `json:"maneuvers,omitempty"`
	Summary   legSummary      `json:"summary"`
}

type trip struct {
	Legs    []leg      `json:"legs"`
	Summary legSummary `json:"summary"`
}

type alternate struct {
	Trip trip `json:"trip"`
}

type routeResponse struct {
	Trip       trip        `json:"trip"`
	Alternates []alternate `json:"alternates,omitempty"`
}

type locateEdge struct {
	CorrelatedLat float64 `json:"correlated_lat"`
	CorrelatedLon float64 `json:"correlated_lon"`
}

type locateResult struct {
	Edges []locateEdge `json:"edges"`
}
