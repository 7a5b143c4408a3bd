package tracking

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// RouteSegment is a stretch of the route polyline with a uniform free-flow speed.
// Fractions are positions along the full polyline, so segment length in meters
// is (EndFraction - StartFraction) × total distance.
type RouteSegment struct {
	StartFraction float64
	EndFraction   float64
	FreeFlowKPH   float64
}

// Route is an immutable planned polyline with segment speeds
type Route struct {
	ID        string
	Line      *geo.Polyline
	DistanceM float64
	Duration  time.Duration
	Segments  []RouteSegment
	Costing   string // "truck" or "auto"
	Source    string // provider tag
	CreatedAt time.Time
}

// NewRoute creates a route with validation. Segments must tile 0..1 in order.
func NewRoute(id string, line *geo.Polyline, duration time.Duration, segments []RouteSegment, costing, source string, now time.Time) (*Route, error) {
	if line == nil {
		return nil, shared.NewValidationError("line", "cannot be nil")
	}
	if len(segments) == 0 {
		return nil, shared.NewValidationError("segments", "cannot be empty")
	}
	prev := 0.0
	for i, seg := range segments {
		if seg.StartFraction != prev {
			return nil, shared.NewValidationError("segments",
				fmt.Sprintf("segment %d starts at %.3f, expected %.3f", i, seg.StartFraction, prev))
		}
		if seg.EndFraction <= seg.StartFraction {
			return nil, shared.NewValidationError("segments",
				fmt.Sprintf("segment %d has non-positive span", i))
		}
		if seg.FreeFlowKPH <= 0 {
			return nil, shared.NewValidationError("segments",
				fmt.Sprintf("segment %d has non-positive free-flow speed", i))
		}
		prev = seg.EndFraction
	}
	if prev < 0.999 {
		return nil, shared.NewValidationError("segments", "segments do not cover the polyline")
	}

	return &Route{
		ID:        id,
		Line:      line,
		DistanceM: line.Length(),
		Duration:  duration,
		Segments:  segments,
		Costing:   costing,
		Source:    source,
		CreatedAt: now,
	}, nil
}

// SegmentAt returns the segment covering the given fractional progress
func (r *Route) SegmentAt(fraction float64) RouteSegment {
	for _, seg := range r.Segments {
		if fraction < seg.EndFraction {
			return seg
		}
	}
	return r.Segments[len(r.Segments)-1]
}

func (r *Route) String() string {
	return fmt.Sprintf("Route(id=%s, %.1fkm, %s, segments=%d)",
		r.ID, r.DistanceM/1000, r.Duration, len(r.Segments))
}
