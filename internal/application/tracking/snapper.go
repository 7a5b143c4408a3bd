package tracking

import (
	"errors"
	"math"

	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Snap rejection reasons. Rejections are normal control flow: the actor
// counts them and emits no outbound update.
var (
	ErrLowAccuracy = errors.New("snap rejected: accuracy above bound")
	ErrOffPolyline = errors.New("snap rejected: cross-track above threshold")
	ErrBacktrack   = errors.New("snap rejected: progress behind accepted position")
)

// SnapperConfig holds road-snapping thresholds
type SnapperConfig struct {
	MaxAccuracyM          float64
	MaxCrossTrackM        float64
	MinProgressToleranceM float64
	MaxEdgeSpeedKPH       float64
	SpeedFilterAlpha      float64
}

// DefaultSnapperConfig returns the production thresholds
func DefaultSnapperConfig() SnapperConfig {
	return SnapperConfig{
		MaxAccuracyM:          50,
		MaxCrossTrackM:        60,
		MinProgressToleranceM: 20,
		MaxEdgeSpeedKPH:       140,
		SpeedFilterAlpha:      0.4,
	}
}

// Snapper projects raw fixes onto the active route polyline and rejects
// outliers. Stateless: the previously accepted snap is passed in by the
// shipment actor, which owns per-shipment state.
type Snapper struct {
	cfg SnapperConfig
}

// NewSnapper creates a snapper with the given thresholds
func NewSnapper(cfg SnapperConfig) *Snapper {
	return &Snapper{cfg: cfg}
}

// Snap projects a position onto the route. Boundary rule: values exactly at
// a threshold are accepted, values beyond are rejected.
func (s *Snapper) Snap(pos *tracking.Position, route *tracking.Route, prev *tracking.SnappedPoint) (*tracking.SnappedPoint, error) {
	if pos.AccuracyM > s.cfg.MaxAccuracyM {
		return nil, ErrLowAccuracy
	}

	proj := route.Line.Project(pos.Location)

	crossTrackBound := math.Max(s.cfg.MaxCrossTrackM, 2*pos.AccuracyM)
	if proj.CrossTrack > crossTrackBound {
		return nil, ErrOffPolyline
	}

	// Allow a small amount of backward jitter; anything beyond it is a
	// spurious fix, not real reversing.
	if prev != nil && prev.RouteID == route.ID {
		tolerance := s.cfg.MinProgressToleranceM / route.DistanceM
		if proj.Fraction < prev.Progress-tolerance {
			return nil, ErrBacktrack
		}
	}

	return &tracking.SnappedPoint{
		Position:    pos,
		RouteID:     route.ID,
		Snapped:     proj.Point,
		Progress:    proj.Fraction,
		CrossTrackM: proj.CrossTrack,
		EdgeSpeed:   s.edgeSpeed(pos, proj, prev),
	}, nil
}

// edgeSpeed derives speed from displacement between consecutive accepted
// snaps, clamped to [0, max], then low-pass filtered with a one-pole filter.
func (s *Snapper) edgeSpeed(pos *tracking.Position, proj geo.Projection, prev *tracking.SnappedPoint) float64 {
	var raw float64
	switch {
	case prev != nil && pos.Timestamp.After(prev.Position.Timestamp):
		dt := pos.Timestamp.Sub(prev.Position.Timestamp).Seconds()
		raw = geo.Haversine(prev.Snapped, proj.Point) / dt * 3.6
	case pos.SpeedKPH != nil:
		raw = *pos.SpeedKPH
	}

	raw = math.Max(0, math.Min(s.cfg.MaxEdgeSpeedKPH, raw))

	if prev == nil {
		return raw
	}
	a := s.cfg.SpeedFilterAlpha
	return a*raw + (1-a)*prev.EdgeSpeed
}
