package geo

import (
	"fmt"
	"math"
)

// EarthRadiusM is the mean earth radius in meters.
const EarthRadiusM = 6371008.8

// Point is an immutable WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}

// Valid reports whether the point is inside WGS84 coordinate ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLon*sinLon
	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Interpolate returns the point a fraction f of the way from a to b.
// Linear interpolation is accurate enough at road-segment scale.
func Interpolate(a, b Point, f float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lon: a.Lon + (b.Lon-a.Lon)*f,
	}
}

// Polyline is an ordered sequence of points with precomputed cumulative
// distances, supporting projection and interpolation along its length.
type Polyline struct {
	points []Point
	cum    []float64 // cum[i] = meters from start to points[i]
}

// NewPolyline builds a polyline from at least two points.
func NewPolyline(points []Point) (*Polyline, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("polyline requires at least 2 points, got %d", len(points))
	}
	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + Haversine(points[i-1], points[i])
	}
	return &Polyline{points: points, cum: cum}, nil
}

// Points returns a copy of the polyline's points.
func (p *Polyline) Points() []Point {
	pts := make([]Point, len(p.points))
	copy(pts, p.points)
	return pts
}

// Length returns the total polyline length in meters.
func (p *Polyline) Length() float64 {
	return p.cum[len(p.cum)-1]
}

// Projection is the result of projecting a point onto a polyline.
type Projection struct {
	Point      Point   // nearest point on the polyline
	Fraction   float64 // fractional progress along the polyline, 0..1
	CrossTrack float64 // distance from the query point to the polyline, meters
}

// Project finds the nearest point on the polyline to q using a local
// equirectangular approximation around q. Adequate for cross-track
// distances well below a few kilometers, which is the snapping regime.
func (p *Polyline) Project(q Point) Projection {
	cosLat := math.Cos(q.Lat * math.Pi / 180)
	toXY := func(pt Point) (float64, float64) {
		x := (pt.Lon - q.Lon) * cosLat * math.Pi / 180 * EarthRadiusM
		y := (pt.Lat - q.Lat) * math.Pi / 180 * EarthRadiusM
		return x, y
	}

	best := Projection{CrossTrack: math.MaxFloat64}
	for i := 0; i < len(p.points)-1; i++ {
		ax, ay := toXY(p.points[i])
		bx, by := toXY(p.points[i+1])
		dx, dy := bx-ax, by-ay
		segLen2 := dx*dx + dy*dy

		// Query point is at the local origin.
		t := 0.0
		if segLen2 > 0 {
			t = -(ax*dx + ay*dy) / segLen2
			t = math.Max(0, math.Min(1, t))
		}
		px, py := ax+t*dx, ay+t*dy
		dist := math.Sqrt(px*px + py*py)

		if dist < best.CrossTrack {
			onSeg := Interpolate(p.points[i], p.points[i+1], t)
			along := p.cum[i] + t*(p.cum[i+1]-p.cum[i])
			best = Projection{
				Point:      onSeg,
				Fraction:   along / p.Length(),
				CrossTrack: dist,
			}
		}
	}
	return best
}

// At returns the point at fractional progress f along the polyline.
func (p *Polyline) At(f float64) Point {
	target := math.Max(0, math.Min(1, f)) * p.Length()
	for i := 1; i < len(p.cum); i++ {
		if p.cum[i] >= target {
			segLen := p.cum[i] - p.cum[i-1]
			if segLen == 0 {
				return p.points[i]
			}
			t := (target - p.cum[i-1]) / segLen
			return Interpolate(p.points[i-1], p.points[i], t)
		}
	}
	return p.points[len(p.points)-1]
}

// DistanceAlong converts fractional progress to meters from the start.
func (p *Polyline) DistanceAlong(f float64) float64 {
	return math.Max(0, math.Min(1, f)) * p.Length()
}

// FractionAt converts meters from the start to fractional progress.
func (p *Polyline) FractionAt(meters float64) float64 {
	if p.Length() == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, meters/p.Length()))
}
