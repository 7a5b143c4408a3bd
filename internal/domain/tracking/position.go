package tracking

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Position is a raw GPS fix as reported by a vehicle sensor
type Position struct {
	VehicleID string
	Timestamp time.Time
	Location  geo.Point
	SpeedKPH  *float64 // reported speed, optional
	AccuracyM float64
	Source    string // provenance tag
}

func (p *Position) String() string {
	return fmt.Sprintf("Position(vehicle=%s, %s, ±%.0fm, at=%s)",
		p.VehicleID, p.Location, p.AccuracyM, p.Timestamp.Format(time.RFC3339))
}

// SnappedPoint is a position projected onto the active route polyline
type SnappedPoint struct {
	Position    *Position
	RouteID     string
	Snapped     geo.Point
	Progress    float64 // fractional progress along the polyline, 0..1
	CrossTrackM float64
	EdgeSpeed   float64 // low-pass filtered speed in km/h
}

func (s *SnappedPoint) String() string {
	return fmt.Sprintf("Snapped(vehicle=%s, progress=%.4f, xtrack=%.0fm, speed=%.0fkm/h)",
		s.Position.VehicleID, s.Progress, s.CrossTrackM, s.EdgeSpeed)
}
