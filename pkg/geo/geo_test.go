package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// One degree of latitude is ~111.2 km everywhere.
	a := geo.Point{Lat: 30.0, Lon: -94.0}
	b := geo.Point{Lat: 31.0, Lon: -94.0}

	d := geo.Haversine(a, b)

	assert.InDelta(t, 111195, d, 200)
}

func TestHaversine_ZeroDistance(t *testing.T) {
	a := geo.Point{Lat: 30.0, Lon: -94.0}
	assert.Equal(t, 0.0, geo.Haversine(a, a))
}

func TestNewPolyline_RequiresTwoPoints(t *testing.T) {
	_, err := geo.NewPolyline([]geo.Point{{Lat: 1, Lon: 1}})
	assert.Error(t, err)
}

func TestPolyline_Project_OnLine(t *testing.T) {
	line, err := geo.NewPolyline([]geo.Point{
		{Lat: 30.00, Lon: -94.0},
		{Lat: 30.01, Lon: -94.0},
		{Lat: 30.02, Lon: -94.0},
	})
	require.NoError(t, err)

	// A point exactly halfway up the first segment.
	proj := line.Project(geo.Point{Lat: 30.005, Lon: -94.0})

	assert.InDelta(t, 0.25, proj.Fraction, 0.001)
	assert.InDelta(t, 0.0, proj.CrossTrack, 1.0)
	assert.InDelta(t, 30.005, proj.Point.Lat, 0.0001)
}

func TestPolyline_Project_OffLine(t *testing.T) {
	line, err := geo.NewPolyline([]geo.Point{
		{Lat: 30.00, Lon: -94.0},
		{Lat: 30.02, Lon: -94.0},
	})
	require.NoError(t, err)

	// ~96m east of the midpoint (0.001 deg lon at lat 30).
	proj := line.Project(geo.Point{Lat: 30.01, Lon: -93.999})

	assert.InDelta(t, 0.5, proj.Fraction, 0.01)
	assert.InDelta(t, 96.3, proj.CrossTrack, 3.0)
}

func TestPolyline_Project_BeforeStart(t *testing.T) {
	line, err := geo.NewPolyline([]geo.Point{
		{Lat: 30.00, Lon: -94.0},
		{Lat: 30.02, Lon: -94.0},
	})
	require.NoError(t, err)

	proj := line.Project(geo.Point{Lat: 29.99, Lon: -94.0})

	assert.Equal(t, 0.0, proj.Fraction)
	assert.InDelta(t, 1112, proj.CrossTrack, 20)
}

func TestPolyline_At_Endpoints(t *testing.T) {
	line, err := geo.NewPolyline([]geo.Point{
		{Lat: 30.00, Lon: -94.0},
		{Lat: 30.02, Lon: -94.0},
	})
	require.NoError(t, err)

	assert.Equal(t, 30.00, line.At(0).Lat)
	assert.Equal(t, 30.02, line.At(1).Lat)
	assert.InDelta(t, 30.01, line.At(0.5).Lat, 0.0001)
}

func TestPolyline_FractionAt_RoundTrip(t *testing.T) {
	line, err := geo.NewPolyline([]geo.Point{
		{Lat: 30.00, Lon: -94.0},
		{Lat: 30.01, Lon: -94.0},
		{Lat: 30.03, Lon: -94.0},
	})
	require.NoError(t, err)

	meters := line.DistanceAlong(0.4)
	assert.InDelta(t, 0.4, line.FractionAt(meters), 1e-9)
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, geo.Point{Lat: 45, Lon: 120}.Valid())
	assert.False(t, geo.Point{Lat: 91, Lon: 0}.Valid())
	assert.False(t, geo.Point{Lat: 0, Lon: -181}.Valid())
}
