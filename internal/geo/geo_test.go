package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttled/internal/domain"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		expectedKm             float64
		delta                  float64
	}{
		{
			name: "same point",
			lat1: 13.0, lon1: 77.5, lat2: 13.0, lon2: 77.5,
			expectedKm: 0, delta: 0.000001,
		},
		{
			name: "one degree of latitude",
			lat1: 0, lon1: 0, lat2: 1, lon2: 0,
			expectedKm: 111.195, delta: 0.01,
		},
		{
			name: "one degree of longitude at equator",
			lat1: 0, lon1: 0, lat2: 0, lon2: 1,
			expectedKm: 111.195, delta: 0.01,
		},
		{
			name: "short campus hop",
			lat1: 13.0, lon1: 77.5, lat2: 13.0009, lon2: 77.5,
			expectedKm: 0.1001, delta: 0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expectedKm, got, tt.delta)
		})
	}
}

func TestDistanceKmSymmetric(t *testing.T) {
	a := DistanceKm(13.01, 77.52, 13.03, 77.58)
	b := DistanceKm(13.03, 77.58, 13.01, 77.52)
	assert.InDelta(t, a, b, 1e-9)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0, Bearing(0, 0, 1, 0), 0.01, "due north")
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 0.01, "due east")
	assert.InDelta(t, 180, Bearing(1, 0, 0, 0), 0.01, "due south")
	assert.InDelta(t, 270, Bearing(0, 1, 0, 0), 0.01, "due west")
}

func TestPathDistanceKm(t *testing.T) {
	points := []domain.TripPoint{
		{Lat: 0, Lon: 0},
		{Lat: 0.001, Lon: 0},
		{Lat: 0.002, Lon: 0},
	}
	// Two segments of ~111.2 m each.
	assert.InDelta(t, 0.2224, PathDistanceKm(points), 0.001)

	assert.Zero(t, PathDistanceKm(nil))
	assert.Zero(t, PathDistanceKm(points[:1]))
}

func TestAtOrBeyond(t *testing.T) {
	// Route runs due east from A; B ahead counts, B behind does not.
	assert.True(t, AtOrBeyond(0, 0, 0, 1, 0, 0.5))
	assert.False(t, AtOrBeyond(0, 0, 0, 1, 0, -0.5))
	assert.True(t, AtOrBeyond(0, 0, 0, 1, 0, 0), "same point counts as reached")
}

func TestNearestStop(t *testing.T) {
	stops := []domain.RouteStop{
		{Sequence: 1, Lat: 13.000, Lon: 77.500},
		{Sequence: 2, Lat: 13.010, Lon: 77.500},
		{Sequence: 3, Lat: 13.020, Lon: 77.500},
	}

	stop, dist, ok := NearestStop(stops, 13.011, 77.500)
	require.True(t, ok)
	assert.Equal(t, 2, stop.Sequence)
	assert.InDelta(t, 0.111, dist, 0.01)

	_, _, ok = NearestStop(nil, 13, 77.5)
	assert.False(t, ok)
}
