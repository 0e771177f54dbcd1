package registry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttled/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestUpsertCreatesWithDefaults(t *testing.T) {
	r := New(8 * time.Minute)

	snap, err := r.Upsert("shuttle-1", domain.VehicleUpdate{
		Lat: ptr(13.0), Lon: ptr(77.5),
	})
	require.NoError(t, err)

	assert.Equal(t, "shuttle-1", snap.ID)
	assert.Equal(t, domain.DefaultCapacity, snap.Capacity)
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.Equal(t, 13.0, snap.Lat)
	assert.Equal(t, 77.5, snap.Lon)
	assert.False(t, snap.FixTimestamp.IsZero())
}

func TestUpsertRejectsMalformedCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"NaN latitude", math.NaN(), 77.5},
		{"infinite longitude", 13.0, math.Inf(1)},
		{"latitude out of range", 91.0, 77.5},
		{"longitude out of range", 13.0, -181.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(8 * time.Minute)

			_, err := r.Upsert("v1", domain.VehicleUpdate{Lat: ptr(12.9), Lon: ptr(77.4)})
			require.NoError(t, err)
			before, ok := r.Get("v1")
			require.True(t, ok)

			_, err = r.Upsert("v1", domain.VehicleUpdate{Lat: ptr(tt.lat), Lon: ptr(tt.lon)})
			require.ErrorIs(t, err, domain.ErrInvalidInput)

			// Prior state must be untouched, never a garbage value.
			after, ok := r.Get("v1")
			require.True(t, ok)
			assert.Equal(t, before.Lat, after.Lat)
			assert.Equal(t, before.Lon, after.Lon)
		})
	}
}

func TestUpsertRejectsEmptyVehicleID(t *testing.T) {
	r := New(8 * time.Minute)
	_, err := r.Upsert("", domain.VehicleUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestOccupancyDeltaAlwaysWithinBounds(t *testing.T) {
	r := New(8 * time.Minute)

	_, err := r.Upsert("v1", domain.VehicleUpdate{Capacity: ptr(6)})
	require.NoError(t, err)

	deltas := []int{3, 5, -2, -10, 1, 8, -1, 100, -100, 4}
	for _, d := range deltas {
		snap, err := r.Upsert("v1", domain.VehicleUpdate{OccupancyDelta: ptr(d)})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snap.Occupancy, 0, "delta %d", d)
		assert.LessOrEqual(t, snap.Occupancy, 6, "delta %d", d)
	}
}

func TestAbsoluteOccupancyClampsToCapacity(t *testing.T) {
	r := New(8 * time.Minute)

	snap, err := r.Upsert("v1", domain.VehicleUpdate{Occupancy: ptr(99)})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCapacity, snap.Occupancy)

	_, err = r.Upsert("v1", domain.VehicleUpdate{Occupancy: ptr(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetUnknownVehicle(t *testing.T) {
	r := New(8 * time.Minute)
	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	r := New(8 * time.Minute)

	_, err := r.Upsert("v1", domain.VehicleUpdate{Lat: ptr(13.0), Lon: ptr(77.5)})
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Lat = 99

	again, ok := r.Get("v1")
	require.True(t, ok)
	assert.Equal(t, 13.0, again.Lat)
}

func TestStalenessIsReadTime(t *testing.T) {
	r := New(8 * time.Minute)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	_, err := r.Upsert("v1", domain.VehicleUpdate{Lat: ptr(13.0), Lon: ptr(77.5)})
	require.NoError(t, err)

	r.now = func() time.Time { return base.Add(7 * time.Minute) }
	fresh, ok := r.Get("v1")
	require.True(t, ok)
	assert.False(t, fresh.Stale)

	r.now = func() time.Time { return base.Add(9 * time.Minute) }
	stale, ok := r.Get("v1")
	require.True(t, ok)
	assert.True(t, stale.Stale, "vehicle silent past the threshold reads as stale")
	assert.Equal(t, 1, r.Count(), "staleness never evicts")
}

func TestSeedDoesNotStampUpdatedAt(t *testing.T) {
	r := New(8 * time.Minute)

	r.Seed(&domain.Vehicle{ID: "v1", Lat: 13.0, Lon: 77.5, Capacity: 4})

	v, ok := r.Get("v1")
	require.True(t, ok)
	assert.True(t, v.Stale, "rebuilt entries read stale until fresh telemetry arrives")
}

func TestStatusRouteAndDemandMerge(t *testing.T) {
	r := New(8 * time.Minute)

	snap, err := r.Upsert("v1", domain.VehicleUpdate{
		Status:     ptr(domain.StatusActive),
		RouteID:    ptr("R1"),
		Direction:  ptr(domain.DirectionTo),
		DriverID:   ptr("D1"),
		DemandHigh: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, snap.Status)
	assert.Equal(t, "R1", snap.RouteID)
	assert.Equal(t, domain.DirectionTo, snap.Direction)
	assert.True(t, snap.DemandHigh)
	assert.False(t, snap.DemandSetAt.IsZero())

	// A later partial update leaves unrelated fields alone.
	snap, err = r.Upsert("v1", domain.VehicleUpdate{Occupancy: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, "R1", snap.RouteID)
	assert.Equal(t, domain.StatusActive, snap.Status)
}
