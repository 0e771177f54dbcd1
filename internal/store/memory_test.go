package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttled/internal/domain"
)

func boolPtr(v bool) *bool { return &v }

func TestAssignmentFilterMatches(t *testing.T) {
	a := &domain.Assignment{
		ID:        "a1",
		RouteID:   "R1",
		Direction: domain.DirectionTo,
		VehicleID: "VH1",
		DriverID:  "D1",
		Active:    true,
	}

	tests := []struct {
		name   string
		filter AssignmentFilter
		want   bool
	}{
		{"empty filter", AssignmentFilter{}, true},
		{"active match", AssignmentFilter{Active: boolPtr(true)}, true},
		{"active mismatch", AssignmentFilter{Active: boolPtr(false)}, false},
		{"driver match", AssignmentFilter{DriverID: "D1"}, true},
		{"driver mismatch", AssignmentFilter{DriverID: "D2"}, false},
		{"vehicle match", AssignmentFilter{VehicleID: "VH1"}, true},
		{"route without direction", AssignmentFilter{RouteID: "R1"}, true},
		{"route and direction", AssignmentFilter{RouteID: "R1", Direction: domain.DirectionTo}, true},
		{"route wrong direction", AssignmentFilter{RouteID: "R1", Direction: domain.DirectionFro}, false},
		{"exclude self", AssignmentFilter{DriverID: "D1", ExcludeID: "a1"}, false},
		{"exclude other", AssignmentFilter{DriverID: "D1", ExcludeID: "a2"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(a))
		})
	}
}

func TestQueryAssignmentsOrderedByCreation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a3", "a1", "a2"} {
		require.NoError(t, m.PutAssignment(ctx, &domain.Assignment{
			ID: id, RouteID: "R1", Active: true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := m.QueryAssignments(ctx, AssignmentFilter{RouteID: "R1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a3", got[0].ID)
	assert.Equal(t, "a2", got[2].ID)
}

func TestListTripRecordsNewestFirstWithLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, m.AppendTripRecord(ctx, &domain.TripRecord{ID: id, VehicleID: "v1"}))
	}
	require.NoError(t, m.AppendTripRecord(ctx, &domain.TripRecord{ID: "other", VehicleID: "v2"}))

	got, err := m.ListTripRecords(ctx, "v1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t3", got[0].ID)
	assert.Equal(t, "t2", got[1].ID)

	all, err := m.ListTripRecords(ctx, "v1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReadsReturnCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.PutVehicle(ctx, &domain.Vehicle{ID: "v1", Occupancy: 2}))

	got, err := m.GetVehicle(ctx, "v1")
	require.NoError(t, err)
	got.Occupancy = 99

	again, err := m.GetVehicle(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Occupancy)
}

func TestRouteStopSequenceSortsOnWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.PutRouteStopSequence("R1", domain.DirectionTo, []domain.RouteStop{
		{RouteID: "R1", Direction: domain.DirectionTo, Sequence: 3, Name: "Hostel"},
		{RouteID: "R1", Direction: domain.DirectionTo, Sequence: 1, Name: "Gate"},
		{RouteID: "R1", Direction: domain.DirectionTo, Sequence: 2, Name: "Library"},
	})

	got, err := m.GetRouteStopSequence(ctx, "R1", domain.DirectionTo)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Sequence, got[1].Sequence, got[2].Sequence})

	_, err = m.GetRouteStopSequence(ctx, "R1", domain.DirectionFro)
	assert.ErrorIs(t, err, ErrNotFound)
}
