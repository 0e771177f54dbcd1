package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttled/internal/demand"
	"shuttled/internal/domain"
	"shuttled/internal/metrics"
	"shuttled/internal/registry"
	"shuttled/internal/store"
	"shuttled/internal/trip"
)

// captureHub records broadcast events in order instead of fanning them out.
type captureHub struct {
	mu     sync.Mutex
	events []domain.Event
}

func (h *captureHub) Broadcast(evt domain.Event) {
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()
}

func (h *captureHub) all() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event(nil), h.events...)
}

func (h *captureHub) byType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range h.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc *Service
	hub *captureHub
	mem *store.Memory
	reg *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()
	hub := &captureHub{}
	reg := registry.New(8 * time.Minute)
	trips := trip.NewSynthesizer(mem, nil, logger)
	agg := demand.NewAggregator(mem, store.StopSequenceSource{Store: mem}, logger)
	svc := NewService(reg, trips, agg, hub, mem, metrics.NewCollector(), logger)
	return &fixture{svc: svc, hub: hub, mem: mem, reg: reg}
}

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }
func str(v string) *string   { return &v }

func st(v domain.OperatingStatus) *domain.OperatingStatus { return &v }

func TestTelemetryPipeline(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	snap, err := fx.svc.Telemetry(ctx, TelemetryInput{
		VehicleID: "v1",
		Lat:       f64(13.0),
		Lon:       f64(77.5),
		Occupancy: i(2),
		Status:    st(domain.StatusActive),
		RouteID:   str("R1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Occupancy)
	assert.Equal(t, 13.0, snap.Lat)

	// The live registry holds the merged snapshot and a vehicle event went
	// out for the route.
	got, ok := fx.reg.Get("v1")
	require.True(t, ok)
	assert.Equal(t, "R1", got.RouteID)

	events := fx.hub.byType(domain.EventVehicle)
	require.Len(t, events, 1)
	assert.Equal(t, "R1", events[0].RouteID)
	assert.Equal(t, 2, events[0].Vehicle.Occupancy)
}

func TestTelemetryRejectsMissingVehicleID(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Telemetry(context.Background(), TelemetryInput{Lat: f64(13.0), Lon: f64(77.5)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, fx.hub.all())
}

func TestTelemetryRejectsMalformedCoordinates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Telemetry(ctx, TelemetryInput{VehicleID: "v1", Lat: f64(13.0)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "latitude without longitude")

	_, err = fx.svc.Telemetry(ctx, TelemetryInput{VehicleID: "v1", Lat: f64(91.0), Lon: f64(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// The rejected updates touched nothing and broadcast nothing.
	_, ok := fx.reg.Get("v1")
	assert.False(t, ok)
	assert.Empty(t, fx.hub.all())
}

func TestOccupancyDeltaClampsAndBroadcasts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Telemetry(ctx, TelemetryInput{VehicleID: "v1", Occupancy: i(3)})
	require.NoError(t, err)

	snap, err := fx.svc.OccupancyDelta(ctx, "v1", 5)
	require.NoError(t, err)
	assert.Equal(t, snap.Capacity, snap.Occupancy, "boarding past capacity clamps")

	snap, err = fx.svc.OccupancyDelta(ctx, "v1", -100)
	require.NoError(t, err)
	assert.Zero(t, snap.Occupancy)

	assert.Len(t, fx.hub.byType(domain.EventVehicle), 3)
}

func TestTripControlCheckpointsVehicle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	snap, err := fx.svc.TripControl(ctx, TripControlInput{
		VehicleID: "v1",
		Action:    "start",
		RouteID:   str("R1"),
		Lat:       f64(13.0),
		Lon:       f64(77.5),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, snap.Status)

	// Control events write the snapshot through to the durable store.
	stored, err := fx.mem.GetVehicle(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)

	_, err = fx.svc.TripControl(ctx, TripControlInput{VehicleID: "v1", Action: "pause"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// Full trip lifecycle across the ingest surface: start, movement, stop, then
// idle telemetry past the debounce window closes the trip and fans it out.
func TestTripLifecycleAcrossIngest(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.TripControl(ctx, TripControlInput{
		VehicleID: "v1", Action: "start", RouteID: str("R1"), Lat: f64(13.0000), Lon: f64(77.5),
	})
	require.NoError(t, err)

	_, err = fx.svc.Telemetry(ctx, TelemetryInput{
		VehicleID: "v1", Lat: f64(13.0018), Lon: f64(77.5), Status: st(domain.StatusActive),
	})
	require.NoError(t, err)

	_, err = fx.svc.TripControl(ctx, TripControlInput{VehicleID: "v1", Action: "stop"})
	require.NoError(t, err)

	// No record yet: the debounce window has not elapsed.
	assert.Empty(t, fx.hub.byType(domain.EventTripCompleted))
}

func TestDemandPipeline(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Telemetry(ctx, TelemetryInput{
		VehicleID: "v1", Lat: f64(13.0), Lon: f64(77.5), RouteID: str("R1"),
	})
	require.NoError(t, err)

	seq := 2
	sig, err := fx.svc.Demand(ctx, demand.Input{
		VehicleID: "v1", RouteID: "R1", Direction: domain.DirectionTo, High: true, StopSequence: &seq,
	})
	require.NoError(t, err)
	assert.True(t, sig.High)

	// The durable store holds the audit row.
	stored, err := fx.mem.QueryDemandSignals(ctx, "R1", domain.DirectionTo, sig.CreatedAt)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	// The vehicle snapshot carries the flag and both events went out.
	snap, ok := fx.reg.Get("v1")
	require.True(t, ok)
	assert.True(t, snap.DemandHigh)

	updates := fx.hub.byType(domain.EventDemandUpdate)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Demand.Stops, 1)
	assert.Equal(t, domain.StopDemand{Sequence: 2, WaitingCount: 1}, updates[0].Demand.Stops[0])

	vehicles := fx.hub.byType(domain.EventVehicle)
	require.NotEmpty(t, vehicles)
	assert.True(t, vehicles[len(vehicles)-1].Vehicle.DemandHigh)
}

func TestDemandRejectsInvalidInput(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Demand(context.Background(), demand.Input{RouteID: "R1", Direction: domain.DirectionTo})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTripCompletedFansOut(t *testing.T) {
	fx := newFixture(t)

	fx.svc.TripCompleted(&domain.TripRecord{ID: "t1", VehicleID: "v1", RouteID: "R1"})
	fx.svc.TripCompleted(nil)

	events := fx.hub.byType(domain.EventTripCompleted)
	require.Len(t, events, 1)
	assert.Equal(t, "R1", events[0].RouteID)
	assert.Equal(t, "t1", events[0].Trip.ID)
}
