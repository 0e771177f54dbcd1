package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttled/internal/domain"
	"shuttled/internal/metrics"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(metrics.NewCollector(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func connect(t *testing.T, h *Hub, id string, role domain.Role, routeID string) *Client {
	t.Helper()
	c := NewClient(id, role, 8)
	c.SetRoute(routeID)
	before := h.ClientCount()
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return c
}

func vehicleEvent(routeID string) domain.Event {
	return domain.Event{
		Type:    domain.EventVehicle,
		RouteID: routeID,
		Vehicle: &domain.Vehicle{
			ID:       "v1",
			RouteID:  routeID,
			DriverID: "D1",
			Lat:      13.0,
			Lon:      77.5,
		},
	}
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.Send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event delivered: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVehicleEventReachesAllRoles(t *testing.T) {
	h := newTestHub(t)
	rider := connect(t, h, "c-rider", domain.RoleRider, "")
	driver := connect(t, h, "c-driver", domain.RoleDriver, "")

	h.Broadcast(vehicleEvent("R1"))

	assert.Equal(t, domain.EventVehicle, recv(t, rider).Type)
	assert.Equal(t, domain.EventVehicle, recv(t, driver).Type)
}

func TestRiderVehiclePayloadIsSanitized(t *testing.T) {
	h := newTestHub(t)
	rider := connect(t, h, "c-rider", domain.RoleRider, "")
	driver := connect(t, h, "c-driver", domain.RoleDriver, "")

	h.Broadcast(vehicleEvent("R1"))

	var riderVehicle, driverVehicle domain.Vehicle
	require.NoError(t, remarshal(recv(t, rider).Data, &riderVehicle))
	require.NoError(t, remarshal(recv(t, driver).Data, &driverVehicle))

	assert.Empty(t, riderVehicle.DriverID)
	assert.Equal(t, "D1", driverVehicle.DriverID)
	assert.Equal(t, riderVehicle.Lat, driverVehicle.Lat)
}

func TestCoordinationEventsAreRoleGated(t *testing.T) {
	h := newTestHub(t)
	rider := connect(t, h, "c-rider", domain.RoleRider, "")
	driver := connect(t, h, "c-driver", domain.RoleDriver, "")
	admin := connect(t, h, "c-admin", domain.RoleAdmin, "")

	h.Broadcast(domain.Event{
		Type:    domain.EventTripCompleted,
		RouteID: "R1",
		Trip:    &domain.TripRecord{ID: "t1", VehicleID: "v1"},
	})
	h.Broadcast(domain.Event{
		Type:       domain.EventAssignmentChanged,
		RouteID:    "R1",
		Assignment: &domain.Assignment{ID: "a1"},
	})

	assert.Equal(t, domain.EventTripCompleted, recv(t, driver).Type)
	assert.Equal(t, domain.EventAssignmentChanged, recv(t, driver).Type)
	assert.Equal(t, domain.EventTripCompleted, recv(t, admin).Type)
	assert.Equal(t, domain.EventAssignmentChanged, recv(t, admin).Type)
	assertSilent(t, rider)
}

func TestRouteFilter(t *testing.T) {
	h := newTestHub(t)
	onR1 := connect(t, h, "c-r1", domain.RoleRider, "R1")
	all := connect(t, h, "c-all", domain.RoleRider, "")

	h.Broadcast(vehicleEvent("R2"))
	h.Broadcast(vehicleEvent("R1"))

	// The filtered client only sees the R1 event; the unfiltered one sees
	// both, in order.
	env := recv(t, onR1)
	var v domain.Vehicle
	require.NoError(t, remarshal(env.Data, &v))
	assert.Equal(t, "R1", v.RouteID)
	assertSilent(t, onR1)

	recv(t, all)
	recv(t, all)
}

func TestFilterChangeTakesEffect(t *testing.T) {
	h := newTestHub(t)
	c := connect(t, h, "c1", domain.RoleRider, "R1")

	c.SetRoute("R2")
	h.Broadcast(vehicleEvent("R2"))

	env := recv(t, c)
	assert.Equal(t, domain.EventVehicle, env.Type)
}

func TestSlowClientMissesEventsWithoutBlocking(t *testing.T) {
	h := newTestHub(t)

	slow := NewClient("c-slow", domain.RoleRider, 1)
	h.Register(slow)
	fast := connect(t, h, "c-fast", domain.RoleRider, "")

	for range 5 {
		h.Broadcast(vehicleEvent("R1"))
	}

	// The fast client got all five; the slow one's buffer held only the
	// first and the rest were dropped.
	for range 5 {
		recv(t, fast)
	}
	recv(t, slow)
	assertSilent(t, slow)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := newTestHub(t)
	c := connect(t, h, "c1", domain.RoleRider, "")

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-c.Send
	assert.False(t, open)

	// A second unregister for the same client is a no-op.
	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestShutdownClosesAllClients(t *testing.T) {
	h := NewHub(metrics.NewCollector(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := NewClient("c1", domain.RoleRider, 8)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	_, open := <-c.Send
	assert.False(t, open)
	assert.Zero(t, h.ClientCount())
}

// Unregister must never block once the run loop has exited, even when far
// more clients disconnect than the unregister queue can hold, and a send
// attempted after shutdown must not hit a closed channel.
func TestUnregisterAfterShutdownDoesNotBlock(t *testing.T) {
	h := NewHub(metrics.NewCollector(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	clients := make([]*Client, 20)
	for i := range clients {
		clients[i] = NewClient(fmt.Sprintf("c%d", i), domain.RoleRider, 1)
		h.Register(clients[i])
	}
	require.Eventually(t, func() bool { return h.ClientCount() == 20 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		for _, c := range clients {
			h.Unregister(c)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after shutdown")
	}

	assert.False(t, clients[0].TrySend([]byte("late")))
}

// remarshal converts the envelope's decoded `any` payload into a concrete
// type.
func remarshal(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
