package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"shuttled/internal/domain"
	"shuttled/internal/metrics"
)

// Client is one connected subscriber. Role is fixed at connect time by the
// auth layer; the route filter may change via a follow-up filter message.
type Client struct {
	ID   string
	Role domain.Role
	Send chan []byte

	mu      sync.RWMutex
	routeID string
	closed  bool
}

func NewClient(id string, role domain.Role, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Role: role,
		Send: make(chan []byte, bufferSize),
	}
}

// SetRoute declares the client's route interest; empty means all routes.
func (c *Client) SetRoute(routeID string) {
	c.mu.Lock()
	c.routeID = routeID
	c.mu.Unlock()
}

func (c *Client) Route() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routeID
}

// TrySend delivers without blocking. False means the event was dropped:
// the buffer is full or the client is already closed. The send happens
// under the same lock close holds, so a late send can never hit a closed
// channel.
func (c *Client) TrySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// close is idempotent; safe to call from both the unregister path and
// shutdown.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// wants applies the role gate and route filter. A route-filtered client
// only sees vehicle and demand events for that exact route; coordination
// events without a route hint still pass.
func (c *Client) wants(e domain.Event) bool {
	if !e.VisibleTo(c.Role) {
		return false
	}
	route := c.Route()
	if route == "" {
		return true
	}
	switch e.Type {
	case domain.EventVehicle, domain.EventDemandUpdate:
		return e.RouteID == route
	default:
		return e.RouteID == "" || e.RouteID == route
	}
}

// Envelope is the wire form of every fan-out message.
type Envelope struct {
	Type domain.EventType `json:"type"`
	Data any              `json:"data"`
}

// Hub fans typed change events out to every subscriber whose role and route
// filter match. Delivery is at-most-once: a client whose buffer is full
// simply misses the event and resynchronizes from a snapshot.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	events     chan domain.Event
	done       chan struct{}

	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewHub(col *metrics.Collector, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		events:     make(chan domain.Event, 256),
		done:       make(chan struct{}),
		metrics:    col,
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "role", client.Role, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case evt := <-h.events:
			h.fanout(evt)
		}
	}
}

// Broadcast enqueues an event without blocking the producer. When the event
// queue itself is full the event is dropped for everyone.
func (h *Hub) Broadcast(evt domain.Event) {
	select {
	case h.events <- evt:
	default:
		h.metrics.EventsDropped.Inc()
		h.logger.Warn("event queue full, dropping event", "type", evt.Type)
	}
}

// Register and Unregister normally hand off to the Run loop; once Run has
// exited nobody drains those channels, so both fall through to a direct,
// non-blocking teardown instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(evt domain.Event) {
	start := time.Now()
	defer func() {
		h.metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	// Vehicle events are serialized at most twice: once sanitized for
	// riders, once in full for drivers and admins.
	var full, sanitized []byte

	for client := range h.clients {
		if !client.wants(evt) {
			continue
		}

		var data []byte
		if evt.Type == domain.EventVehicle && client.Role == domain.RoleRider {
			if sanitized == nil {
				sanitized = marshalEvent(evt, true)
			}
			data = sanitized
		} else {
			if full == nil {
				full = marshalEvent(evt, false)
			}
			data = full
		}
		if data == nil {
			continue
		}

		if !client.TrySend(data) {
			h.metrics.EventsDropped.Inc()
			h.logger.Debug("client send buffer full, event dropped", "client_id", client.ID)
		}
	}
}

func marshalEvent(evt domain.Event, sanitize bool) []byte {
	env := Envelope{Type: evt.Type}
	switch evt.Type {
	case domain.EventVehicle:
		if sanitize {
			env.Data = evt.Vehicle.Sanitized()
		} else {
			env.Data = evt.Vehicle
		}
	case domain.EventTripCompleted:
		env.Data = evt.Trip
	case domain.EventAssignmentChanged:
		env.Data = evt.Assignment
	case domain.EventDemandUpdate:
		env.Data = evt.Demand
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	return data
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", total)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}
