package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"shuttled/internal/domain"
)

// Memory is an in-process Store used by tests and single-node local runs.
// All reads return copies.
type Memory struct {
	mu          sync.RWMutex
	vehicles    map[string]*domain.Vehicle
	drivers     map[string]*domain.Driver
	routes      map[string]*domain.Route
	assignments map[string]*domain.Assignment
	trips       []*domain.TripRecord
	signals     []*domain.DemandSignal
	stops       map[stopKey][]domain.RouteStop
}

type stopKey struct {
	routeID string
	dir     domain.Direction
}

func NewMemory() *Memory {
	return &Memory{
		vehicles:    make(map[string]*domain.Vehicle),
		drivers:     make(map[string]*domain.Driver),
		routes:      make(map[string]*domain.Route),
		assignments: make(map[string]*domain.Assignment),
		stops:       make(map[stopKey][]domain.RouteStop),
	}
}

func (m *Memory) GetVehicle(_ context.Context, id string) (*domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *v
	return &c, nil
}

func (m *Memory) PutVehicle(_ context.Context, v *domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *v
	m.vehicles[v.ID] = &c
	return nil
}

func (m *Memory) ListVehicles(_ context.Context) ([]*domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		c := *v
		result = append(result, &c)
	}
	return result, nil
}

func (m *Memory) GetDriver(_ context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *d
	return &c, nil
}

func (m *Memory) PutDriver(d *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	m.drivers[d.ID] = &c
}

func (m *Memory) GetRoute(_ context.Context, id string) (*domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *Memory) PutRoute(r *domain.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.routes[r.ID] = &c
}

func (m *Memory) GetAssignment(_ context.Context, id string) (*domain.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *Memory) QueryAssignments(_ context.Context, f AssignmentFilter) ([]*domain.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Assignment
	for _, a := range m.assignments {
		if f.Matches(a) {
			c := *a
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) PutAssignment(_ context.Context, a *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.assignments[a.ID] = &c
	return nil
}

func (m *Memory) AppendTripRecord(_ context.Context, rec *domain.TripRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *rec
	c.Path = append([]domain.TripPoint(nil), rec.Path...)
	m.trips = append(m.trips, &c)
	return nil
}

func (m *Memory) ListTripRecords(_ context.Context, vehicleID string, limit int) ([]*domain.TripRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.TripRecord
	for i := len(m.trips) - 1; i >= 0; i-- {
		if vehicleID != "" && m.trips[i].VehicleID != vehicleID {
			continue
		}
		c := *m.trips[i]
		result = append(result, &c)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) AppendDemandSignal(_ context.Context, sig *domain.DemandSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *sig
	m.signals = append(m.signals, &c)
	return nil
}

func (m *Memory) QueryDemandSignals(_ context.Context, routeID string, dir domain.Direction, notExpiredAt time.Time) ([]*domain.DemandSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.DemandSignal
	for _, s := range m.signals {
		if s.RouteID != routeID || s.Direction != dir {
			continue
		}
		if !s.ExpiresAt.After(notExpiredAt) {
			continue
		}
		c := *s
		result = append(result, &c)
	}
	return result, nil
}

func (m *Memory) GetRouteStopSequence(_ context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stops, ok := m.stops[stopKey{routeID, dir}]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]domain.RouteStop(nil), stops...), nil
}

func (m *Memory) PutRouteStopSequence(routeID string, dir domain.Direction, stops []domain.RouteStop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := append([]domain.RouteStop(nil), stops...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })
	m.stops[stopKey{routeID, dir}] = sorted
}
