package registry

import (
	"sync"
	"time"

	"shuttled/internal/domain"
)

// Registry is the authoritative in-memory view of every vehicle's current
// state. Entries are locked per vehicle so unrelated updates never serialize
// behind each other; the outer RWMutex only guards the shard map itself.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	staleAfter time.Duration
	now        func() time.Time
}

type entry struct {
	mu sync.Mutex
	v  domain.Vehicle
}

func New(staleAfter time.Duration) *Registry {
	return &Registry{
		entries:    make(map[string]*entry),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Upsert merges a partial update into the vehicle's snapshot, creating the
// vehicle with defaults when unknown. Malformed updates are rejected before
// any state changes. Returns a copy of the post-merge snapshot.
func (r *Registry) Upsert(vehicleID string, u domain.VehicleUpdate) (*domain.Vehicle, error) {
	if vehicleID == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	e := r.getOrCreate(vehicleID)

	e.mu.Lock()
	defer e.mu.Unlock()

	v := &e.v

	if u.Lat != nil {
		v.Lat = *u.Lat
		v.Lon = *u.Lon
		if !u.FixTimestamp.IsZero() {
			v.FixTimestamp = u.FixTimestamp
		} else {
			v.FixTimestamp = r.now()
		}
	}
	if u.Capacity != nil {
		v.Capacity = *u.Capacity
	}
	if u.Occupancy != nil {
		v.Occupancy = *u.Occupancy
	}
	if u.OccupancyDelta != nil {
		v.Occupancy += *u.OccupancyDelta
	}
	// Occupancy stays inside [0, capacity] after every mutation; deltas
	// clamp rather than error.
	if v.Occupancy < 0 {
		v.Occupancy = 0
	}
	if v.Occupancy > v.Capacity {
		v.Occupancy = v.Capacity
	}
	if u.Status != nil {
		v.Status = *u.Status
	}
	if u.RouteID != nil {
		v.RouteID = *u.RouteID
	}
	if u.Direction != nil {
		v.Direction = *u.Direction
	}
	if u.DriverID != nil {
		v.DriverID = *u.DriverID
	}
	if u.DemandHigh != nil {
		v.DemandHigh = *u.DemandHigh
		v.DemandSetAt = r.now()
	}
	v.UpdatedAt = r.now()

	snap := *v
	return &snap, nil
}

// Seed installs a snapshot loaded from the durable store without stamping
// UpdatedAt, so rebuilt entries read as stale until fresh telemetry arrives.
func (r *Registry) Seed(v *domain.Vehicle) {
	if v == nil || v.ID == "" {
		return
	}
	e := r.getOrCreate(v.ID)
	e.mu.Lock()
	e.v = *v
	e.mu.Unlock()
}

// Get returns a copy of the vehicle's snapshot with the staleness flag set.
func (r *Registry) Get(vehicleID string) (*domain.Vehicle, bool) {
	r.mu.RLock()
	e, ok := r.entries[vehicleID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	snap := e.v
	e.mu.Unlock()

	snap.Stale = snap.StaleAfter(r.staleAfter, r.now())
	return &snap, true
}

// Snapshot returns copies of every vehicle's current state.
func (r *Registry) Snapshot() []*domain.Vehicle {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := r.now()
	result := make([]*domain.Vehicle, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snap := e.v
		e.mu.Unlock()
		snap.Stale = snap.StaleAfter(r.staleAfter, now)
		result = append(result, &snap)
	}
	return result
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) getOrCreate(vehicleID string) *entry {
	r.mu.RLock()
	e, ok := r.entries[vehicleID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[vehicleID]; ok {
		return e
	}
	e = &entry{v: domain.Vehicle{
		ID:       vehicleID,
		Capacity: domain.DefaultCapacity,
		Status:   domain.StatusIdle,
	}}
	r.entries[vehicleID] = e
	return e
}
