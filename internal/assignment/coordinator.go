package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shuttled/internal/domain"
	"shuttled/internal/store"
)

// Conflict scopes, named in errors so the caller knows which exclusivity
// invariant broke.
const (
	ScopeDriver         = "driver"
	ScopeVehicle        = "vehicle"
	ScopeRouteDirection = "route_direction"
)

// ConflictError reports an exclusivity violation against the active subset.
type ConflictError struct {
	Scope      string
	Key        string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("assignment conflict: %s %q already has an active assignment (%s)", e.Scope, e.Key, e.ExistingID)
}

// CreateRequest carries the fields of a new assignment.
type CreateRequest struct {
	RouteID   string           `json:"route_id"`
	Direction domain.Direction `json:"direction"`
	VehicleID string           `json:"vehicle_id"`
	DriverID  string           `json:"driver_id"`
}

// Patch updates a subset of an assignment's fields. Nil fields are
// untouched.
type Patch struct {
	RouteID   *string           `json:"route_id,omitempty"`
	Direction *domain.Direction `json:"direction,omitempty"`
	VehicleID *string           `json:"vehicle_id,omitempty"`
	DriverID  *string           `json:"driver_id,omitempty"`
	Active    *bool             `json:"active,omitempty"`
}

// Coordinator enforces the three exclusivity invariants over the active
// assignment subset. The conflict scan and the write run inside one keyed
// critical section (driver, vehicle and route+direction scopes locked in
// sorted order), so two concurrent creates for the same scope cannot both
// pass validation.
type Coordinator struct {
	store  store.Store
	locks  *scopeLocks
	logger *slog.Logger
	now    func() time.Time
}

func NewCoordinator(s store.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:  s,
		locks:  newScopeLocks(),
		logger: logger.With("component", "assignment_coordinator"),
		now:    time.Now,
	}
}

// Create inserts a new active assignment, failing with a ConflictError when
// the driver, vehicle or route+direction already participates in an active
// one. No state is written on conflict.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*domain.Assignment, error) {
	if req.RouteID == "" || req.VehicleID == "" || req.DriverID == "" || !req.Direction.Valid() {
		return nil, domain.ErrInvalidInput
	}

	keys := scopeKeys(req.DriverID, req.VehicleID, req.RouteID, req.Direction)
	unlock := c.locks.lock(keys)
	defer unlock()

	if err := c.checkConflicts(ctx, req.DriverID, req.VehicleID, req.RouteID, req.Direction, ""); err != nil {
		return nil, err
	}

	now := c.now()
	a := &domain.Assignment{
		ID:        uuid.New().String(),
		RouteID:   req.RouteID,
		Direction: req.Direction,
		VehicleID: req.VehicleID,
		DriverID:  req.DriverID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.refreshDisplay(ctx, a, true, true, true)

	if err := c.store.PutAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("persist assignment: %w", err)
	}

	c.logger.Info("assignment created",
		"assignment_id", a.ID,
		"route_id", a.RouteID,
		"direction", a.Direction,
		"vehicle_id", a.VehicleID,
		"driver_id", a.DriverID,
	)
	return a, nil
}

// Update patches an assignment and re-validates the invariants against the
// post-patch values, excluding the record itself from the conflict scan.
// Display fields are refreshed only for references whose id changed.
func (c *Coordinator) Update(ctx context.Context, id string, p Patch) (*domain.Assignment, error) {
	if id == "" {
		return nil, domain.ErrInvalidInput
	}
	if p.Direction != nil && !p.Direction.Valid() {
		return nil, domain.ErrInvalidInput
	}

	existing, err := c.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *existing
	if p.RouteID != nil {
		next.RouteID = *p.RouteID
	}
	if p.Direction != nil {
		next.Direction = *p.Direction
	}
	if p.VehicleID != nil {
		next.VehicleID = *p.VehicleID
	}
	if p.DriverID != nil {
		next.DriverID = *p.DriverID
	}
	if p.Active != nil {
		next.Active = *p.Active
	}

	// Lock both the old and new scopes so a concurrent create against
	// either cannot interleave with the re-validation.
	keys := scopeKeys(existing.DriverID, existing.VehicleID, existing.RouteID, existing.Direction)
	keys = append(keys, scopeKeys(next.DriverID, next.VehicleID, next.RouteID, next.Direction)...)
	unlock := c.locks.lock(keys)
	defer unlock()

	if next.Active {
		if err := c.checkConflicts(ctx, next.DriverID, next.VehicleID, next.RouteID, next.Direction, id); err != nil {
			return nil, err
		}
	}

	c.refreshDisplay(ctx, &next,
		next.DriverID != existing.DriverID,
		next.VehicleID != existing.VehicleID,
		next.RouteID != existing.RouteID,
	)
	next.UpdatedAt = c.now()

	if err := c.store.PutAssignment(ctx, &next); err != nil {
		return nil, fmt.Errorf("persist assignment: %w", err)
	}

	c.logger.Info("assignment updated", "assignment_id", next.ID, "active", next.Active)
	return &next, nil
}

// Delete soft-deletes by setting active=false. Deleting a missing or
// already-inactive assignment is an idempotent no-op.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	existing, err := c.store.GetAssignment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !existing.Active {
		return nil
	}

	existing.Active = false
	existing.UpdatedAt = c.now()
	if err := c.store.PutAssignment(ctx, existing); err != nil {
		return fmt.Errorf("persist assignment: %w", err)
	}

	c.logger.Info("assignment deactivated", "assignment_id", id)
	return nil
}

// List returns assignments, optionally restricted to the active subset.
func (c *Coordinator) List(ctx context.Context, activeOnly bool) ([]*domain.Assignment, error) {
	f := store.AssignmentFilter{}
	if activeOnly {
		active := true
		f.Active = &active
	}
	return c.store.QueryAssignments(ctx, f)
}

func (c *Coordinator) checkConflicts(ctx context.Context, driverID, vehicleID, routeID string, dir domain.Direction, excludeID string) error {
	active := true

	byDriver, err := c.store.QueryAssignments(ctx, store.AssignmentFilter{
		Active: &active, DriverID: driverID, ExcludeID: excludeID,
	})
	if err != nil {
		return fmt.Errorf("query assignments: %w", err)
	}
	if len(byDriver) > 0 {
		return &ConflictError{Scope: ScopeDriver, Key: driverID, ExistingID: byDriver[0].ID}
	}

	byVehicle, err := c.store.QueryAssignments(ctx, store.AssignmentFilter{
		Active: &active, VehicleID: vehicleID, ExcludeID: excludeID,
	})
	if err != nil {
		return fmt.Errorf("query assignments: %w", err)
	}
	if len(byVehicle) > 0 {
		return &ConflictError{Scope: ScopeVehicle, Key: vehicleID, ExistingID: byVehicle[0].ID}
	}

	byRoute, err := c.store.QueryAssignments(ctx, store.AssignmentFilter{
		Active: &active, RouteID: routeID, Direction: dir, ExcludeID: excludeID,
	})
	if err != nil {
		return fmt.Errorf("query assignments: %w", err)
	}
	if len(byRoute) > 0 {
		return &ConflictError{
			Scope:      ScopeRouteDirection,
			Key:        routeID + "/" + string(dir),
			ExistingID: byRoute[0].ID,
		}
	}
	return nil
}

// refreshDisplay pulls display fields from the referenced records. Lookup
// failures leave the fields blank rather than failing the write.
func (c *Coordinator) refreshDisplay(ctx context.Context, a *domain.Assignment, driver, vehicle, route bool) {
	if driver {
		if d, err := c.store.GetDriver(ctx, a.DriverID); err == nil {
			a.DriverName = d.Name
			a.DriverEmail = d.Email
		} else {
			a.DriverName, a.DriverEmail = "", ""
		}
	}
	if vehicle {
		if v, err := c.store.GetVehicle(ctx, a.VehicleID); err == nil {
			a.VehiclePlate = v.Plate
		} else {
			a.VehiclePlate = ""
		}
	}
	if route {
		if r, err := c.store.GetRoute(ctx, a.RouteID); err == nil {
			a.RouteName = r.Name
		} else {
			a.RouteName = ""
		}
	}
}

func scopeKeys(driverID, vehicleID, routeID string, dir domain.Direction) []string {
	return []string{
		ScopeDriver + ":" + driverID,
		ScopeVehicle + ":" + vehicleID,
		ScopeRouteDirection + ":" + routeID + "/" + string(dir),
	}
}

// scopeLocks hands out one mutex per exclusivity scope key. Keys are
// deduplicated and acquired in sorted order to avoid deadlock.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *scopeLocks) lock(keys []string) (unlock func()) {
	uniq := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		uniq[k] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for k := range uniq {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	l.mu.Lock()
	mus := make([]*sync.Mutex, 0, len(sorted))
	for _, k := range sorted {
		mu, ok := l.locks[k]
		if !ok {
			mu = &sync.Mutex{}
			l.locks[k] = mu
		}
		mus = append(mus, mu)
	}
	l.mu.Unlock()

	for _, mu := range mus {
		mu.Lock()
	}
	return func() {
		for i := len(mus) - 1; i >= 0; i-- {
			mus[i].Unlock()
		}
	}
}
