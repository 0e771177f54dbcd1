package store

import (
	"context"
	"errors"
	"time"

	"shuttled/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// AssignmentFilter selects assignments by equality on its non-zero fields.
// ExcludeID drops one record from the result, used when re-validating an
// update against everything but itself.
type AssignmentFilter struct {
	Active    *bool
	DriverID  string
	VehicleID string
	RouteID   string
	Direction domain.Direction
	ExcludeID string
}

func (f AssignmentFilter) Matches(a *domain.Assignment) bool {
	if f.ExcludeID != "" && a.ID == f.ExcludeID {
		return false
	}
	if f.Active != nil && a.Active != *f.Active {
		return false
	}
	if f.DriverID != "" && a.DriverID != f.DriverID {
		return false
	}
	if f.VehicleID != "" && a.VehicleID != f.VehicleID {
		return false
	}
	if f.RouteID != "" && a.RouteID != f.RouteID {
		return false
	}
	if f.Direction != "" && a.Direction != f.Direction {
		return false
	}
	return true
}

// Store is the durable system of record for assignments, trip records and
// demand signals, plus the reference data the core denormalizes from. The
// live registry is derived state and can be rebuilt from ListVehicles.
type Store interface {
	GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error)
	PutVehicle(ctx context.Context, v *domain.Vehicle) error
	ListVehicles(ctx context.Context) ([]*domain.Vehicle, error)

	GetDriver(ctx context.Context, id string) (*domain.Driver, error)
	GetRoute(ctx context.Context, id string) (*domain.Route, error)

	GetAssignment(ctx context.Context, id string) (*domain.Assignment, error)
	QueryAssignments(ctx context.Context, f AssignmentFilter) ([]*domain.Assignment, error)
	PutAssignment(ctx context.Context, a *domain.Assignment) error

	AppendTripRecord(ctx context.Context, rec *domain.TripRecord) error
	ListTripRecords(ctx context.Context, vehicleID string, limit int) ([]*domain.TripRecord, error)

	AppendDemandSignal(ctx context.Context, sig *domain.DemandSignal) error
	QueryDemandSignals(ctx context.Context, routeID string, dir domain.Direction, notExpiredAt time.Time) ([]*domain.DemandSignal, error)

	GetRouteStopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error)
}
