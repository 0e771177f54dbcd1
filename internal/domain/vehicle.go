package domain

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidInput marks a request that was rejected before any state changed.
var ErrInvalidInput = errors.New("invalid input")

// DefaultCapacity is used for vehicles created implicitly by telemetry.
const DefaultCapacity = 4

// OperatingStatus is the driver-reported state of a vehicle
type OperatingStatus string

const (
	StatusIdle        OperatingStatus = "idle"
	StatusActive      OperatingStatus = "active"
	StatusMaintenance OperatingStatus = "maintenance"
)

func (s OperatingStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusActive, StatusMaintenance:
		return true
	}
	return false
}

// Direction of travel along a route
type Direction string

const (
	DirectionTo  Direction = "to"
	DirectionFro Direction = "fro"
)

func (d Direction) Valid() bool {
	return d == DirectionTo || d == DirectionFro
}

// Vehicle is the live snapshot of one shuttle. The registry owns the
// in-memory copy; the durable store only sees periodic writes of it.
type Vehicle struct {
	ID           string          `json:"id" bson:"_id"`
	Plate        string          `json:"plate,omitempty" bson:"plate,omitempty"`
	Lat          float64         `json:"lat" bson:"lat"`
	Lon          float64         `json:"lon" bson:"lon"`
	FixTimestamp time.Time       `json:"fixTimestamp" bson:"fix_timestamp"`
	Occupancy    int             `json:"occupancy" bson:"occupancy"`
	Capacity     int             `json:"capacity" bson:"capacity"`
	Status       OperatingStatus `json:"status" bson:"status"`
	RouteID      string          `json:"routeId,omitempty" bson:"route_id,omitempty"`
	Direction    Direction       `json:"direction,omitempty" bson:"direction,omitempty"`
	DriverID     string          `json:"driverId,omitempty" bson:"driver_id,omitempty"`
	DemandHigh   bool            `json:"demandHigh" bson:"demand_high"`
	DemandSetAt  time.Time       `json:"demandSetAt" bson:"demand_set_at,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt" bson:"updated_at"`
	Stale        bool            `json:"stale,omitempty" bson:"-"`
}

// StaleAfter reports whether the snapshot is older than the given threshold.
// Staleness is a read-time interpretation; the registry never evicts.
func (v *Vehicle) StaleAfter(threshold time.Duration, now time.Time) bool {
	return now.Sub(v.UpdatedAt) > threshold
}

// Sanitized returns the rider-visible view of the snapshot. Driver identity
// and demand bookkeeping stay internal.
func (v *Vehicle) Sanitized() *Vehicle {
	c := *v
	c.DriverID = ""
	c.DemandSetAt = time.Time{}
	return &c
}

// VehicleUpdate is a partial mutation merged into a vehicle snapshot.
// Nil fields are left untouched. OccupancyDelta clamps against capacity
// instead of erroring.
type VehicleUpdate struct {
	Lat            *float64
	Lon            *float64
	FixTimestamp   time.Time
	Occupancy      *int
	OccupancyDelta *int
	Capacity       *int
	Status         *OperatingStatus
	RouteID        *string
	Direction      *Direction
	DriverID       *string
	DemandHigh     *bool
}

// Validate rejects mutations the registry must never apply.
func (u *VehicleUpdate) Validate() error {
	if (u.Lat == nil) != (u.Lon == nil) {
		return ErrInvalidInput
	}
	if u.Lat != nil {
		if !ValidCoordinates(*u.Lat, *u.Lon) {
			return ErrInvalidInput
		}
	}
	if u.Status != nil && !u.Status.Valid() {
		return ErrInvalidInput
	}
	if u.Direction != nil && *u.Direction != "" && !u.Direction.Valid() {
		return ErrInvalidInput
	}
	if u.Capacity != nil && *u.Capacity <= 0 {
		return ErrInvalidInput
	}
	if u.Occupancy != nil && *u.Occupancy < 0 {
		return ErrInvalidInput
	}
	return nil
}

// ValidCoordinates reports whether the pair is a finite, in-range GPS fix.
func ValidCoordinates(lat, lon float64) bool {
	return finiteCoord(lat, 90) && finiteCoord(lon, 180)
}

func finiteCoord(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// Driver is the identity record referenced by assignments.
type Driver struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}
