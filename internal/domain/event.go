package domain

// Role of a connected subscriber, supplied by the upstream auth layer.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) Role {
	switch Role(s) {
	case RoleDriver:
		return RoleDriver
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleRider
	}
}

// EventType identifies a fan-out message.
type EventType string

const (
	EventVehicle           EventType = "vehicle"
	EventTripCompleted     EventType = "trip_completed"
	EventAssignmentChanged EventType = "assignment_changed"
	EventDemandUpdate      EventType = "demand_update"
)

// Event is one state change handed to the broadcaster. RouteID is the
// filtering hint; exactly one payload field is set per type.
type Event struct {
	Type       EventType      `json:"type"`
	RouteID    string         `json:"-"`
	Vehicle    *Vehicle       `json:"-"`
	Trip       *TripRecord    `json:"-"`
	Assignment *Assignment    `json:"-"`
	Demand     *DemandSummary `json:"-"`
}

// VisibleTo applies the role gate: raw trip and assignment internals are
// for drivers and admins; vehicle snapshots and demand go to everyone
// (riders receive the sanitized vehicle view).
func (e Event) VisibleTo(role Role) bool {
	switch e.Type {
	case EventVehicle, EventDemandUpdate:
		return true
	case EventTripCompleted, EventAssignmentChanged:
		return role == RoleDriver || role == RoleAdmin
	}
	return false
}
