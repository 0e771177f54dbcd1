package domain

import "time"

// Assignment binds one driver and one vehicle to one route+direction.
// At most one active assignment may exist per driver, per vehicle, and per
// (route, direction) pair. Deletion is a soft transition to active=false.
type Assignment struct {
	ID        string    `json:"id" bson:"_id"`
	RouteID   string    `json:"routeId" bson:"route_id"`
	Direction Direction `json:"direction" bson:"direction"`
	VehicleID string    `json:"vehicleId" bson:"vehicle_id"`
	DriverID  string    `json:"driverId" bson:"driver_id"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`

	// Display fields denormalized from the referenced records. Refreshed
	// only when the corresponding id changes.
	RouteName    string `json:"routeName,omitempty" bson:"route_name,omitempty"`
	VehiclePlate string `json:"vehiclePlate,omitempty" bson:"vehicle_plate,omitempty"`
	DriverName   string `json:"driverName,omitempty" bson:"driver_name,omitempty"`
	DriverEmail  string `json:"driverEmail,omitempty" bson:"driver_email,omitempty"`
}

// Route is the administrative record for a campus route.
type Route struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
}

// RouteStop is one stop in a route's ordered sequence for a direction.
type RouteStop struct {
	RouteID   string    `json:"routeId" bson:"route_id"`
	Direction Direction `json:"direction" bson:"direction"`
	Sequence  int       `json:"sequence" bson:"sequence"`
	Name      string    `json:"name,omitempty" bson:"name,omitempty"`
	Lat       float64   `json:"lat" bson:"lat"`
	Lon       float64   `json:"lon" bson:"lon"`
}
