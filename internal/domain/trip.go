package domain

import "time"

// TripPoint is one buffered GPS fix inside a trip path.
type TripPoint struct {
	Lat       float64   `json:"lat" bson:"lat"`
	Lon       float64   `json:"lon" bson:"lon"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// TripRecord is an immutable summary of one detected trip. Records are
// append-only; nothing in the system mutates one after it is written.
type TripRecord struct {
	ID          string      `json:"id" bson:"_id"`
	VehicleID   string      `json:"vehicleId" bson:"vehicle_id"`
	RouteID     string      `json:"routeId,omitempty" bson:"route_id,omitempty"`
	Direction   Direction   `json:"direction,omitempty" bson:"direction,omitempty"`
	DriverID    string      `json:"driverId,omitempty" bson:"driver_id,omitempty"`
	StartTime   time.Time   `json:"startTime" bson:"start_time"`
	EndTime     time.Time   `json:"endTime" bson:"end_time"`
	DistanceKm  float64     `json:"distanceKm" bson:"distance_km"`
	DurationS   float64     `json:"durationS" bson:"duration_s"`
	AvgSpeedKmh float64     `json:"avgSpeedKmph" bson:"avg_speed_kmph"`
	Path        []TripPoint `json:"path" bson:"path"`
	Status      string      `json:"status" bson:"status"`
}

const TripStatusCompleted = "completed"
