package domain

import "time"

// DemandSignal is a short-lived indicator that riders are waiting. Rows are
// write-once; readers filter on ExpiresAt instead of relying on deletion.
type DemandSignal struct {
	ID           string    `json:"id" bson:"_id"`
	VehicleID    string    `json:"vehicleId" bson:"vehicle_id"`
	RouteID      string    `json:"routeId" bson:"route_id"`
	Direction    Direction `json:"direction" bson:"direction"`
	Lat          float64   `json:"lat" bson:"lat"`
	Lon          float64   `json:"lon" bson:"lon"`
	High         bool      `json:"high" bson:"high"`
	StopSequence *int      `json:"stopSequence,omitempty" bson:"stop_sequence,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	ExpiresAt    time.Time `json:"expiresAt" bson:"expires_at"`
}

// Expired uses a strict boundary: a signal is gone the instant now reaches
// ExpiresAt.
func (s *DemandSignal) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// StopDemand is the aggregated waiting count at one stop.
type StopDemand struct {
	Sequence     int `json:"sequence"`
	WaitingCount int `json:"waiting_count"`
}

// DemandSummary is the per-route+direction aggregate view, recomputed on
// read from unexpired signals.
type DemandSummary struct {
	RouteID   string       `json:"route_id"`
	Direction Direction    `json:"direction"`
	Stops     []StopDemand `json:"stops"`
}
