package trip

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"shuttled/internal/domain"
	"shuttled/internal/geo"
)

// Thresholds for trip boundary detection. A trip only completes after the
// vehicle has been idle and empty for DebounceWindow, and a record is only
// emitted when it clears the micro-trip filter.
const (
	DebounceWindow  = 2 * time.Minute
	MinTripDuration = time.Minute
	MinTripDistKm   = 0.05
	BufferWindow    = 15 * time.Minute
)

// RecordWriter persists completed trips.
type RecordWriter interface {
	AppendTripRecord(ctx context.Context, rec *domain.TripRecord) error
}

// DirectionResolver optionally infers a trip's direction from its first
// fix, e.g. by matching the nearest terminus. May return "".
type DirectionResolver interface {
	ResolveDirection(ctx context.Context, routeID string, lat, lon float64) domain.Direction
}

// Synthesizer derives discrete trips from the continuous telemetry stream.
// One state machine per vehicle, each behind its own lock. It never returns
// errors into the ingest path: bad points are skipped and a failed store
// write loses the trip rather than blocking live state.
type Synthesizer struct {
	mu     sync.RWMutex
	states map[string]*vehicleState

	writer   RecordWriter
	resolver DirectionResolver
	logger   *slog.Logger
	now      func() time.Time
}

type vehicleState struct {
	mu        sync.Mutex
	active    bool
	tripStart time.Time
	idleSince time.Time
	points    []domain.TripPoint
	routeID   string
	direction domain.Direction
	driverID  string
}

func NewSynthesizer(writer RecordWriter, resolver DirectionResolver, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		states:   make(map[string]*vehicleState),
		writer:   writer,
		resolver: resolver,
		logger:   logger.With("component", "trip_synthesizer"),
		now:      time.Now,
	}
}

// Observe feeds one post-merge vehicle snapshot into the state machine and
// returns the completed trip record, if this sample closed one.
func (s *Synthesizer) Observe(ctx context.Context, v *domain.Vehicle) *domain.TripRecord {
	if v == nil || v.ID == "" {
		return nil
	}

	st := s.getOrCreate(v.ID)

	st.mu.Lock()
	ts := v.UpdatedAt
	if ts.IsZero() {
		ts = v.FixTimestamp
	}
	if ts.IsZero() {
		ts = s.now()
	}

	moving := v.Status == domain.StatusActive || v.Occupancy > 0

	if !st.active {
		if moving {
			st.active = true
			st.tripStart = ts
			st.idleSince = time.Time{}
			st.points = st.points[:0]
			st.routeID = v.RouteID
			st.direction = v.Direction
			st.driverID = v.DriverID
			st.appendPoint(v, ts)
		}
		st.mu.Unlock()
		return nil
	}

	// Idle/empty samples do not extend the path: the trip's last point is
	// the last moving fix, so the debounce window never inflates duration.
	if moving {
		st.appendPoint(v, ts)
	}
	st.trim(ts)
	if v.RouteID != "" {
		st.routeID = v.RouteID
	}
	if v.Direction != "" {
		st.direction = v.Direction
	}
	if v.DriverID != "" {
		st.driverID = v.DriverID
	}

	if moving {
		st.idleSince = time.Time{}
		st.mu.Unlock()
		return nil
	}

	if st.idleSince.IsZero() {
		st.idleSince = ts
		st.mu.Unlock()
		return nil
	}

	if ts.Sub(st.idleSince) < DebounceWindow {
		st.mu.Unlock()
		return nil
	}

	// Debounce satisfied. Trips shorter than the minimum duration are noise
	// from flapping status; discard the state without emitting a record.
	if st.idleSince.Sub(st.tripStart) <= MinTripDuration {
		st.finish(v.ID)
		st.mu.Unlock()
		return nil
	}

	rec := st.finish(v.ID)
	st.mu.Unlock()

	return s.emit(ctx, rec)
}

// Sweep trims stale buffer points and closes out trips whose vehicles went
// quiet without a final sample. Returns any records completed by the sweep.
func (s *Synthesizer) Sweep(ctx context.Context) []*domain.TripRecord {
	s.mu.RLock()
	ids := make([]string, 0, len(s.states))
	states := make([]*vehicleState, 0, len(s.states))
	for id, st := range s.states {
		ids = append(ids, id)
		states = append(states, st)
	}
	s.mu.RUnlock()

	now := s.now()
	var completed []*domain.TripRecord

	for i, st := range states {
		st.mu.Lock()
		st.trim(now)
		var rec *domain.TripRecord
		if st.active && !st.idleSince.IsZero() && now.Sub(st.idleSince) >= DebounceWindow {
			if st.idleSince.Sub(st.tripStart) > MinTripDuration {
				rec = st.finish(ids[i])
			} else {
				st.finish(ids[i])
			}
		}
		st.mu.Unlock()

		if rec != nil {
			if out := s.emit(ctx, rec); out != nil {
				completed = append(completed, out)
			}
		}
	}
	return completed
}

// Run sweeps on a fixed interval until the context is cancelled. Records
// completed by a sweep are already persisted; onComplete lets the caller
// fan them out.
func (s *Synthesizer) Run(ctx context.Context, interval time.Duration, onComplete func(*domain.TripRecord)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rec := range s.Sweep(ctx) {
				if onComplete != nil {
					onComplete(rec)
				}
			}
		}
	}
}

// emit applies the micro-trip filter, resolves direction if missing, and
// persists the record. A store failure is logged and the trip is lost; the
// in-memory state was already reset.
func (s *Synthesizer) emit(ctx context.Context, rec *domain.TripRecord) *domain.TripRecord {
	if rec == nil {
		return nil
	}
	if rec.DistanceKm <= MinTripDistKm || rec.DurationS <= MinTripDuration.Seconds() {
		s.logger.Debug("discarding micro-trip",
			"vehicle_id", rec.VehicleID,
			"distance_km", rec.DistanceKm,
			"duration_s", rec.DurationS,
		)
		return nil
	}

	if rec.Direction == "" && s.resolver != nil && rec.RouteID != "" && len(rec.Path) > 0 {
		first := rec.Path[0]
		rec.Direction = s.resolver.ResolveDirection(ctx, rec.RouteID, first.Lat, first.Lon)
	}

	if err := s.writer.AppendTripRecord(ctx, rec); err != nil {
		s.logger.Error("failed to persist trip record, trip lost",
			"vehicle_id", rec.VehicleID,
			"trip_id", rec.ID,
			"error", err,
		)
		return nil
	}

	s.logger.Info("trip completed",
		"vehicle_id", rec.VehicleID,
		"route_id", rec.RouteID,
		"distance_km", rec.DistanceKm,
		"duration_s", rec.DurationS,
	)
	return rec
}

func (s *Synthesizer) getOrCreate(vehicleID string) *vehicleState {
	s.mu.RLock()
	st, ok := s.states[vehicleID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.states[vehicleID]; ok {
		return st
	}
	st = &vehicleState{}
	s.states[vehicleID] = st
	return st
}

func (st *vehicleState) appendPoint(v *domain.Vehicle, ts time.Time) {
	if v.Lat == 0 && v.Lon == 0 && v.FixTimestamp.IsZero() {
		// No fix yet for this vehicle, nothing to buffer.
		return
	}
	st.points = append(st.points, domain.TripPoint{Lat: v.Lat, Lon: v.Lon, Timestamp: ts})
}

// trim drops points older than the rolling window, independent of trip
// boundaries, to bound memory.
func (st *vehicleState) trim(now time.Time) {
	cutoff := now.Add(-BufferWindow)
	i := 0
	for i < len(st.points) && st.points[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.points = append(st.points[:0], st.points[i:]...)
	}
}

// finish computes the summary and resets the state. Caller holds st.mu.
func (st *vehicleState) finish(vehicleID string) *domain.TripRecord {
	path := make([]domain.TripPoint, len(st.points))
	copy(path, st.points)

	rec := &domain.TripRecord{
		ID:        uuid.New().String(),
		VehicleID: vehicleID,
		RouteID:   st.routeID,
		Direction: st.direction,
		DriverID:  st.driverID,
		StartTime: st.tripStart,
		Path:      path,
		Status:    domain.TripStatusCompleted,
	}

	if len(path) > 0 {
		rec.EndTime = path[len(path)-1].Timestamp
	} else {
		rec.EndTime = st.tripStart
	}
	rec.DistanceKm = geo.PathDistanceKm(path)
	rec.DurationS = rec.EndTime.Sub(rec.StartTime).Seconds()
	if rec.DurationS > 0 {
		rec.AvgSpeedKmh = rec.DistanceKm / (rec.DurationS / 3600)
	}

	st.active = false
	st.idleSince = time.Time{}
	st.points = st.points[:0]
	st.tripStart = time.Time{}

	return rec
}
