package demand

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shuttled/internal/domain"
	"shuttled/internal/geo"
)

// SignalTTL is how long a demand signal counts toward the aggregate.
const SignalTTL = 10 * time.Minute

// SignalWriter persists signals for audit; failures never block the live
// aggregate.
type SignalWriter interface {
	AppendDemandSignal(ctx context.Context, sig *domain.DemandSignal) error
}

// StopProvider returns the ordered stop sequence for a route+direction,
// used to spatially bucket signals that arrive without a stop sequence.
type StopProvider interface {
	StopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error)
}

// Input is one incoming demand signal.
type Input struct {
	VehicleID    string           `json:"vehicle_id"`
	RouteID      string           `json:"route_id"`
	Direction    domain.Direction `json:"direction"`
	Lat          float64          `json:"lat"`
	Lon          float64          `json:"lon"`
	High         bool             `json:"high"`
	StopSequence *int             `json:"stop_sequence,omitempty"`
}

// Aggregator holds the unexpired demand signals and computes per-stop
// waiting counts on read. Expiry is enforced on every read; the GC loop
// only reclaims memory.
type Aggregator struct {
	mu      sync.RWMutex
	signals map[string]*domain.DemandSignal

	writer SignalWriter
	stops  StopProvider
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewAggregator(writer SignalWriter, stops StopProvider, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		signals: make(map[string]*domain.DemandSignal),
		writer:  writer,
		stops:   stops,
		logger:  logger.With("component", "demand_aggregator"),
		ttl:     SignalTTL,
		now:     time.Now,
	}
}

// Signal records a demand signal with a fixed TTL and writes it through to
// the durable store. The store write is best-effort: the live aggregate is
// already updated when it happens.
func (a *Aggregator) Signal(ctx context.Context, in Input) (*domain.DemandSignal, error) {
	if in.VehicleID == "" || in.RouteID == "" || !in.Direction.Valid() {
		return nil, domain.ErrInvalidInput
	}
	if !domain.ValidCoordinates(in.Lat, in.Lon) {
		return nil, domain.ErrInvalidInput
	}

	now := a.now()
	sig := &domain.DemandSignal{
		ID:           uuid.New().String(),
		VehicleID:    in.VehicleID,
		RouteID:      in.RouteID,
		Direction:    in.Direction,
		Lat:          in.Lat,
		Lon:          in.Lon,
		High:         in.High,
		StopSequence: in.StopSequence,
		CreatedAt:    now,
		ExpiresAt:    now.Add(a.ttl),
	}

	a.mu.Lock()
	a.signals[sig.ID] = sig
	a.mu.Unlock()

	if err := a.writer.AppendDemandSignal(ctx, sig); err != nil {
		a.logger.Error("failed to persist demand signal", "signal_id", sig.ID, "error", err)
	}

	c := *sig
	return &c, nil
}

// Summary sums unexpired high signals per stop sequence for one
// route+direction. Signals without a pre-bucketed sequence are matched to
// the nearest stop; signals that cannot be matched are dropped from the
// aggregate.
func (a *Aggregator) Summary(ctx context.Context, routeID string, dir domain.Direction) (*domain.DemandSummary, error) {
	if routeID == "" || !dir.Valid() {
		return nil, domain.ErrInvalidInput
	}

	now := a.now()

	a.mu.RLock()
	var matched []*domain.DemandSignal
	for _, sig := range a.signals {
		if sig.RouteID != routeID || sig.Direction != dir {
			continue
		}
		if sig.Expired(now) || !sig.High {
			continue
		}
		matched = append(matched, sig)
	}
	a.mu.RUnlock()

	counts := make(map[int]int)
	var stops []domain.RouteStop
	for _, sig := range matched {
		seq, ok := a.bucket(ctx, sig, &stops)
		if !ok {
			continue
		}
		counts[seq]++
	}

	summary := &domain.DemandSummary{RouteID: routeID, Direction: dir}
	for seq, n := range counts {
		summary.Stops = append(summary.Stops, domain.StopDemand{Sequence: seq, WaitingCount: n})
	}
	sort.Slice(summary.Stops, func(i, j int) bool {
		return summary.Stops[i].Sequence < summary.Stops[j].Sequence
	})
	return summary, nil
}

// VehicleDemandFlag reports whether the vehicle's most recent unexpired
// signal is high. Derived from the signal set; never stored separately.
func (a *Aggregator) VehicleDemandFlag(vehicleID string) bool {
	now := a.now()

	a.mu.RLock()
	defer a.mu.RUnlock()

	var latest *domain.DemandSignal
	for _, sig := range a.signals {
		if sig.VehicleID != vehicleID || sig.Expired(now) {
			continue
		}
		if latest == nil || sig.CreatedAt.After(latest.CreatedAt) {
			latest = sig
		}
	}
	return latest != nil && latest.High
}

// GC drops expired signals. Purely a memory bound; reads already exclude
// expired rows.
func (a *Aggregator) GC() int {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id, sig := range a.signals {
		if sig.Expired(now) {
			delete(a.signals, id)
			removed++
		}
	}
	return removed
}

// Run garbage-collects on a fixed interval until the context is cancelled.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.GC(); n > 0 {
				a.logger.Debug("expired demand signals collected", "count", n)
			}
		}
	}
}

// bucket resolves a signal to a stop sequence, lazily loading the route's
// stop sequence once per Summary call.
func (a *Aggregator) bucket(ctx context.Context, sig *domain.DemandSignal, stops *[]domain.RouteStop) (int, bool) {
	if sig.StopSequence != nil {
		return *sig.StopSequence, true
	}
	if a.stops == nil {
		return 0, false
	}
	if *stops == nil {
		seq, err := a.stops.StopSequence(ctx, sig.RouteID, sig.Direction)
		if err != nil {
			a.logger.Warn("failed to load stop sequence for demand bucketing",
				"route_id", sig.RouteID, "direction", sig.Direction, "error", err)
			return 0, false
		}
		*stops = seq
	}
	stop, _, ok := geo.NearestStop(*stops, sig.Lat, sig.Lon)
	if !ok {
		return 0, false
	}
	return stop.Sequence, true
}
