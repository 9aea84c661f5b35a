package aggregator

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbon-capture-ai/internal/models"
)

// DefaultOptimizeInterval is the minimum time between two optimizations of one unit
const DefaultOptimizeInterval = 60 * time.Second

// UnitState holds the latest sensor values for a unit
type UnitState struct {
	UnitID        string
	Values        models.SensorReading
	SensorIDs     map[string]string // sensor type -> last reporting sensor
	LastSeen      time.Time
	LastOptimized time.Time

	qualitySum float64
	samples    int
}

// snapshot returns the reading with data_quality set to the mean sample quality
func (u *UnitState) snapshot() models.SensorReading {
	out := u.Values.Clone()
	if u.samples > 0 {
		out[models.FieldDataQuality] = u.qualitySum / float64(u.samples)
	}
	return out
}

// UnitBuffer keeps the latest value per sensor type per unit and decides
// when a unit has enough data to be optimized
type UnitBuffer struct {
	units    map[string]*UnitState
	required []string
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	mu       sync.Mutex
}

// Option configures a UnitBuffer
type Option func(*UnitBuffer)

// WithClock overrides the time source used for rate limiting
func WithClock(now func() time.Time) Option {
	return func(b *UnitBuffer) { b.now = now }
}

// WithLogger sets the buffer logger. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(b *UnitBuffer) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewUnitBuffer creates a buffer that releases a unit at most once per interval
func NewUnitBuffer(interval time.Duration, opts ...Option) *UnitBuffer {
	if interval <= 0 {
		interval = DefaultOptimizeInterval
	}
	b := &UnitBuffer{
		units:    make(map[string]*UnitState),
		required: models.RequiredFields,
		interval: interval,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// getOrCreateUnit must be called with b.mu held
func (b *UnitBuffer) getOrCreateUnit(unitID string) *UnitState {
	if unit, exists := b.units[unitID]; exists {
		return unit
	}
	unit := &UnitState{
		UnitID:    unitID,
		Values:    make(models.SensorReading),
		SensorIDs: make(map[string]string),
	}
	b.units[unitID] = unit
	b.logger.Info("Tracking new unit", zap.String("unit_id", unitID))
	return unit
}

// Update records a sample. When the unit has every required field and
// was not optimized within the interval, Update returns a snapshot of its
// reading and true, and the unit counts as optimized from now on.
func (b *UnitBuffer) Update(s models.SensorSample) (models.SensorReading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	unit := b.getOrCreateUnit(s.UnitID)
	unit.Values[s.SensorType] = s.Value
	unit.SensorIDs[s.SensorType] = s.SensorID
	unit.qualitySum += s.Quality
	unit.samples++
	unit.LastSeen = b.now()

	if missing := unit.Values.Missing(b.required); len(missing) > 0 {
		return nil, false
	}

	now := b.now()
	if !unit.LastOptimized.IsZero() && now.Sub(unit.LastOptimized) < b.interval {
		return nil, false
	}
	unit.LastOptimized = now

	b.logger.Debug("Unit ready for optimization",
		zap.String("unit_id", s.UnitID),
		zap.Int("fields", len(unit.Values)))
	return unit.snapshot(), true
}

// Snapshot returns the current reading of a unit
func (b *UnitBuffer) Snapshot(unitID string) (models.SensorReading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	unit, ok := b.units[unitID]
	if !ok {
		return nil, false
	}
	return unit.snapshot(), true
}

// Units returns all tracked unit ids in sorted order
func (b *UnitBuffer) Units() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.units))
	for id := range b.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkOptimized records that unitID was optimized at t, e.g. from history
// after a restart. Later timestamps win.
func (b *UnitBuffer) MarkOptimized(unitID string, t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	unit := b.getOrCreateUnit(unitID)
	if t.After(unit.LastOptimized) {
		unit.LastOptimized = t
	}
}
