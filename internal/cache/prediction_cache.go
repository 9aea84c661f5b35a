package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbon-capture-ai/internal/apperr"
	"carbon-capture-ai/internal/models"
)

const (
	DefaultTTL       = 300 * time.Second
	DefaultHighWater = 100
)

// Key identifies a cached prediction. Digests are scoped by kind, so the
// same input under two kinds never shares an entry.
type Key struct {
	Kind   models.PredictionKind
	Digest string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.Digest
}

// NewKey hashes the JSON encoding of input, prefixed by kind. Map keys are
// encoded in sorted order, which makes structurally equal maps hash equally.
func NewKey(kind models.PredictionKind, input any) (Key, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return Key{}, fmt.Errorf("failed to canonicalize %s input: %w", kind, err)
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(data)
	return Key{Kind: kind, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

type entry struct {
	value     models.Prediction
	createdAt time.Time
}

// KindStats counts lookups for one prediction kind
type KindStats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Corruptions uint64 `json:"corruptions"`
}

// Stats is a snapshot of cache state
type Stats struct {
	Entries int                                 `json:"size"`
	TTL     time.Duration                       `json:"-"`
	Kinds   map[models.PredictionKind]KindStats `json:"kinds"`
}

// PredictionCache is a TTL cache of prediction results safe for concurrent use
type PredictionCache struct {
	mu        sync.Mutex
	entries   map[Key]entry
	stats     map[models.PredictionKind]*KindStats
	ttl       time.Duration
	highWater int
	// set while the resident count is above highWater, so the warning is logged once per crossing
	overHighWater bool
	lastSweep     time.Time
	now           func() time.Time
	logger        *zap.Logger
}

// Option configures a PredictionCache
type Option func(*PredictionCache)

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(c *PredictionCache) { c.now = now }
}

// WithHighWater sets the advisory entry count above which a warning is logged
func WithHighWater(n int) Option {
	return func(c *PredictionCache) { c.highWater = n }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *PredictionCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache with the given TTL. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration, opts ...Option) *PredictionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &PredictionCache{
		entries:   make(map[Key]entry),
		stats:     make(map[models.PredictionKind]*KindStats),
		ttl:       ttl,
		highWater: DefaultHighWater,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSweep = c.now()
	return c
}

// TTL returns the configured time-to-live
func (c *PredictionCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached prediction for key if it is younger than the TTL.
// Stale entries read as absent and are left for the sweep. An entry that
// fails validation is dropped and reported as a miss.
func (c *PredictionCache) Get(key Key) (models.Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) > c.ttl {
		c.sweepLocked(now)
	}

	st := c.kindStats(key.Kind)
	e, ok := c.entries[key]
	if !ok || now.Sub(e.createdAt) > c.ttl {
		st.Misses++
		return nil, false
	}

	if err := validate(key, e.value); err != nil {
		st.Corruptions++
		st.Misses++
		delete(c.entries, key)
		c.logger.Warn("Discarding corrupt cache entry",
			zap.String("key", key.String()),
			zap.Error(err))
		return nil, false
	}

	st.Hits++
	return e.value, true
}

// Put stores value under key, replacing any existing entry, and sweeps
// expired entries.
func (c *PredictionCache) Put(key Key, value models.Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry{value: value, createdAt: now}
	c.sweepLocked(now)
}

// Sweep deletes expired entries and returns how many were removed
func (c *PredictionCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *PredictionCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	c.lastSweep = now

	n := len(c.entries)
	switch {
	case n > c.highWater && !c.overHighWater:
		c.overHighWater = true
		c.logger.Warn("Prediction cache above high-water mark",
			zap.Int("entries", n),
			zap.Int("high_water", c.highWater))
	case n <= c.highWater:
		c.overHighWater = false
	}
	return removed
}

// Len returns the number of resident entries, including expired ones not yet swept
func (c *PredictionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes every entry. Counters are kept.
func (c *PredictionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry)
	c.overHighWater = false
}

// Stats returns a snapshot of sizes and counters
func (c *PredictionCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries: len(c.entries),
		TTL:     c.ttl,
		Kinds:   make(map[models.PredictionKind]KindStats, len(c.stats)),
	}
	for k, v := range c.stats {
		s.Kinds[k] = *v
	}
	return s
}

func (c *PredictionCache) kindStats(kind models.PredictionKind) *KindStats {
	st, ok := c.stats[kind]
	if !ok {
		st = &KindStats{}
		c.stats[kind] = st
	}
	return st
}

func validate(key Key, value models.Prediction) error {
	if value == nil {
		return apperr.New(apperr.KindCacheCorruption, "cache_get", "nil entry")
	}
	if value.Kind() != key.Kind {
		return apperr.New(apperr.KindCacheCorruption, "cache_get",
			fmt.Sprintf("entry kind %s under %s key", value.Kind(), key.Kind))
	}
	if err := value.Validate(); err != nil {
		return apperr.Wrap(apperr.KindCacheCorruption, "cache_get", err)
	}
	return nil
}
