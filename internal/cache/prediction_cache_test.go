package cache

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-capture-ai/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func efficiency(v float64) *models.EfficiencyPrediction {
	return &models.EfficiencyPrediction{PredictedEfficiency: v, ConfidenceScore: 1}
}

func mustKey(t *testing.T, kind models.PredictionKind, in any) Key {
	t.Helper()
	k, err := NewKey(kind, in)
	require.NoError(t, err)
	return k
}

func TestNewKeyCanonical(t *testing.T) {
	a := mustKey(t, models.KindEfficiency, map[string]float64{"temperature": 30, "pressure": 50})
	b := mustKey(t, models.KindEfficiency, map[string]float64{"pressure": 50, "temperature": 30})
	assert.Equal(t, a, b)

	c := mustKey(t, models.KindMaintenance, map[string]float64{"temperature": 30, "pressure": 50})
	assert.NotEqual(t, a.Digest, c.Digest)

	_, err := NewKey(models.KindEfficiency, map[string]float64{"temperature": math.NaN()})
	assert.Error(t, err)
}

func TestGetPutWithinTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(300*time.Second, WithClock(clock.Now))
	key := mustKey(t, models.KindEfficiency, map[string]float64{"temperature": 30})

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, efficiency(82.5))
	clock.Advance(300 * time.Second)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, 82.5, got.(*models.EfficiencyPrediction).PredictedEfficiency)

	st := c.Stats().Kinds[models.KindEfficiency]
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestStaleEntryReadsAbsentButIsNotDeletedOnRead(t *testing.T) {
	clock := newFakeClock()
	c := New(10*time.Second, WithClock(clock.Now))
	key := mustKey(t, models.KindEfficiency, map[string]float64{"temperature": 30})
	c.Put(key, efficiency(80))
	clock.Advance(5 * time.Second)
	c.Put(mustKey(t, models.KindEfficiency, map[string]float64{"temperature": 31}), efficiency(81))

	// the last sweep ran 6s ago, so this read does not sweep
	clock.Advance(6 * time.Second)
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestPutSweepsExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(10*time.Second, WithClock(clock.Now))
	for i := 0; i < 5; i++ {
		c.Put(mustKey(t, models.KindEnergy, map[string]int{"i": i}), &models.EnergyOptimization{})
	}
	clock.Advance(11 * time.Second)

	c.Put(mustKey(t, models.KindEnergy, map[string]int{"i": 99}), &models.EnergyOptimization{})
	assert.Equal(t, 1, c.Len())
}

func TestLastWriterWins(t *testing.T) {
	c := New(time.Minute)
	key := mustKey(t, models.KindEfficiency, map[string]float64{"x": 1})
	c.Put(key, efficiency(70))
	c.Put(key, efficiency(75))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, 75.0, got.(*models.EfficiencyPrediction).PredictedEfficiency)
	assert.Equal(t, 1, c.Len())
}

func TestKindScopedCounters(t *testing.T) {
	c := New(time.Minute)
	in := map[string]float64{"temperature": 30}
	effKey := mustKey(t, models.KindEfficiency, in)
	maintKey := mustKey(t, models.KindMaintenance, in)

	c.Put(effKey, efficiency(80))
	_, ok := c.Get(maintKey)
	assert.False(t, ok)
	_, ok = c.Get(effKey)
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, KindStats{Hits: 1}, stats.Kinds[models.KindEfficiency])
	assert.Equal(t, KindStats{Misses: 1}, stats.Kinds[models.KindMaintenance])
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	c := New(time.Minute)
	key := mustKey(t, models.KindEfficiency, map[string]float64{"x": 1})

	c.Put(key, &models.EfficiencyPrediction{PredictedEfficiency: math.Inf(1)})
	_, ok := c.Get(key)
	assert.False(t, ok)

	// wrong variant under the key
	c.Put(key, &models.MaintenancePrediction{RiskLevel: models.RiskLow})
	_, ok = c.Get(key)
	assert.False(t, ok)

	st := c.Stats().Kinds[models.KindEfficiency]
	assert.Equal(t, uint64(2), st.Corruptions)
	assert.Equal(t, uint64(2), st.Misses)
	assert.Equal(t, 0, c.Len())
}

func TestClear(t *testing.T) {
	c := New(time.Minute)
	c.Put(mustKey(t, models.KindEfficiency, 1), efficiency(1))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute, WithHighWater(10))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key, err := NewKey(models.KindEfficiency, fmt.Sprintf("%d-%d", g, i%20))
				if !assert.NoError(t, err) {
					return
				}
				if v, ok := c.Get(key); ok {
					assert.NoError(t, v.Validate())
					continue
				}
				c.Put(key, efficiency(float64(i)))
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 160, c.Len())
}
