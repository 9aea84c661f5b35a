package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-capture-ai/internal/ml"
	"carbon-capture-ai/internal/models"
	"carbon-capture-ai/internal/recommend"
)

// slowInferencer delays every call and records peak concurrency, both of
// single inference calls and of units with work in progress. A unit is keyed
// by its energy consumption and stays active from its first call until its
// energy optimization returns.
type slowInferencer struct {
	*ml.Predictor
	delays map[float64]time.Duration

	mu        sync.Mutex
	calls     int
	peakCalls int
	active    map[float64]bool
	peakUnits int
}

func newSlowInferencer(t *testing.T, units []models.UnitReading) *slowInferencer {
	t.Helper()
	registry := ml.NewRegistry("test-1.0", nil)
	_, err := registry.Swap(ml.TargetEfficiency, constantFacade(t, ml.TargetEfficiency, 82.5))
	require.NoError(t, err)
	_, err = registry.Swap(ml.TargetMaintenance, constantFacade(t, ml.TargetMaintenance, 0.3))
	require.NoError(t, err)

	// later units run faster so they finish first
	delays := make(map[float64]time.Duration, len(units))
	for i, u := range units {
		jitter := time.Duration(rand.Intn(3)) * time.Millisecond
		delays[u.SensorData[models.FieldEnergyConsumption]] = time.Duration(len(units)-i)*2*time.Millisecond + jitter
	}
	return &slowInferencer{
		Predictor: ml.NewPredictor(registry, nil),
		delays:    delays,
		active:    make(map[float64]bool),
	}
}

func (f *slowInferencer) enter(unit float64) {
	f.mu.Lock()
	f.calls++
	f.peakCalls = max(f.peakCalls, f.calls)
	if !f.active[unit] {
		f.active[unit] = true
		f.peakUnits = max(f.peakUnits, len(f.active))
	}
	f.mu.Unlock()
	time.Sleep(f.delays[unit])
}

func (f *slowInferencer) exit(unit float64, done bool) {
	f.mu.Lock()
	f.calls--
	if done {
		delete(f.active, unit)
	}
	f.mu.Unlock()
}

func (f *slowInferencer) peaks() (calls, units int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakCalls, f.peakUnits
}

func (f *slowInferencer) PredictEfficiency(ctx context.Context, reading models.SensorReading) (*models.EfficiencyPrediction, error) {
	unit := reading[models.FieldEnergyConsumption]
	f.enter(unit)
	defer f.exit(unit, false)
	return f.Predictor.PredictEfficiency(ctx, reading)
}

func (f *slowInferencer) PredictMaintenance(ctx context.Context, reading models.SensorReading) (*models.MaintenancePrediction, error) {
	unit := reading[models.FieldEnergyConsumption]
	f.enter(unit)
	defer f.exit(unit, false)
	return f.Predictor.PredictMaintenance(ctx, reading)
}

func (f *slowInferencer) OptimizeEnergy(ctx context.Context, in models.EnergyInput) (*models.EnergyOptimization, error) {
	f.enter(in.EnergyConsumption)
	defer f.exit(in.EnergyConsumption, true)
	return f.Predictor.OptimizeEnergy(ctx, in)
}

func numberedUnits(n int) []models.UnitReading {
	units := make([]models.UnitReading, n)
	for i := range units {
		reading := unitReading()
		reading[models.FieldEnergyConsumption] = 800 + float64(i)
		reading[models.FieldEfficiencyCurrent] = float64(i)
		units[i] = models.UnitReading{UnitID: fmt.Sprintf("unit-%02d", i), SensorData: reading}
	}
	return units
}

func TestPredictBatchHonorsBothConcurrencyBounds(t *testing.T) {
	units := numberedUnits(12)
	inf := newSlowInferencer(t, units)

	cfg := DefaultPredictionServiceConfig()
	cfg.Workers = 2
	cfg.BatchConcurrency = 3
	cfg.CacheEnabled = false
	s := NewPredictionService(inf, cfg, nil)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	results := s.PredictBatch(context.Background(), units)

	require.Len(t, results, len(units))
	for i, r := range results {
		require.True(t, r.Success, r.Error)
		assert.Equal(t, units[i].UnitID, r.UnitID)
		assert.Equal(t, float64(i), r.Prediction.Efficiency.CurrentEfficiency, r.UnitID)
	}

	calls, active := inf.peaks()
	assert.LessOrEqual(t, calls, 2)
	assert.LessOrEqual(t, active, 3)
	assert.Greater(t, active, 1)
}

func TestOptimizeNetworkHonorsBothConcurrencyBounds(t *testing.T) {
	units := numberedUnits(10)
	inf := newSlowInferencer(t, units)

	cfg := DefaultPredictionServiceConfig()
	cfg.Workers = 3
	cfg.CacheEnabled = false
	predictions := NewPredictionService(inf, cfg, nil)
	optCfg := DefaultOptimizationServiceConfig()
	optCfg.MaxConcurrent = 2
	s := NewOptimizationService(predictions, nil, optCfg, nil, nil)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	got, err := s.OptimizeNetwork(context.Background(), units, recommend.StrategyBalanced)
	require.NoError(t, err)

	require.Len(t, got.Results, len(units))
	assert.Empty(t, got.Failures)
	for i, r := range got.Results {
		assert.Equal(t, units[i].UnitID, r.UnitID)
		assert.Equal(t, float64(i), r.Predictions.Efficiency.CurrentEfficiency, r.UnitID)
	}

	calls, active := inf.peaks()
	assert.LessOrEqual(t, calls, 3)
	assert.LessOrEqual(t, active, 2)
}
