package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"carbon-capture-ai/internal/apperr"
	"carbon-capture-ai/internal/cache"
	"carbon-capture-ai/internal/metrics"
	"carbon-capture-ai/internal/ml"
	"carbon-capture-ai/internal/models"
	"carbon-capture-ai/internal/workerpool"
)

// PredictionServiceConfig holds configuration for the prediction service
type PredictionServiceConfig struct {
	Workers          int           // inference worker pool size
	CacheEnabled     bool          // cache predictions by input
	CacheTTL         time.Duration // maximum age of a cached prediction
	CacheHighWater   int           // entry count that triggers a warning
	BatchConcurrency int           // units predicted at once in a batch
	InferenceTimeout time.Duration // run deadline per inference call, excluding queueing
	ModelDir         string        // where SaveModels/LoadModels default to
	SaveOnShutdown   bool          // persist estimators on Shutdown
}

// DefaultPredictionServiceConfig returns default configuration
func DefaultPredictionServiceConfig() PredictionServiceConfig {
	return PredictionServiceConfig{
		Workers:          workerpool.DefaultWorkers,
		CacheEnabled:     true,
		CacheTTL:         cache.DefaultTTL,
		CacheHighWater:   cache.DefaultHighWater,
		BatchConcurrency: 5,
		InferenceTimeout: 30 * time.Second,
		ModelDir:         "./models",
	}
}

// Inferencer runs the three predictions over the loaded estimators.
// *ml.Predictor is the production implementation.
type Inferencer interface {
	PredictEfficiency(ctx context.Context, reading models.SensorReading) (*models.EfficiencyPrediction, error)
	PredictMaintenance(ctx context.Context, reading models.SensorReading) (*models.MaintenancePrediction, error)
	OptimizeEnergy(ctx context.Context, in models.EnergyInput) (*models.EnergyOptimization, error)
	Registry() *ml.Registry
}

// PredictionService turns sensor readings into predictions through the
// inference worker pool and the prediction cache
type PredictionService struct {
	predictor Inferencer
	pool      *workerpool.Pool
	cache     *cache.PredictionCache
	metrics   *metrics.Metrics
	config    PredictionServiceConfig
	logger    *zap.Logger
	now       func() time.Time
	closed    atomic.Bool
}

// PredictionOption configures a PredictionService
type PredictionOption func(*PredictionService)

// WithMetrics records prediction metrics on m
func WithMetrics(m *metrics.Metrics) PredictionOption {
	return func(s *PredictionService) { s.metrics = m }
}

// WithClock overrides the time source used for cache ages and timestamps
func WithClock(now func() time.Time) PredictionOption {
	return func(s *PredictionService) { s.now = now }
}

// NewPredictionService creates a prediction service and starts its worker pool
func NewPredictionService(predictor Inferencer, config PredictionServiceConfig, logger *zap.Logger, opts ...PredictionOption) *PredictionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = 5
	}
	if config.InferenceTimeout <= 0 {
		config.InferenceTimeout = 30 * time.Second
	}

	s := &PredictionService{
		predictor: predictor,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pool = workerpool.New(config.Workers,
		workerpool.WithLogger(logger),
		workerpool.WithInFlightHook(s.metrics.SetInFlight))
	if config.CacheEnabled {
		s.cache = cache.New(config.CacheTTL,
			cache.WithClock(s.now),
			cache.WithHighWater(config.CacheHighWater),
			cache.WithLogger(logger))
	}

	logger.Info("Prediction service started",
		zap.Int("workers", s.pool.Size()),
		zap.Bool("cache_enabled", config.CacheEnabled),
		zap.Duration("cache_ttl", config.CacheTTL),
		zap.Duration("inference_timeout", config.InferenceTimeout))
	return s
}

// PredictEfficiency predicts capture efficiency for reading
func (s *PredictionService) PredictEfficiency(ctx context.Context, reading models.SensorReading) (*models.EfficiencyPrediction, error) {
	return cachedPredict(ctx, s, models.KindEfficiency, reading,
		func(ctx context.Context) (*models.EfficiencyPrediction, error) {
			return s.predictor.PredictEfficiency(ctx, reading)
		})
}

// PredictMaintenance predicts maintenance need for reading
func (s *PredictionService) PredictMaintenance(ctx context.Context, reading models.SensorReading) (*models.MaintenancePrediction, error) {
	return cachedPredict(ctx, s, models.KindMaintenance, reading,
		func(ctx context.Context) (*models.MaintenancePrediction, error) {
			return s.predictor.PredictMaintenance(ctx, reading)
		})
}

// OptimizeEnergy computes the energy plan for in
func (s *PredictionService) OptimizeEnergy(ctx context.Context, in models.EnergyInput) (*models.EnergyOptimization, error) {
	return cachedPredict(ctx, s, models.KindEnergy, in,
		func(ctx context.Context) (*models.EnergyOptimization, error) {
			return s.predictor.OptimizeEnergy(ctx, in)
		})
}

// cachedPredict serves a prediction from the cache or runs infer on the
// worker pool and caches the result. The returned value is a copy carrying
// the measured processing time.
func cachedPredict[T models.Prediction](
	ctx context.Context,
	s *PredictionService,
	kind models.PredictionKind,
	input any,
	infer func(context.Context) (T, error),
) (T, error) {
	var zero T
	start := s.now()
	if s.closed.Load() {
		return zero, workerpool.ErrClosed
	}

	var key cache.Key
	useCache := s.cache != nil
	if useCache {
		k, err := cache.NewKey(kind, input)
		if err != nil {
			// non-finite inputs cannot be canonicalized; inference reports them
			fields := []zap.Field{zap.String("kind", string(kind)), zap.Error(err)}
			if reading, ok := input.(models.SensorReading); ok {
				fields = append(fields, zap.Strings("non_finite", reading.NonFinite()))
			}
			s.logger.Debug("Prediction cache bypassed", fields...)
			s.metrics.ObserveCache(string(kind), metrics.CacheBypass)
			useCache = false
		} else {
			key = k
		}
	}

	if useCache {
		if v, ok := s.cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				s.metrics.ObserveCache(string(kind), metrics.CacheHit)
				elapsed := s.now().Sub(start)
				s.metrics.ObservePrediction(string(kind), elapsed, nil)
				return typed.WithProcessingTime(ms(elapsed)).(T), nil
			}
		}
		s.metrics.ObserveCache(string(kind), metrics.CacheMiss)
	}

	// the inference deadline covers the run only, not the wait for a worker
	v, err := workerpool.DoTimeout(ctx, s.pool, s.config.InferenceTimeout, infer)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = apperr.Inference("predict_"+string(kind),
			fmt.Errorf("inference timed out after %s", s.config.InferenceTimeout))
	}
	elapsed := s.now().Sub(start)
	s.metrics.ObservePrediction(string(kind), elapsed, err)
	if err != nil {
		return zero, err
	}

	if useCache {
		s.cache.Put(key, v)
		s.metrics.SetCacheEntries(s.cache.Len())
	}
	return v.WithProcessingTime(ms(elapsed)).(T), nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// PredictUnit runs all three predictions for one unit. Efficiency and
// maintenance run concurrently; energy follows once both are done.
func (s *PredictionService) PredictUnit(ctx context.Context, unitID string, reading models.SensorReading) (*models.UnitPrediction, error) {
	var eff *models.EfficiencyPrediction
	var maint *models.MaintenancePrediction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		eff, err = s.PredictEfficiency(gctx, reading)
		return err
	})
	g.Go(func() error {
		var err error
		maint, err = s.PredictMaintenance(gctx, reading)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	energy, err := s.OptimizeEnergy(ctx, ExtractEnergyInput(reading, s.now()))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Unit prediction complete", zap.String("unit_id", unitID))
	return &models.UnitPrediction{
		Efficiency:         eff,
		Maintenance:        maint,
		Energy:             energy,
		ComprehensiveScore: ComprehensiveScore(eff, maint, energy),
	}, nil
}

// ComprehensiveScore blends efficiency, maintenance risk and energy savings
// into a 0-100 score rounded to two decimals
func ComprehensiveScore(eff *models.EfficiencyPrediction, maint *models.MaintenancePrediction, energy *models.EnergyOptimization) float64 {
	score := math.Min(eff.PredictedEfficiency/100, 1) * 40

	switch maint.RiskLevel {
	case models.RiskLow:
		score += 30
	case models.RiskMedium:
		score += 20
	default:
		score += 10
	}

	score += math.Min(energy.EnergySavingsKWh/100, 1) * 30
	return math.Round(score*100) / 100
}

// PredictBatch predicts every unit, at most BatchConcurrency at a time.
// A failing unit is reported in its entry and never stops the others.
// Results keep the order of units.
func (s *PredictionService) PredictBatch(ctx context.Context, units []models.UnitReading) []models.BatchPredictionResult {
	results := make([]models.BatchPredictionResult, len(units))
	sem := semaphore.NewWeighted(int64(s.config.BatchConcurrency))
	done := make(chan struct{}, len(units))

	for i, unit := range units {
		unitID := unit.UnitID
		if unitID == "" {
			unitID = fmt.Sprintf("unit_%d", i)
		}

		go func(i int, unitID string, reading models.SensorReading) {
			defer func() { done <- struct{}{} }()

			res := models.BatchPredictionResult{UnitID: unitID}
			if err := sem.Acquire(ctx, 1); err != nil {
				res.Error = err.Error()
				res.ErrorKind = string(apperr.KindOf(err))
				res.Timestamp = s.now()
				results[i] = res
				return
			}
			defer sem.Release(1)

			pred, err := s.PredictUnit(ctx, unitID, reading)
			res.Timestamp = s.now()
			if err != nil {
				s.logger.Warn("Batch prediction failed",
					zap.String("unit_id", unitID),
					zap.Error(err))
				res.Error = apperr.Message(err)
				res.ErrorKind = string(apperr.KindOf(err))
			} else {
				res.Success = true
				res.Prediction = pred
			}
			results[i] = res
		}(i, unitID, unit.SensorData)
	}

	for range units {
		<-done
	}
	return results
}

// ServiceStats is a snapshot of the prediction service
type ServiceStats struct {
	CacheEnabled bool                                      `json:"cache_enabled"`
	CacheSize    int                                       `json:"cache_size"`
	CacheTTL     float64                                   `json:"cache_ttl_seconds"`
	CacheKinds   map[models.PredictionKind]cache.KindStats `json:"cache_stats"`
	ModelVersion string                                    `json:"model_version"`
	Workers      int                                       `json:"max_workers"`
	InFlight     int64                                     `json:"inflight"`
	Timestamp    time.Time                                 `json:"timestamp"`
}

// Stats returns service statistics
func (s *PredictionService) Stats() ServiceStats {
	st := ServiceStats{
		CacheEnabled: s.cache != nil,
		ModelVersion: s.predictor.Registry().Version(),
		Workers:      s.pool.Size(),
		InFlight:     s.pool.InFlight(),
		Timestamp:    s.now(),
	}
	if s.cache != nil {
		cs := s.cache.Stats()
		st.CacheSize = cs.Entries
		st.CacheTTL = cs.TTL.Seconds()
		st.CacheKinds = cs.Kinds
	}
	return st
}

// ModelHealth reports which estimators are loaded
func (s *PredictionService) ModelHealth() ml.Health {
	return s.predictor.Registry().Health()
}

// SaveModels writes the loaded estimators to dir, or the configured directory when empty
func (s *PredictionService) SaveModels(dir string) error {
	if dir == "" {
		dir = s.config.ModelDir
	}
	return s.predictor.Registry().SaveDir(dir)
}

// LoadModels loads estimators from dir, or the configured directory when
// empty, and drops cached predictions made by the previous estimators
func (s *PredictionService) LoadModels(dir string) ([]ml.Target, error) {
	if dir == "" {
		dir = s.config.ModelDir
	}
	loaded, err := s.predictor.Registry().LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && len(loaded) > 0 {
		s.cache.Clear()
		s.metrics.SetCacheEntries(0)
	}
	return loaded, nil
}

// Shutdown stops accepting work, waits for in-flight inference, clears the
// cache and, when configured, saves the estimators
func (s *PredictionService) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("Shutting down prediction service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.cache != nil {
		s.cache.Clear()
		s.metrics.SetCacheEntries(0)
	}
	if s.config.SaveOnShutdown {
		if err := s.SaveModels(""); err != nil {
			errs = append(errs, fmt.Errorf("failed to save models: %w", err))
		}
	}

	s.logger.Info("Prediction service shutdown complete")
	return errors.Join(errs...)
}
