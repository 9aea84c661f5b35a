package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"carbon-capture-ai/internal/apperr"
	"carbon-capture-ai/internal/metrics"
	"carbon-capture-ai/internal/models"
	"carbon-capture-ai/internal/recommend"
	"carbon-capture-ai/internal/workerpool"
)

// OptimizationServiceConfig holds configuration for the optimization service
type OptimizationServiceConfig struct {
	MaxConcurrent    int    // units optimized at once in a network run
	DefaultStrategy  string // used when a request names no strategy
	TimeHorizonHours int    // used when a request names no horizon
}

// DefaultOptimizationServiceConfig returns default configuration
func DefaultOptimizationServiceConfig() OptimizationServiceConfig {
	return OptimizationServiceConfig{
		MaxConcurrent:    5,
		DefaultStrategy:  recommend.StrategyBalanced,
		TimeHorizonHours: 24,
	}
}

// OptimizationService composes predictions and recommendations into
// comprehensive per-unit plans and fans them out across a network
type OptimizationService struct {
	predictions *PredictionService
	strategies  recommend.Strategies
	metrics     *metrics.Metrics
	config      OptimizationServiceConfig
	logger      *zap.Logger
	now         func() time.Time

	// guards admission against Shutdown
	mu       sync.RWMutex
	closed   bool
	inFlight sync.WaitGroup
}

// NewOptimizationService creates an optimization service. A nil strategies
// map means the built-in templates.
func NewOptimizationService(
	predictions *PredictionService,
	strategies recommend.Strategies,
	config OptimizationServiceConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OptimizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategies == nil {
		strategies = recommend.DefaultStrategies()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}
	if config.DefaultStrategy == "" {
		config.DefaultStrategy = recommend.StrategyBalanced
	}
	if config.TimeHorizonHours <= 0 {
		config.TimeHorizonHours = 24
	}
	return &OptimizationService{
		predictions: predictions,
		strategies:  strategies,
		metrics:     m,
		config:      config,
		logger:      logger,
		now:         predictions.now,
	}
}

// Strategies returns the available strategy names in sorted order
func (s *OptimizationService) Strategies() []string {
	return s.strategies.Names()
}

// DefaultStrategy returns the strategy used when none is requested
func (s *OptimizationService) DefaultStrategy() string {
	return s.config.DefaultStrategy
}

func (s *OptimizationService) admit() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return workerpool.ErrClosed
	}
	s.inFlight.Add(1)
	return nil
}

// OptimizeUnit builds the comprehensive optimization of one unit. An empty
// strategy means the configured default, a non-positive horizon the
// configured horizon.
func (s *OptimizationService) OptimizeUnit(ctx context.Context, unitID string, reading models.SensorReading, strategy string, horizonHours int) (*models.OptimizationResult, error) {
	if err := s.admit(); err != nil {
		return nil, err
	}
	defer s.inFlight.Done()

	if strategy == "" {
		strategy = s.config.DefaultStrategy
	}
	if horizonHours <= 0 {
		horizonHours = s.config.TimeHorizonHours
	}

	result, err := s.optimizeUnit(ctx, unitID, reading, strategy, horizonHours)
	s.metrics.ObserveOptimization(strategy, err)
	if err != nil {
		s.logger.Error("Comprehensive optimization failed",
			zap.String("unit_id", unitID),
			zap.String("strategy", strategy),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (s *OptimizationService) optimizeUnit(ctx context.Context, unitID string, reading models.SensorReading, strategy string, horizonHours int) (*models.OptimizationResult, error) {
	start := s.now()
	s.logger.Debug("Starting comprehensive optimization", zap.String("unit_id", unitID))

	st, err := recommend.ValidateInputs(unitID, reading, s.strategies, strategy)
	if err != nil {
		return nil, err
	}

	var eff *models.EfficiencyPrediction
	var maint *models.MaintenancePrediction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		eff, err = s.predictions.PredictEfficiency(gctx, reading)
		return err
	})
	g.Go(func() error {
		var err error
		maint, err = s.predictions.PredictMaintenance(gctx, reading)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	energyInput := ExtractEnergyInput(reading, start)
	energy, err := s.predictions.OptimizeEnergy(ctx, energyInput)
	if err != nil {
		return nil, err
	}

	in := recommend.Input{
		Reading:     reading,
		Efficiency:  eff,
		Maintenance: maint,
		Energy:      energy,
		EnergyInput: energyInput,
	}
	plan := recommend.Plan(in, st, horizonHours)
	predictions := models.UnitPredictions{Efficiency: eff, Maintenance: maint, Energy: energy}

	result := &models.OptimizationResult{
		RunID:                  uuid.NewString(),
		UnitID:                 unitID,
		OptimizationStrategy:   strategy,
		Timestamp:              start,
		Predictions:            predictions,
		OptimizationPlan:       plan,
		ImplementationTimeline: recommend.Timeline(plan, start),
		RiskAssessment:         recommend.AssessRisk(plan, reading, maint.MaintenanceScore),
		PerformanceMetrics: models.PerformanceMetrics{
			OptimizationScore: recommend.OptimizationScore(plan.ExpectedOutcomes),
			ConfidenceLevel:   recommend.ConfidenceLevel(recommend.PredictionConfidences(predictions)),
		},
	}
	result.PerformanceMetrics.ProcessingTimeMs = ms(s.now().Sub(start))

	s.logger.Info("Comprehensive optimization completed",
		zap.String("unit_id", unitID),
		zap.String("run_id", result.RunID),
		zap.Int("recommendations", len(plan.Recommendations)),
		zap.Float64("processing_time_ms", result.PerformanceMetrics.ProcessingTimeMs))
	return result, nil
}

// OptimizeNetwork optimizes every unit, at most MaxConcurrent at a time.
// A failing unit lands in Failures and never stops the others. Results
// keep the order of units and the summary covers successes only.
func (s *OptimizationService) OptimizeNetwork(ctx context.Context, units []models.UnitReading, strategy string) (*models.NetworkOptimizationResult, error) {
	if err := s.admit(); err != nil {
		return nil, err
	}
	defer s.inFlight.Done()

	if strategy == "" {
		strategy = s.config.DefaultStrategy
	}
	if _, ok := s.strategies.Get(strategy); !ok {
		return nil, apperr.InvalidInput("optimize_network", "unknown optimization strategy: %s", strategy)
	}

	start := s.now()
	runID := uuid.NewString()
	s.logger.Info("Starting network optimization",
		zap.String("run_id", runID),
		zap.Int("units", len(units)),
		zap.String("strategy", strategy))

	type outcome struct {
		result *models.OptimizationResult
		err    error
	}
	outcomes := make([]outcome, len(units))
	sem := semaphore.NewWeighted(int64(s.config.MaxConcurrent))
	var wg sync.WaitGroup

	for i, unit := range units {
		wg.Add(1)
		go func(i int, unit models.UnitReading) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = outcome{err: err}
				return
			}
			defer sem.Release(1)

			res, err := s.optimizeUnit(ctx, unit.UnitID, unit.SensorData, strategy, s.config.TimeHorizonHours)
			s.metrics.ObserveOptimization(strategy, err)
			outcomes[i] = outcome{result: res, err: err}
		}(i, unit)
	}
	wg.Wait()

	out := &models.NetworkOptimizationResult{
		Results:  []*models.OptimizationResult{},
		Failures: []models.UnitFailure{},
	}
	for i, o := range outcomes {
		if o.err != nil {
			s.logger.Warn("Unit optimization failed",
				zap.String("run_id", runID),
				zap.String("unit_id", units[i].UnitID),
				zap.Error(o.err))
			out.Failures = append(out.Failures, models.UnitFailure{
				UnitID:    units[i].UnitID,
				Error:     apperr.Message(o.err),
				ErrorKind: string(apperr.KindOf(o.err)),
			})
			continue
		}
		out.Results = append(out.Results, o.result)
	}

	out.Summary = SummarizeNetwork(out.Results)
	out.Timestamp = s.now()
	out.Network = models.NetworkRun{
		RunID:                   runID,
		TotalUnits:              len(units),
		SuccessfulOptimizations: len(out.Results),
		FailedOptimizations:     len(out.Failures),
		OptimizationStrategy:    strategy,
		ProcessingTimeMs:        ms(out.Timestamp.Sub(start)),
	}

	s.logger.Info("Network optimization completed",
		zap.String("run_id", runID),
		zap.Int("successful", len(out.Results)),
		zap.Int("failed", len(out.Failures)))
	return out, nil
}

// SummarizeNetwork aggregates successful unit results. It returns nil when
// there are none.
func SummarizeNetwork(results []*models.OptimizationResult) *models.NetworkSummary {
	if len(results) == 0 {
		return nil
	}

	var sum models.NetworkSummary
	var scoreTotal float64
	for _, r := range results {
		o := r.OptimizationPlan.ExpectedOutcomes
		sum.TotalEfficiencyGain += o.TotalEfficiencyGain
		sum.TotalEnergySavingsKWh += o.TotalEnergySavingsKWh
		sum.TotalCO2ReductionTons += o.TotalCO2ReductionTons
		sum.TotalImplementationCost += o.TotalImplementationCost
		scoreTotal += r.PerformanceMetrics.OptimizationScore

		switch r.OptimizationPlan.ImplementationPriority {
		case models.PriorityHigh:
			sum.PriorityDistribution.HighPriorityUnits++
		case models.PriorityCritical:
			sum.PriorityDistribution.CriticalPriorityUnits++
		default:
			sum.PriorityDistribution.NormalPriorityUnits++
		}
	}

	n := float64(len(results))
	sum.AverageOptimizationScore = scoreTotal / n
	sum.EfficiencyImprovementPercentage = sum.TotalEfficiencyGain / n
	sum.NetworkROI = recommend.ROI(recommend.AnnualSavings(sum.TotalEnergySavingsKWh), sum.TotalImplementationCost)
	return &sum
}

// Shutdown stops admitting work, waits for in-flight optimizations and then
// shuts down the prediction service
func (s *OptimizationService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("Shutting down optimization service...")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.predictions.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("Optimization service shutdown complete")
	return nil
}
