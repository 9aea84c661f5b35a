package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbon-capture-ai/internal/aggregator"
	"carbon-capture-ai/internal/metrics"
	"carbon-capture-ai/internal/models"
)

// ReadingRecorder persists raw sensor samples and unit sightings
type ReadingRecorder interface {
	SaveSample(ctx context.Context, s *models.SensorSample) error
	UpsertUnit(ctx context.Context, unitID string, firstSeen, lastSeen time.Time) error
	LastOptimization(ctx context.Context, unitID string) (time.Time, error)
}

// ResultSink receives every optimization result produced by ingestion
type ResultSink interface {
	SaveOptimization(ctx context.Context, result *models.OptimizationResult) error
}

// SensorServiceConfig holds configuration for sensor service
type SensorServiceConfig struct {
	SampleChannelSize int
	ResultChannelSize int
	OptimizeInterval  time.Duration
	WriteTimeout      time.Duration
}

// DefaultSensorServiceConfig returns default configuration
func DefaultSensorServiceConfig() SensorServiceConfig {
	return SensorServiceConfig{
		SampleChannelSize: 1000,
		ResultChannelSize: 100,
		OptimizeInterval:  aggregator.DefaultOptimizeInterval,
		WriteTimeout:      5 * time.Second,
	}
}

// SensorService handles sensor persistence, per-unit aggregation and
// optimization of units whose snapshot is ready
type SensorService struct {
	optimizer *OptimizationService
	recorder  ReadingRecorder
	sinks     []ResultSink
	buffer    *aggregator.UnitBuffer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	config    SensorServiceConfig
	now       func() time.Time

	// Input channel from the MQTT subscriber
	SampleChan chan *models.SensorSample
	// Output channel to the MQTT publisher, closed when Start returns
	ResultChan chan *models.OptimizationResult

	// first sighting per unit; only touched by the Start goroutine
	firstSeen map[string]time.Time
	wg        sync.WaitGroup
}

// NewSensorService creates a new sensor service. recorder may be nil.
func NewSensorService(
	optimizer *OptimizationService,
	recorder ReadingRecorder,
	sinks []ResultSink,
	config SensorServiceConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SensorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "sensor_service"))
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	return &SensorService{
		optimizer: optimizer,
		recorder:  recorder,
		sinks:     sinks,
		buffer: aggregator.NewUnitBuffer(config.OptimizeInterval,
			aggregator.WithClock(optimizer.now),
			aggregator.WithLogger(logger)),
		metrics:    m,
		logger:     logger,
		config:     config,
		now:        optimizer.now,
		SampleChan: make(chan *models.SensorSample, config.SampleChannelSize),
		ResultChan: make(chan *models.OptimizationResult, config.ResultChannelSize),
		firstSeen:  make(map[string]time.Time),
	}
}

// Buffer returns the per-unit snapshot buffer
func (s *SensorService) Buffer() *aggregator.UnitBuffer {
	return s.buffer
}

// Start processes samples until ctx is cancelled or SampleChan is closed,
// then waits for running optimizations and closes ResultChan
func (s *SensorService) Start(ctx context.Context) {
	s.logger.Info("Starting...")
	defer func() {
		s.wg.Wait()
		close(s.ResultChan)
		s.logger.Info("Shutdown complete")
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Context cancelled, shutting down...")
			return
		case sample, ok := <-s.SampleChan:
			if !ok {
				s.logger.Info("Sample channel closed, shutting down...")
				return
			}
			s.processSample(ctx, sample)
		}
	}
}

// processSample records one sample and triggers optimization when its
// unit becomes ready
func (s *SensorService) processSample(ctx context.Context, sample *models.SensorSample) {
	s.metrics.ObserveSensorMessage(sample.SensorType)

	if _, seen := s.firstSeen[sample.UnitID]; !seen {
		s.registerUnit(ctx, sample.UnitID)
	}

	if s.recorder != nil {
		if err := s.recorder.SaveSample(ctx, sample); err != nil {
			s.logger.Error("Error saving sensor sample",
				zap.String("unit_id", sample.UnitID),
				zap.String("sensor_type", sample.SensorType),
				zap.Error(err))
		}
	}

	reading, ready := s.buffer.Update(*sample)
	if !ready {
		return
	}

	if s.recorder != nil {
		// Best effort
		if err := s.recorder.UpsertUnit(ctx, sample.UnitID, s.firstSeen[sample.UnitID], s.now()); err != nil {
			s.logger.Warn("Error updating unit registry", zap.String("unit_id", sample.UnitID), zap.Error(err))
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.optimize(ctx, sample.UnitID, reading)
	}()
}

// registerUnit tracks a new unit and restores its last optimization time
// so the rate limit holds across restarts
func (s *SensorService) registerUnit(ctx context.Context, unitID string) {
	now := s.now()
	s.firstSeen[unitID] = now
	if s.recorder == nil {
		return
	}

	if err := s.recorder.UpsertUnit(ctx, unitID, now, now); err != nil {
		s.logger.Warn("Error registering unit", zap.String("unit_id", unitID), zap.Error(err))
	}
	last, err := s.recorder.LastOptimization(ctx, unitID)
	if err != nil {
		s.logger.Warn("Error loading last optimization", zap.String("unit_id", unitID), zap.Error(err))
		return
	}
	if !last.IsZero() {
		s.buffer.MarkOptimized(unitID, last)
	}
}

func (s *SensorService) optimize(ctx context.Context, unitID string, reading models.SensorReading) {
	result, err := s.optimizer.OptimizeUnit(ctx, unitID, reading, "", 0)
	if err != nil {
		s.logger.Warn("Unit optimization failed", zap.String("unit_id", unitID), zap.Error(err))
		return
	}

	s.logger.Info("Unit optimized",
		zap.String("unit_id", unitID),
		zap.String("run_id", result.RunID),
		zap.String("priority", result.OptimizationPlan.ImplementationPriority),
		zap.Float64("score", result.PerformanceMetrics.OptimizationScore))

	// Results already computed are persisted even while shutting down
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.WriteTimeout)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.SaveOptimization(writeCtx, result); err != nil {
			s.logger.Error("Error saving optimization result",
				zap.String("unit_id", unitID),
				zap.String("run_id", result.RunID),
				zap.Error(err))
		}
	}

	select {
	case s.ResultChan <- result:
	default:
		s.logger.Warn("Result channel full, dropping publish", zap.String("unit_id", unitID))
	}
}
