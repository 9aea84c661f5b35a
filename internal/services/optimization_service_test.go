package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-capture-ai/internal/apperr"
	"carbon-capture-ai/internal/metrics"
	"carbon-capture-ai/internal/models"
	"carbon-capture-ai/internal/recommend"
)

func newTestOptimizationService(t *testing.T, clk *testClock, m *metrics.Metrics) *OptimizationService {
	t.Helper()
	predictions, _ := newTestPredictionService(t, clk, DefaultPredictionServiceConfig())
	return NewOptimizationService(predictions, nil, DefaultOptimizationServiceConfig(), m, nil)
}

func unitReading() models.SensorReading {
	r := scenarioReading()
	r["maintenance_days_since"] = 200
	r["unit_age_days"] = 400
	r["current_hour"] = 10
	return r
}

func TestOptimizeUnitComprehensive(t *testing.T) {
	clk := &testClock{t: epoch}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newTestOptimizationService(t, clk, m)

	got, err := s.OptimizeUnit(context.Background(), "unit-7", unitReading(), "", 0)
	require.NoError(t, err)

	assert.Equal(t, "unit-7", got.UnitID)
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, recommend.StrategyBalanced, got.OptimizationStrategy)
	assert.Equal(t, recommend.StrategyBalanced, got.OptimizationPlan.StrategyApplied)
	assert.Equal(t, epoch, got.Timestamp)
	assert.Equal(t, 82.5, got.Predictions.Efficiency.PredictedEfficiency)
	assert.Equal(t, 24, got.OptimizationPlan.ExpectedOutcomes.TimeHorizonHours)

	recs := got.OptimizationPlan.Recommendations
	require.NotEmpty(t, recs)
	for i := range recs {
		assert.Equal(t, i+1, recs[i].PriorityRank)
		if i > 0 {
			assert.LessOrEqual(t, recs[i].PriorityScore, recs[i-1].PriorityScore)
		}
	}

	// the timeline is sequential from the run start
	require.NotEmpty(t, got.ImplementationTimeline)
	assert.Equal(t, epoch, got.ImplementationTimeline[0].StartTime)
	for i := 1; i < len(got.ImplementationTimeline); i++ {
		assert.Equal(t, got.ImplementationTimeline[i-1].EndTime, got.ImplementationTimeline[i].StartTime)
	}

	// efficiency 1.0 and maintenance 0.85 average above 0.9
	assert.Equal(t, recommend.ConfidenceHigh, got.PerformanceMetrics.ConfidenceLevel)
	assert.Equal(t, models.RiskLow, got.RiskAssessment.OverallRiskLevel)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Optimizations.WithLabelValues(recommend.StrategyBalanced, metrics.OutcomeSuccess)))
}

func TestOptimizeUnitValidation(t *testing.T) {
	s := newTestOptimizationService(t, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		unitID   string
		reading  models.SensorReading
		strategy string
	}{
		{"empty unit", "  ", unitReading(), recommend.StrategyBalanced},
		{"unknown strategy", "u1", unitReading(), "fastest"},
		{"missing fields", "u1", models.SensorReading{"temperature": 30}, recommend.StrategyBalanced},
		{"empty reading", "u1", models.SensorReading{}, recommend.StrategyBalanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.OptimizeUnit(ctx, tt.unitID, tt.reading, tt.strategy, 24)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestEnergyEfficientStrategyHonorsMinimumSavings(t *testing.T) {
	s := newTestOptimizationService(t, nil, nil)

	got, err := s.OptimizeUnit(context.Background(), "u1", unitReading(), recommend.StrategyEnergyEfficient, 24)
	require.NoError(t, err)

	for _, rec := range got.OptimizationPlan.Recommendations {
		assert.GreaterOrEqual(t, rec.Impact.EnergySavings, 50.0, rec.ID)
	}
}

func TestOptimizeNetworkAggregatesSuccesses(t *testing.T) {
	s := newTestOptimizationService(t, nil, nil)

	bad := unitReading()
	bad["pressure"] = math.NaN()
	units := []models.UnitReading{
		{UnitID: "a", SensorData: unitReading()},
		{UnitID: "b", SensorData: bad},
		{UnitID: "c", SensorData: unitReading()},
	}

	got, err := s.OptimizeNetwork(context.Background(), units, recommend.StrategyBalanced)
	require.NoError(t, err)

	assert.Equal(t, 3, got.Network.TotalUnits)
	assert.Equal(t, 2, got.Network.SuccessfulOptimizations)
	assert.Equal(t, 1, got.Network.FailedOptimizations)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "a", got.Results[0].UnitID)
	assert.Equal(t, "c", got.Results[1].UnitID)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "b", got.Failures[0].UnitID)
	assert.Equal(t, string(apperr.KindInference), got.Failures[0].ErrorKind)

	require.NotNil(t, got.Summary)
	var gain, kwh, cost float64
	for _, r := range got.Results {
		gain += r.OptimizationPlan.ExpectedOutcomes.TotalEfficiencyGain
		kwh += r.OptimizationPlan.ExpectedOutcomes.TotalEnergySavingsKWh
		cost += r.OptimizationPlan.ExpectedOutcomes.TotalImplementationCost
	}
	assert.InDelta(t, gain, got.Summary.TotalEfficiencyGain, 1e-9)
	assert.InDelta(t, kwh, got.Summary.TotalEnergySavingsKWh, 1e-9)
	assert.InDelta(t, cost, got.Summary.TotalImplementationCost, 1e-9)
	assert.InDelta(t, gain/2, got.Summary.EfficiencyImprovementPercentage, 1e-9)
	dist := got.Summary.PriorityDistribution
	assert.Equal(t, 2, dist.HighPriorityUnits+dist.CriticalPriorityUnits+dist.NormalPriorityUnits)
}

func TestOptimizeNetworkUnknownStrategy(t *testing.T) {
	s := newTestOptimizationService(t, nil, nil)

	_, err := s.OptimizeNetwork(context.Background(), nil, "fastest")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSummarizeNetwork(t *testing.T) {
	assert.Nil(t, SummarizeNetwork(nil))

	result := func(priority string, kwh, cost, score float64) *models.OptimizationResult {
		return &models.OptimizationResult{
			OptimizationPlan: models.OptimizationPlan{
				ImplementationPriority: priority,
				ExpectedOutcomes: models.ExpectedOutcomes{
					TotalEfficiencyGain:     4,
					TotalEnergySavingsKWh:   kwh,
					TotalImplementationCost: cost,
				},
			},
			PerformanceMetrics: models.PerformanceMetrics{OptimizationScore: score},
		}
	}

	got := SummarizeNetwork([]*models.OptimizationResult{
		result(models.PriorityCritical, 100, 0, 10),
		result(models.PriorityHigh, 50, 0, 20),
		result(models.PriorityMedium, 0, 0, 30),
	})

	assert.Equal(t, 20.0, got.AverageOptimizationScore)
	assert.Equal(t, 4.0, got.EfficiencyImprovementPercentage)
	assert.True(t, got.NetworkROI.IsInf())
	assert.Equal(t, models.PriorityDistribution{HighPriorityUnits: 1, CriticalPriorityUnits: 1, NormalPriorityUnits: 1}, got.PriorityDistribution)

	got = SummarizeNetwork([]*models.OptimizationResult{result(models.PriorityLow, 100, 2190, 0)})
	// 100 kWh/day * 365 * 0.12 = 4380
	assert.InDelta(t, 1.0, float64(got.NetworkROI), 1e-9)
}

func TestOptimizationShutdownRejectsNewCalls(t *testing.T) {
	s := newTestOptimizationService(t, nil, nil)

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))

	_, err := s.OptimizeUnit(context.Background(), "u1", unitReading(), "", 0)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	_, err = s.OptimizeNetwork(context.Background(), nil, "")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	_, err = s.predictions.PredictEfficiency(context.Background(), unitReading())
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestOptimizationShutdownWaitsForInFlight(t *testing.T) {
	s := newTestOptimizationService(t, nil, nil)
	require.NoError(t, s.admit())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	s.inFlight.Done()
}

func TestStrategies(t *testing.T) {
	s := newTestOptimizationService(t, nil, nil)

	assert.Equal(t, []string{
		recommend.StrategyBalanced,
		recommend.StrategyEfficiencyFocused,
		recommend.StrategyEnergyEfficient,
		recommend.StrategyMaintenancePrioritized,
	}, s.Strategies())
}
