package ml

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-capture-ai/internal/apperr"
	"carbon-capture-ai/internal/models"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPredictor(t *testing.T, artifacts ...*Artifact) *Predictor {
	t.Helper()
	r := NewRegistry("1.0.0", nil)
	for _, a := range artifacts {
		f, err := NewFacade(a)
		require.NoError(t, err)
		_, err = r.Swap(Target(a.Target), f)
		require.NoError(t, err)
	}
	return NewPredictor(r, nil, WithClock(func() time.Time { return fixedNow }))
}

func TestPredictEfficiency(t *testing.T) {
	p := newTestPredictor(t, constantArtifact(TargetEfficiency, 82.5))

	got, err := p.PredictEfficiency(context.Background(), models.SensorReading{
		"temperature":        75.5,
		"pressure":           52,
		"flow_rate":          1200,
		"energy_consumption": 850,
		"efficiency_current": 80,
	})
	require.NoError(t, err)

	assert.InDelta(t, 82.5, got.PredictedEfficiency, 1e-9)
	assert.Equal(t, 80.0, got.CurrentEfficiency)
	assert.Equal(t, "1.0.0", got.ModelVersion)
	assert.Equal(t, 1.0, got.ConfidenceScore)
	assert.Equal(t, fixedNow, got.Timestamp)
	require.Len(t, got.OptimizationSuggestions, 1)
	assert.Equal(t, "Temperature Optimization", got.OptimizationSuggestions[0].Title)
	assert.Equal(t, "high", got.OptimizationSuggestions[0].Priority)
	assert.NoError(t, got.Validate())
}

func TestPredictEfficiencyModelNotReady(t *testing.T) {
	p := newTestPredictor(t)

	_, err := p.PredictEfficiency(context.Background(), models.SensorReading{"temperature": 25})
	assert.ErrorIs(t, err, apperr.ErrModelNotReady)
	assert.Equal(t, apperr.KindModelNotReady, apperr.KindOf(err))
}

func TestPredictEfficiencyNonFinite(t *testing.T) {
	p := newTestPredictor(t, constantArtifact(TargetEfficiency, 82.5))

	_, err := p.PredictEfficiency(context.Background(), models.SensorReading{"pressure": math.Inf(1)})
	assert.ErrorIs(t, err, apperr.ErrInference)
}

func TestPredictEfficiencyCancelled(t *testing.T) {
	p := newTestPredictor(t, constantArtifact(TargetEfficiency, 82.5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PredictEfficiency(ctx, models.SensorReading{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictMaintenanceClassifier(t *testing.T) {
	p := newTestPredictor(t, &Artifact{
		Target:   string(TargetMaintenance),
		Task:     TaskClassification,
		Family:   FamilyLinear,
		Features: []string{"vibration"},
		Labels:   []string{LabelHealthy, LabelMaintenanceRequired},
		Linear:   &LinearParams{Weights: [][]float64{{0}}, Intercepts: []float64{2}},
	})

	got, err := p.PredictMaintenance(context.Background(), models.SensorReading{
		"vibration":              3.5,
		"maintenance_days_since": 120,
	})
	require.NoError(t, err)

	want := 1 / (1 + math.Exp(-2))
	assert.InDelta(t, want, got.MaintenanceScore, 1e-9)
	assert.Equal(t, LabelMaintenanceRequired, got.PredictedLabel)
	assert.InDelta(t, want, got.LabelConfidence, 1e-9)
	assert.Equal(t, models.RiskCritical, got.RiskLevel)
	require.Len(t, got.Alerts, 2)
	assert.Equal(t, "critical", got.Alerts[0].AlertType)
	assert.Equal(t, AlertMessageVibration, got.Alerts[1].Message)
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), got.NextMaintenanceDate)
}

func TestPredictMaintenanceOverflowingScoresAreInferenceError(t *testing.T) {
	p := newTestPredictor(t, &Artifact{
		Target:   string(TargetMaintenance),
		Task:     TaskClassification,
		Family:   FamilyLinear,
		Features: []string{"temperature"},
		Labels:   []string{LabelHealthy, LabelMaintenanceRequired},
		Linear:   &LinearParams{Weights: [][]float64{{1e300}, {-1e300}}, Intercepts: []float64{0, 0}},
	})

	got, err := p.PredictMaintenance(context.Background(), models.SensorReading{"temperature": 1e10})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperr.ErrInference)
}

func TestPredictMaintenanceRegressorClamped(t *testing.T) {
	p := newTestPredictor(t, constantArtifact(TargetMaintenance, 1.7))

	got, err := p.PredictMaintenance(context.Background(), models.SensorReading{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.MaintenanceScore)
	assert.Empty(t, got.PredictedLabel)
}

func TestOptimizeEnergyRules(t *testing.T) {
	p := newTestPredictor(t)

	got, err := p.OptimizeEnergy(context.Background(), models.EnergyInput{
		EnergyConsumption: 850.2,
		RenewableCapacity: 300,
		PeakHours:         []int{9, 10, 11, 17, 18, 19},
		CurrentHour:       12,
	})
	require.NoError(t, err)

	assert.InDelta(t, 580.2, got.OptimalPowerConsumption, 1e-9)
	assert.InDelta(t, 270.0, got.EnergySavingsKWh, 1e-9)
	assert.InDelta(t, 300.0, got.RenewableEnergyUsage, 1e-9)
	assert.InDelta(t, 280.2, got.GridEnergyUsage, 1e-9)
	assert.InDelta(t, 24.0, got.RenewableCost, 1e-9)
	assert.InDelta(t, 33.624, got.GridCost, 1e-9)
	assert.InDelta(t, 57.624, got.TotalEnergyCost, 1e-9)
	assert.InDelta(t, 127.08, got.CO2EmissionsKg, 1e-9)
	assert.InDelta(t, 10.8, got.CostSavings, 1e-9)
	assert.Equal(t, 20.0, got.RenewableUsagePercent)
	assert.Equal(t, 1.0, got.CostMultiplier)
	assert.InDelta(t, 270/850.2*100, got.OptimizationPotential, 1e-9)
	assert.Empty(t, got.ModelVersion)
	assert.Len(t, got.Recommendations, 4)
}

func TestOptimizeEnergyUsesEstimatorWhenLoaded(t *testing.T) {
	p := newTestPredictor(t, constantArtifact(TargetEnergy, 700))

	got, err := p.OptimizeEnergy(context.Background(), models.EnergyInput{
		EnergyConsumption: 800,
		RenewableCapacity: 1000,
		CurrentHour:       23,
	})
	require.NoError(t, err)

	assert.Equal(t, 700.0, got.OptimalPowerConsumption)
	assert.Equal(t, 100.0, got.EnergySavingsKWh)
	assert.InDelta(t, 560.0, got.RenewableEnergyUsage, 1e-9)
	assert.InDelta(t, 140*0.12*0.8, got.GridCost, 1e-9)
	assert.Equal(t, "1.0.0", got.ModelVersion)
}

func TestOptimizeEnergyNonFinite(t *testing.T) {
	p := newTestPredictor(t)

	_, err := p.OptimizeEnergy(context.Background(), models.EnergyInput{EnergyConsumption: math.NaN()})
	assert.ErrorIs(t, err, apperr.ErrInference)
}

func TestCostMultiplier(t *testing.T) {
	peaks := []int{9, 10, 11, 17, 18, 19}
	cases := map[int]float64{
		9:  1.5,
		18: 1.5,
		22: 0.8,
		3:  0.8,
		6:  0.8,
		7:  1,
		14: 1,
	}
	for hour, want := range cases {
		assert.Equal(t, want, CostMultiplier(hour, peaks), "hour %d", hour)
	}
}

func TestNextMaintenance(t *testing.T) {
	tests := []struct {
		name    string
		reading models.SensorReading
		score   float64
		days    int
	}{
		{"critical old unit", models.SensorReading{"unit_age_days": 1500, "maintenance_days_since": 100}, 0.9, 7},
		{"healthy", models.SensorReading{"maintenance_days_since": 100}, 0.2, 90},
		{"recently serviced", models.SensorReading{"maintenance_days_since": 10}, 0.5, 60},
		{"old unit", models.SensorReading{"unit_age_days": 2000, "maintenance_days_since": 40}, 0.5, 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextMaintenance(tt.reading, tt.score, fixedNow)
			assert.Equal(t, time.Duration(tt.days)*24*time.Hour, got.Sub(fixedNow))
		})
	}
}

func TestCompletenessConfidence(t *testing.T) {
	assert.Equal(t, 0.5, CompletenessConfidence(models.SensorReading{"temperature": 1, "pressure": 1}))
	assert.Equal(t, 0.9, CompletenessConfidence(models.SensorReading{
		"temperature": 1, "pressure": 1, "flow_rate": 1, "energy_consumption": 1, "data_quality": 90,
	}))
	assert.Equal(t, 0.0, CompletenessConfidence(models.SensorReading{}))
}
