package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedJSON(t *testing.T) {
	out, err := json.Marshal(ExpectedOutcomes{EstimatedROI: Unbounded(math.Inf(1)), BreakEvenMonths: 4.5})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"estimated_roi":"Infinity"`)
	assert.Contains(t, string(out), `"break_even_months":4.5`)

	var back ExpectedOutcomes
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, back.EstimatedROI.IsInf())
	assert.Equal(t, Unbounded(4.5), back.BreakEvenMonths)
}

func TestSensorReadingHelpers(t *testing.T) {
	r := SensorReading{FieldTemperature: 31, FieldPressure: 48}

	assert.Equal(t, 31.0, r.Get(FieldTemperature, 25))
	assert.Equal(t, 1000.0, r.Get(FieldFlowRate, 1000))
	assert.Equal(t, []string{FieldFlowRate, FieldEnergyConsumption}, r.Missing(RequiredFields))
	assert.Empty(t, r.NonFinite())

	r[FieldVibration] = math.NaN()
	r[FieldCO2Concentration] = math.Inf(1)
	assert.Equal(t, []string{FieldCO2Concentration, FieldVibration}, r.NonFinite())

	c := r.Clone()
	c[FieldTemperature] = 10
	assert.Equal(t, 31.0, r[FieldTemperature])
}

func TestPredictionValidate(t *testing.T) {
	good := &MaintenancePrediction{
		MaintenanceScore:    0.42,
		RiskLevel:           RiskMedium,
		NextMaintenanceDate: time.Now(),
	}
	assert.NoError(t, good.Validate())

	bad := *good
	bad.RiskLevel = "severe"
	assert.Error(t, bad.Validate())

	eff := &EfficiencyPrediction{PredictedEfficiency: math.Inf(1)}
	assert.Error(t, eff.Validate())

	energy := &EnergyOptimization{EnergySavingsKWh: -1}
	assert.Error(t, energy.Validate())
}

func TestWithProcessingTimeCopies(t *testing.T) {
	orig := &EfficiencyPrediction{PredictedEfficiency: 82.5, ConfidenceScore: 1}
	annotated := orig.WithProcessingTime(12.5).(*EfficiencyPrediction)

	assert.Equal(t, 12.5, annotated.ProcessingTimeMs)
	assert.Zero(t, orig.ProcessingTimeMs)
	assert.Equal(t, orig.PredictedEfficiency, annotated.PredictedEfficiency)
}

func TestStatusFromResult(t *testing.T) {
	r := &OptimizationResult{
		UnitID: "unit-7",
		RunID:  "run-1",
		Predictions: UnitPredictions{
			Efficiency:  &EfficiencyPrediction{PredictedEfficiency: 84},
			Maintenance: &MaintenancePrediction{MaintenanceScore: 0.3, RiskLevel: RiskLow},
		},
		OptimizationPlan: OptimizationPlan{
			ImplementationPriority: PriorityHigh,
			Recommendations:        []Recommendation{{ID: "temp_optimization"}},
		},
	}

	s := StatusFromResult(r)
	assert.Equal(t, "unit-7", s.UnitID)
	assert.Equal(t, 84.0, s.PredictedEfficiency)
	assert.Equal(t, RiskLow, s.RiskLevel)
	assert.Equal(t, "temp_optimization", s.TopRecommendation)
}
