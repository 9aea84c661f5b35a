package models

import (
	"fmt"
	"math"
	"time"
)

// PredictionKind scopes cache keys and metrics
type PredictionKind string

const (
	KindEfficiency  PredictionKind = "efficiency"
	KindMaintenance PredictionKind = "maintenance"
	KindEnergy      PredictionKind = "energy"
)

// Prediction is the tagged union of prediction results held by the cache
type Prediction interface {
	Kind() PredictionKind
	// Validate checks the basic shape of a result
	Validate() error
	// WithProcessingTime returns a copy annotated with the given latency
	WithProcessingTime(ms float64) Prediction
}

// Risk levels shared by maintenance predictions and recommendations
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// SuggestionImpact is the estimated effect of an efficiency suggestion
type SuggestionImpact struct {
	CO2Increase   float64 `json:"co2Increase"`
	EnergySavings float64 `json:"energySavings"`
}

// Suggestion is an operator hint attached to an efficiency prediction
type Suggestion struct {
	Type        string           `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Impact      SuggestionImpact `json:"impact"`
	Priority    string           `json:"priority"`
}

// EfficiencyPrediction is the predicted capture efficiency for a reading
type EfficiencyPrediction struct {
	PredictedEfficiency     float64      `json:"predicted_efficiency"`
	CurrentEfficiency       float64      `json:"current_efficiency"`
	OptimizationSuggestions []Suggestion `json:"optimization_suggestions"`
	ModelVersion            string       `json:"model_version"`
	ConfidenceScore         float64      `json:"confidence_score"`
	Timestamp               time.Time    `json:"timestamp"`
	ProcessingTimeMs        float64      `json:"processing_time_ms"`
}

func (p *EfficiencyPrediction) Kind() PredictionKind { return KindEfficiency }

func (p *EfficiencyPrediction) Validate() error {
	if !finite(p.PredictedEfficiency) {
		return fmt.Errorf("predicted_efficiency is not finite")
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		return fmt.Errorf("confidence_score %v outside [0,1]", p.ConfidenceScore)
	}
	return nil
}

func (p *EfficiencyPrediction) WithProcessingTime(ms float64) Prediction {
	out := *p
	out.ProcessingTimeMs = ms
	return &out
}

// Alert is a maintenance alert
type Alert struct {
	AlertType   string  `json:"alertType"`
	Message     string  `json:"message"`
	Probability float64 `json:"probability"`
	Severity    string  `json:"severity"`
}

// MaintenancePrediction is the predicted maintenance need for a reading
type MaintenancePrediction struct {
	MaintenanceScore    float64   `json:"maintenance_score"`
	PredictedLabel      string    `json:"predicted_label,omitempty"`
	LabelConfidence     float64   `json:"label_confidence,omitempty"`
	RiskLevel           string    `json:"risk_level"`
	Alerts              []Alert   `json:"alerts"`
	NextMaintenanceDate time.Time `json:"next_maintenance_date"`
	ModelVersion        string    `json:"model_version"`
	Timestamp           time.Time `json:"timestamp"`
	ProcessingTimeMs    float64   `json:"processing_time_ms"`
}

func (p *MaintenancePrediction) Kind() PredictionKind { return KindMaintenance }

func (p *MaintenancePrediction) Validate() error {
	if !finite(p.MaintenanceScore) || p.MaintenanceScore < 0 || p.MaintenanceScore > 1 {
		return fmt.Errorf("maintenance_score %v outside [0,1]", p.MaintenanceScore)
	}
	switch p.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
	default:
		return fmt.Errorf("unknown risk_level %q", p.RiskLevel)
	}
	if p.NextMaintenanceDate.IsZero() {
		return fmt.Errorf("next_maintenance_date missing")
	}
	return nil
}

func (p *MaintenancePrediction) WithProcessingTime(ms float64) Prediction {
	out := *p
	out.ProcessingTimeMs = ms
	return &out
}

// EnergyInput is the operational data used for energy optimization
type EnergyInput struct {
	EnergyConsumption     float64 `json:"energy_consumption"`
	RenewableCapacity     float64 `json:"renewable_capacity"`
	CurrentRenewableUsage float64 `json:"current_renewable_usage"`
	GridCostPerKWh        float64 `json:"grid_cost_per_kwh"`
	RenewableCostPerKWh   float64 `json:"renewable_cost_per_kwh"`
	PeakHours             []int   `json:"peak_hours"`
	CurrentHour           int     `json:"current_hour"`
	// Features feeds the optional energy estimator
	Features SensorReading `json:"features,omitempty"`
}

// EnergyOptimization is the energy plan for a unit
type EnergyOptimization struct {
	OptimalPowerConsumption  float64   `json:"optimal_power_consumption"`
	EnergySavingsKWh         float64   `json:"energy_savings_kwh"`
	RenewableEnergyUsage     float64   `json:"renewable_energy_usage"`
	GridEnergyUsage          float64   `json:"grid_energy_usage"`
	RenewableCost            float64   `json:"renewable_cost"`
	GridCost                 float64   `json:"grid_cost"`
	TotalEnergyCost          float64   `json:"total_energy_cost"`
	CO2EmissionsKg           float64   `json:"co2_emissions_kg"`
	CostSavings              float64   `json:"cost_savings"`
	RenewableUsagePercent    float64   `json:"renewable_usage"`
	CurrentEnergyConsumption float64   `json:"current_energy_consumption"`
	OptimizationPotential    float64   `json:"optimization_potential"`
	CostMultiplier           float64   `json:"cost_multiplier"`
	Recommendations          []string  `json:"recommendations"`
	ModelVersion             string    `json:"model_version,omitempty"`
	Timestamp                time.Time `json:"timestamp"`
	ProcessingTimeMs         float64   `json:"processing_time_ms"`
}

func (p *EnergyOptimization) Kind() PredictionKind { return KindEnergy }

func (p *EnergyOptimization) Validate() error {
	for name, v := range map[string]float64{
		"optimal_power_consumption": p.OptimalPowerConsumption,
		"energy_savings_kwh":        p.EnergySavingsKWh,
		"total_energy_cost":         p.TotalEnergyCost,
		"co2_emissions_kg":          p.CO2EmissionsKg,
	} {
		if !finite(v) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	if p.EnergySavingsKWh < 0 {
		return fmt.Errorf("energy_savings_kwh is negative")
	}
	return nil
}

func (p *EnergyOptimization) WithProcessingTime(ms float64) Prediction {
	out := *p
	out.ProcessingTimeMs = ms
	return &out
}

// UnitPrediction combines the three predictions for one unit
type UnitPrediction struct {
	Efficiency         *EfficiencyPrediction  `json:"efficiency_prediction"`
	Maintenance        *MaintenancePrediction `json:"maintenance_prediction"`
	Energy             *EnergyOptimization    `json:"energy_optimization"`
	ComprehensiveScore float64                `json:"comprehensive_score"`
}

// BatchPredictionResult is one entry of a batch prediction
type BatchPredictionResult struct {
	UnitID     string          `json:"unit_id"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	Prediction *UnitPrediction `json:"prediction,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
