package models

import (
	"encoding/json"
	"math"
	"time"
)

// Recommendation categories
const (
	CategoryEfficiency  = "efficiency"
	CategoryEnergy      = "energy"
	CategoryMaintenance = "maintenance"
)

// Difficulty levels
const (
	DifficultyLow    = "low"
	DifficultyMedium = "medium"
	DifficultyHigh   = "high"
)

// Unbounded is a ratio that may be +Inf, encoded as "Infinity" in JSON
type Unbounded float64

func (u Unbounded) MarshalJSON() ([]byte, error) {
	f := float64(u)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(f):
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (u *Unbounded) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"Infinity"`:
		*u = Unbounded(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*u = Unbounded(math.Inf(-1))
		return nil
	case "null":
		*u = Unbounded(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*u = Unbounded(f)
	return nil
}

// IsInf reports whether the value is unbounded
func (u Unbounded) IsInf() bool {
	return math.IsInf(float64(u), 0)
}

// Impact is the estimated effect of a recommendation
type Impact struct {
	EfficiencyGain           float64 `json:"efficiency_gain"`
	EnergySavings            float64 `json:"energy_savings"`
	CO2Reduction             float64 `json:"co2_reduction"`
	MaintenanceRiskReduction float64 `json:"maintenance_risk_reduction"`
}

// Recommendation is a scored action for a unit
type Recommendation struct {
	ID                   string  `json:"id"`
	Category             string  `json:"category"`
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	Impact               Impact  `json:"impact"`
	Difficulty           string  `json:"difficulty"`
	TimeToImplementHours float64 `json:"time_to_implement"`
	Cost                 float64 `json:"cost"`
	RiskLevel            string  `json:"risk_level"`
	PriorityRank         int     `json:"priority_rank"`
	PriorityScore        float64 `json:"priority_score"`
}

// ExpectedOutcomes summarizes the top ranked recommendations
type ExpectedOutcomes struct {
	TimeHorizonHours           int       `json:"time_horizon_hours"`
	ProjectedEfficiency        float64   `json:"projected_efficiency"`
	TotalEfficiencyGain        float64   `json:"total_efficiency_gain"`
	TotalEnergySavingsKWh      float64   `json:"total_energy_savings_kwh"`
	TotalCO2ReductionTons      float64   `json:"total_co2_reduction_tons"`
	TotalImplementationCost    float64   `json:"total_implementation_cost"`
	EstimatedROI               Unbounded `json:"estimated_roi"`
	BreakEvenMonths            Unbounded `json:"break_even_months"`
	RecommendationsImplemented int       `json:"recommendations_implemented"`
}

// Implementation priority levels
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// OptimizationPlan is the strategy-specific plan for one unit
type OptimizationPlan struct {
	StrategyApplied        string           `json:"strategy_applied"`
	Recommendations        []Recommendation `json:"recommendations"`
	ExpectedOutcomes       ExpectedOutcomes `json:"expected_outcomes"`
	ImplementationPriority string           `json:"implementation_priority"`
	MonitoringRequirements []string         `json:"monitoring_requirements"`
}

// TimelineEntry is one sequential implementation window
type TimelineEntry struct {
	RecommendationID string    `json:"recommendation_id"`
	Title            string    `json:"title"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	DurationHours    float64   `json:"duration_hours"`
	Difficulty       string    `json:"difficulty"`
	Dependencies     []string  `json:"dependencies"`
}

// RiskFactors flags which risk contributions fired
type RiskFactors struct {
	MaintenanceRisk          bool `json:"maintenance_risk"`
	ImplementationComplexity bool `json:"implementation_complexity"`
	HighCost                 bool `json:"high_cost"`
	LongImplementation       bool `json:"long_implementation"`
	OldEquipment             bool `json:"old_equipment"`
}

// RiskAssessment is the implementation risk of a plan
type RiskAssessment struct {
	OverallRiskLevel          string      `json:"overall_risk_level"`
	RiskScore                 float64     `json:"risk_score"`
	RiskFactors               RiskFactors `json:"risk_factors"`
	MitigationStrategies      []string    `json:"mitigation_strategies"`
	MonitoringRecommendations []string    `json:"monitoring_recommendations"`
}

// UnitPredictions holds the predictions a plan was built from
type UnitPredictions struct {
	Efficiency  *EfficiencyPrediction  `json:"efficiency"`
	Maintenance *MaintenancePrediction `json:"maintenance"`
	Energy      *EnergyOptimization    `json:"energy"`
}

// PerformanceMetrics describes a comprehensive optimization run
type PerformanceMetrics struct {
	ProcessingTimeMs  float64 `json:"processing_time_ms"`
	OptimizationScore float64 `json:"optimization_score"`
	ConfidenceLevel   string  `json:"confidence_level"`
}

// OptimizationResult is the comprehensive optimization of one unit
type OptimizationResult struct {
	RunID                  string             `json:"run_id"`
	UnitID                 string             `json:"unit_id"`
	OptimizationStrategy   string             `json:"optimization_strategy"`
	Timestamp              time.Time          `json:"timestamp"`
	Predictions            UnitPredictions    `json:"predictions"`
	OptimizationPlan       OptimizationPlan   `json:"optimization_plan"`
	ImplementationTimeline []TimelineEntry    `json:"implementation_timeline"`
	RiskAssessment         RiskAssessment     `json:"risk_assessment"`
	PerformanceMetrics     PerformanceMetrics `json:"performance_metrics"`
}

// UnitFailure records a unit that could not be optimized
type UnitFailure struct {
	UnitID    string `json:"unit_id"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// NetworkRun describes a network optimization invocation
type NetworkRun struct {
	RunID                   string  `json:"run_id"`
	TotalUnits              int     `json:"total_units"`
	SuccessfulOptimizations int     `json:"successful_optimizations"`
	FailedOptimizations     int     `json:"failed_optimizations"`
	OptimizationStrategy    string  `json:"optimization_strategy"`
	ProcessingTimeMs        float64 `json:"processing_time_ms"`
}

// PriorityDistribution counts units per implementation priority
type PriorityDistribution struct {
	HighPriorityUnits     int `json:"high_priority_units"`
	CriticalPriorityUnits int `json:"critical_priority_units"`
	NormalPriorityUnits   int `json:"normal_priority_units"`
}

// NetworkSummary aggregates successful unit optimizations
type NetworkSummary struct {
	TotalEfficiencyGain             float64              `json:"total_efficiency_gain"`
	TotalEnergySavingsKWh           float64              `json:"total_energy_savings_kwh"`
	TotalCO2ReductionTons           float64              `json:"total_co2_reduction_tons"`
	TotalImplementationCost         float64              `json:"total_implementation_cost"`
	AverageOptimizationScore        float64              `json:"average_optimization_score"`
	PriorityDistribution            PriorityDistribution `json:"priority_distribution"`
	NetworkROI                      Unbounded            `json:"network_roi"`
	EfficiencyImprovementPercentage float64              `json:"efficiency_improvement_percentage"`
}

// NetworkOptimizationResult is the fleet-wide optimization outcome.
// Results keep the order of the input units.
type NetworkOptimizationResult struct {
	Network   NetworkRun            `json:"network_optimization"`
	Results   []*OptimizationResult `json:"results"`
	Failures  []UnitFailure         `json:"failures"`
	Summary   *NetworkSummary       `json:"network_summary"`
	Timestamp time.Time             `json:"timestamp"`
}
