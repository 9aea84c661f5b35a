package models

import "time"

// UnitStatus is published on status/{unit_id} after each optimization
type UnitStatus struct {
	UnitID                 string    `json:"unit_id"`
	RunID                  string    `json:"run_id"`
	Timestamp              time.Time `json:"timestamp"`
	PredictedEfficiency    float64   `json:"predicted_efficiency"`
	MaintenanceScore       float64   `json:"maintenance_score"`
	RiskLevel              string    `json:"risk_level"`
	ImplementationPriority string    `json:"implementation_priority"`
	OptimizationScore      float64   `json:"optimization_score"`
	TopRecommendation      string    `json:"top_recommendation,omitempty"`
}

// StatusFromResult summarizes an optimization result for publishing
func StatusFromResult(r *OptimizationResult) *UnitStatus {
	s := &UnitStatus{
		UnitID:                 r.UnitID,
		RunID:                  r.RunID,
		Timestamp:              r.Timestamp,
		ImplementationPriority: r.OptimizationPlan.ImplementationPriority,
		OptimizationScore:      r.PerformanceMetrics.OptimizationScore,
	}
	if r.Predictions.Efficiency != nil {
		s.PredictedEfficiency = r.Predictions.Efficiency.PredictedEfficiency
	}
	if r.Predictions.Maintenance != nil {
		s.MaintenanceScore = r.Predictions.Maintenance.MaintenanceScore
		s.RiskLevel = r.Predictions.Maintenance.RiskLevel
	}
	if len(r.OptimizationPlan.Recommendations) > 0 {
		s.TopRecommendation = r.OptimizationPlan.Recommendations[0].ID
	}
	return s
}
