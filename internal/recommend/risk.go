package recommend

import (
	"math"

	"carbon-capture-ai/internal/models"
)

// Risk contributions and their thresholds
const (
	maintenanceRiskAbove = 0.7
	maintenanceRiskPts   = 0.3
	highRiskCountAbove   = 2
	highRiskCountPts     = 0.2
	highCostAbove        = 10000.0
	highCostPts          = 0.2
	longHoursAbove       = 72.0
	longHoursPts         = 0.1
	oldUnitDaysAbove     = 2000.0
	oldUnitPts           = 0.2

	riskLowBelow    = 0.3
	riskMediumBelow = 0.6
)

// DefaultModelConfidence stands in for predictions that carry a model
// version but no confidence score of their own
const DefaultModelConfidence = 0.85

var riskMonitoring = []string{
	"Monitor efficiency metrics every 15 minutes during implementation",
	"Track energy consumption in real-time",
	"Monitor for any error conditions or alerts",
	"Have engineering team on standby during critical changes",
}

// AssessRisk scores the implementation risk of every recommendation in plan
func AssessRisk(plan models.OptimizationPlan, reading models.SensorReading, maintenanceScore float64) models.RiskAssessment {
	var highRisk int
	var totalCost, totalHours float64
	for _, rec := range plan.Recommendations {
		if rec.RiskLevel == models.RiskHigh {
			highRisk++
		}
		totalCost += rec.Cost
		totalHours += rec.TimeToImplementHours
	}
	unitAge := reading.Get(models.FieldUnitAgeDays, 0)

	factors := models.RiskFactors{
		MaintenanceRisk:          maintenanceScore > maintenanceRiskAbove,
		ImplementationComplexity: highRisk > highRiskCountAbove,
		HighCost:                 totalCost > highCostAbove,
		LongImplementation:       totalHours > longHoursAbove,
		OldEquipment:             unitAge > oldUnitDaysAbove,
	}

	var score float64
	if factors.MaintenanceRisk {
		score += maintenanceRiskPts
	}
	if factors.ImplementationComplexity {
		score += highRiskCountPts
	}
	if factors.HighCost {
		score += highCostPts
	}
	if factors.LongImplementation {
		score += longHoursPts
	}
	if factors.OldEquipment {
		score += oldUnitPts
	}
	// keep 0.1+0.2 from landing just above 0.3
	score = math.Round(score*100) / 100

	level := models.RiskHigh
	switch {
	case score < riskLowBelow:
		level = models.RiskLow
	case score < riskMediumBelow:
		level = models.RiskMedium
	}

	mitigation := []string{}
	if score > riskLowBelow {
		mitigation = append(mitigation, "Implement changes gradually with monitoring")
	}
	if maintenanceScore > 0.5 {
		mitigation = append(mitigation, "Schedule maintenance before optimization")
	}
	if highRisk > 0 {
		mitigation = append(mitigation, "Have rollback procedures ready")
	}
	if totalCost > 5000 {
		mitigation = append(mitigation, "Phase implementation to spread costs")
	}

	return models.RiskAssessment{
		OverallRiskLevel:          level,
		RiskScore:                 score,
		RiskFactors:               factors,
		MitigationStrategies:      mitigation,
		MonitoringRecommendations: append([]string(nil), riskMonitoring...),
	}
}

// OptimizationScore rates expected outcomes on a 0-100 scale
func OptimizationScore(o models.ExpectedOutcomes) float64 {
	score := o.TotalEfficiencyGain*0.4 +
		o.TotalEnergySavingsKWh/100*0.3 +
		o.TotalCO2ReductionTons*10*0.3
	return math.Min(score, 100)
}

// Confidence levels
const (
	ConfidenceHigh    = "high"
	ConfidenceMedium  = "medium"
	ConfidenceLow     = "low"
	ConfidenceUnknown = "unknown"
)

// PredictionConfidences collects the confidence of each prediction.
// Predictions without a confidence score count as DefaultModelConfidence
// when they were produced by a model, and are skipped otherwise.
func PredictionConfidences(p models.UnitPredictions) []float64 {
	var out []float64
	if p.Efficiency != nil {
		out = append(out, p.Efficiency.ConfidenceScore)
	}
	if p.Maintenance != nil && p.Maintenance.ModelVersion != "" {
		out = append(out, DefaultModelConfidence)
	}
	if p.Energy != nil && p.Energy.ModelVersion != "" {
		out = append(out, DefaultModelConfidence)
	}
	return out
}

// ConfidenceLevel maps the mean confidence to a coarse label
func ConfidenceLevel(confidences []float64) string {
	if len(confidences) == 0 {
		return ConfidenceUnknown
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	avg := sum / float64(len(confidences))
	switch {
	case avg > 0.9:
		return ConfidenceHigh
	case avg > 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
