package recommend

import (
	"math"
	"strings"
	"time"

	"carbon-capture-ai/internal/models"
)

const (
	outcomeTopN  = 3
	timelineTopN = 5
	monitorTopN  = 3

	daysPerYear              = 365
	electricityCostPerKWh    = 0.12
	defaultCurrentEfficiency = 80.0
)

// Plan builds the optimization plan for in under strategy st
func Plan(in Input, st Strategy, horizonHours int) models.OptimizationPlan {
	candidates := Candidates(in, st.PriorityWeights)
	recs := Prioritize(Filter(candidates, st.Constraints), st.PriorityWeights)

	var maintenanceScore float64
	if in.Maintenance != nil {
		maintenanceScore = in.Maintenance.MaintenanceScore
	}

	return models.OptimizationPlan{
		StrategyApplied:        st.Name,
		Recommendations:        recs,
		ExpectedOutcomes:       Outcomes(recs, in.Reading, horizonHours),
		ImplementationPriority: ImplementationPriority(recs, maintenanceScore),
		MonitoringRequirements: MonitoringRequirements(recs),
	}
}

// Outcomes sums the impact of the top ranked recommendations
func Outcomes(recs []models.Recommendation, reading models.SensorReading, horizonHours int) models.ExpectedOutcomes {
	top := recs
	if len(top) > outcomeTopN {
		top = top[:outcomeTopN]
	}

	out := models.ExpectedOutcomes{
		TimeHorizonHours:           horizonHours,
		RecommendationsImplemented: len(top),
	}
	for _, rec := range top {
		out.TotalEfficiencyGain += rec.Impact.EfficiencyGain
		out.TotalEnergySavingsKWh += rec.Impact.EnergySavings
		out.TotalCO2ReductionTons += rec.Impact.CO2Reduction
		out.TotalImplementationCost += rec.Cost
	}
	out.ProjectedEfficiency = reading.Get(models.FieldEfficiencyCurrent, defaultCurrentEfficiency) + out.TotalEfficiencyGain

	annualSavings := AnnualSavings(out.TotalEnergySavingsKWh)
	out.EstimatedROI = ROI(annualSavings, out.TotalImplementationCost)
	if annualSavings > 0 {
		out.BreakEvenMonths = models.Unbounded(out.TotalImplementationCost / (annualSavings / 12))
	} else {
		out.BreakEvenMonths = models.Unbounded(math.Inf(1))
	}
	return out
}

// AnnualSavings converts daily kWh savings to yearly cost savings
func AnnualSavings(kwh float64) float64 {
	return kwh * daysPerYear * electricityCostPerKWh
}

// ROI is (savings - cost) / cost, unbounded when nothing is spent
func ROI(annualSavings, cost float64) models.Unbounded {
	if cost <= 0 {
		return models.Unbounded(math.Inf(1))
	}
	return models.Unbounded((annualSavings - cost) / cost)
}

// ImplementationPriority grades how urgently the plan should be acted on
func ImplementationPriority(recs []models.Recommendation, maintenanceScore float64) string {
	switch {
	case maintenanceScore > 0.8:
		return models.PriorityCritical
	case maintenanceScore > 0.6 || len(recs) > 3:
		return models.PriorityHigh
	case maintenanceScore > 0.4:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// MonitoringRequirements lists what to watch while the top recommendations
// are implemented, without duplicates, in first-seen order
func MonitoringRequirements(recs []models.Recommendation) []string {
	reqs := []string{
		"Continuous monitoring of efficiency metrics",
		"Real-time energy consumption tracking",
		"Alert monitoring for any anomalies",
	}

	top := recs
	if len(top) > monitorTopN {
		top = top[:monitorTopN]
	}
	for _, rec := range top {
		title := strings.ToLower(rec.Title)
		if strings.Contains(title, "temperature") {
			reqs = append(reqs, "Temperature monitoring every 5 minutes")
		}
		if strings.Contains(title, "pressure") {
			reqs = append(reqs, "Pressure monitoring every 5 minutes")
		}
		if strings.Contains(title, "vibration") {
			reqs = append(reqs, "Vibration analysis every 15 minutes")
		}
		if strings.Contains(rec.Category, models.CategoryMaintenance) {
			reqs = append(reqs, "Increased maintenance monitoring")
		}
	}

	seen := make(map[string]struct{}, len(reqs))
	out := reqs[:0]
	for _, r := range reqs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Timeline lays the top recommendations end to end starting at start
func Timeline(plan models.OptimizationPlan, start time.Time) []models.TimelineEntry {
	recs := plan.Recommendations
	if len(recs) > timelineTopN {
		recs = recs[:timelineTopN]
	}

	timeline := make([]models.TimelineEntry, 0, len(recs))
	current := start
	for _, rec := range recs {
		end := current.Add(time.Duration(rec.TimeToImplementHours * float64(time.Hour)))
		timeline = append(timeline, models.TimelineEntry{
			RecommendationID: rec.ID,
			Title:            rec.Title,
			StartTime:        current,
			EndTime:          end,
			DurationHours:    rec.TimeToImplementHours,
			Difficulty:       rec.Difficulty,
			Dependencies:     []string{},
		})
		current = end
	}
	return timeline
}
