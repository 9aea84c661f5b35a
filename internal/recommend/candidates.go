package recommend

import (
	"fmt"
	"strings"

	"carbon-capture-ai/internal/models"
)

// Input is everything the engine looks at for one unit
type Input struct {
	Reading     models.SensorReading
	Efficiency  *models.EfficiencyPrediction
	Maintenance *models.MaintenancePrediction
	Energy      *models.EnergyOptimization
	// EnergyInput carries the hour and peak hours used for peak shaving
	EnergyInput models.EnergyInput
}

// Candidate thresholds
const (
	temperatureAbove      = 28.0
	pressureAbove         = 55.0
	flowRateAbove         = 1300.0
	renewableUsageBelow   = 70.0
	preventiveDaysSince   = 180.0
	renewableShiftStep    = 10.0
	renewableSavingsShare = 0.3
	renewableCO2Share     = 0.4
)

// Candidates generates recommendations for every domain whose weight in
// the strategy exceeds the gate, in efficiency, energy, maintenance order
func Candidates(in Input, w Weights) []models.Recommendation {
	var recs []models.Recommendation
	if w.Efficiency > domainWeightGate {
		recs = append(recs, EfficiencyCandidates(in.Reading)...)
	}
	if w.EnergySavings > domainWeightGate {
		recs = append(recs, EnergyCandidates(in.Energy, in.EnergyInput)...)
	}
	if w.MaintenanceRisk > domainWeightGate {
		recs = append(recs, MaintenanceCandidates(in.Reading, in.Maintenance)...)
	}
	return recs
}

// EfficiencyCandidates returns set-point recommendations
func EfficiencyCandidates(reading models.SensorReading) []models.Recommendation {
	var recs []models.Recommendation

	if temperature := reading.Get(models.FieldTemperature, 25); temperature > temperatureAbove {
		recs = append(recs, models.Recommendation{
			ID:                   "temp_optimization",
			Category:             models.CategoryEfficiency,
			Title:                "Temperature Optimization",
			Description:          fmt.Sprintf("Reduce operating temperature from %g°C to 25°C", temperature),
			Impact:               models.Impact{EfficiencyGain: 2.5, EnergySavings: 35, CO2Reduction: 12},
			Difficulty:           models.DifficultyMedium,
			TimeToImplementHours: 2,
			RiskLevel:            models.RiskLow,
		})
	}

	if pressure := reading.Get(models.FieldPressure, 50); pressure > pressureAbove {
		recs = append(recs, models.Recommendation{
			ID:                   "pressure_optimization",
			Category:             models.CategoryEfficiency,
			Title:                "Pressure Optimization",
			Description:          fmt.Sprintf("Optimize pressure from %g psi to 45-50 psi range", pressure),
			Impact:               models.Impact{EfficiencyGain: 1.8, EnergySavings: 25, CO2Reduction: 8},
			Difficulty:           models.DifficultyMedium,
			TimeToImplementHours: 4,
			RiskLevel:            models.RiskLow,
		})
	}

	if flowRate := reading.Get(models.FieldFlowRate, 1000); flowRate > flowRateAbove {
		recs = append(recs, models.Recommendation{
			ID:                   "flow_optimization",
			Category:             models.CategoryEfficiency,
			Title:                "Flow Rate Optimization",
			Description:          fmt.Sprintf("Optimize flow rate from %g L/min to efficient range", flowRate),
			Impact:               models.Impact{EfficiencyGain: 1.2, EnergySavings: 20, CO2Reduction: 6},
			Difficulty:           models.DifficultyLow,
			TimeToImplementHours: 1,
			RiskLevel:            models.RiskLow,
		})
	}

	return recs
}

// EnergyCandidates returns renewable shift and peak shaving recommendations
func EnergyCandidates(energy *models.EnergyOptimization, in models.EnergyInput) []models.Recommendation {
	var recs []models.Recommendation

	var savings, renewableUsage float64
	if energy != nil {
		savings = energy.EnergySavingsKWh
		renewableUsage = energy.RenewableUsagePercent
	}

	if renewableUsage < renewableUsageBelow {
		recs = append(recs, models.Recommendation{
			ID:          "renewable_shift",
			Category:    models.CategoryEnergy,
			Title:       "Increase Renewable Energy Usage",
			Description: fmt.Sprintf("Increase renewable energy usage to %g%%", renewableUsage+renewableShiftStep),
			Impact: models.Impact{
				EfficiencyGain: 0.5,
				EnergySavings:  savings * renewableSavingsShare,
				CO2Reduction:   savings * renewableCO2Share,
			},
			Difficulty:           models.DifficultyMedium,
			TimeToImplementHours: 8,
			Cost:                 500,
			RiskLevel:            models.RiskLow,
		})
	}

	if isPeakHour(in.CurrentHour, in.PeakHours) {
		recs = append(recs, models.Recommendation{
			ID:                   "peak_shaving",
			Category:             models.CategoryEnergy,
			Title:                "Peak Demand Management",
			Description:          "Implement peak shaving during high-demand hours",
			Impact:               models.Impact{EfficiencyGain: 0.8, EnergySavings: 45, CO2Reduction: 18},
			Difficulty:           models.DifficultyHigh,
			TimeToImplementHours: 24,
			Cost:                 2000,
			RiskLevel:            models.RiskMedium,
		})
	}

	return recs
}

func isPeakHour(hour int, peaks []int) bool {
	for _, h := range peaks {
		if h == hour {
			return true
		}
	}
	return false
}

// MaintenanceCandidates returns alert-driven and preventive maintenance recommendations
func MaintenanceCandidates(reading models.SensorReading, maintenance *models.MaintenancePrediction) []models.Recommendation {
	var recs []models.Recommendation

	if maintenance != nil {
		for _, alert := range maintenance.Alerts {
			if alert.AlertType != "warning" {
				continue
			}
			msg := strings.ToLower(alert.Message)
			switch {
			case strings.Contains(msg, "vibration"):
				recs = append(recs, models.Recommendation{
					ID:          "vibration_maintenance",
					Category:    models.CategoryMaintenance,
					Title:       "Vibration Analysis and Bearing Check",
					Description: "Schedule vibration analysis and bearing inspection",
					Impact: models.Impact{
						EfficiencyGain:           1.5,
						EnergySavings:            30,
						CO2Reduction:             10,
						MaintenanceRiskReduction: 0.4,
					},
					Difficulty:           models.DifficultyMedium,
					TimeToImplementHours: 16,
					Cost:                 1500,
					RiskLevel:            models.RiskMedium,
				})
			case strings.Contains(msg, "current"):
				recs = append(recs, models.Recommendation{
					ID:          "electrical_maintenance",
					Category:    models.CategoryMaintenance,
					Title:       "Electrical System Inspection",
					Description: "Inspect electrical components and motor systems",
					Impact: models.Impact{
						EfficiencyGain:           1.2,
						EnergySavings:            25,
						CO2Reduction:             8,
						MaintenanceRiskReduction: 0.35,
					},
					Difficulty:           models.DifficultyHigh,
					TimeToImplementHours: 20,
					Cost:                 2500,
					RiskLevel:            models.RiskHigh,
				})
			}
		}
	}

	if reading.Get(models.FieldMaintenanceDaysSince, 0) > preventiveDaysSince {
		recs = append(recs, models.Recommendation{
			ID:          "preventive_maintenance",
			Category:    models.CategoryMaintenance,
			Title:       "Comprehensive Preventive Maintenance",
			Description: "Schedule full preventive maintenance inspection",
			Impact: models.Impact{
				EfficiencyGain:           2.0,
				EnergySavings:            50,
				CO2Reduction:             15,
				MaintenanceRiskReduction: 0.6,
			},
			Difficulty:           models.DifficultyHigh,
			TimeToImplementHours: 48,
			Cost:                 5000,
			RiskLevel:            models.RiskLow,
		})
	}

	return recs
}
