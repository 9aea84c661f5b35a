package ml

import "carbon-capture-ai/internal/models"

// FeatureColumns are the raw sensor inputs the estimators are trained on
var FeatureColumns = []string{
	models.FieldTemperature,
	models.FieldPressure,
	models.FieldFlowRate,
	models.FieldHumidity,
	models.FieldAirQuality,
	models.FieldEnergyConsumption,
	models.FieldCO2Concentration,
	models.FieldUnitAgeDays,
	models.FieldMaintenanceDaysSince,
	models.FieldEfficiencyCurrent,
}

// Derived feature names
const (
	FeatureEnergyEfficiencyRatio = "energy_efficiency_ratio"
	FeatureTempHumidityIndex     = "temp_humidity_index"
	FeatureFlowPressureRatio     = "flow_pressure_ratio"
	FeatureMaintenanceUrgency    = "maintenance_urgency"
)

// DerivedFeatureColumns lists derived features in a stable order
var DerivedFeatureColumns = []string{
	FeatureEnergyEfficiencyRatio,
	FeatureTempHumidityIndex,
	FeatureFlowPressureRatio,
	FeatureMaintenanceUrgency,
}

// AllFeatureColumns returns raw followed by derived feature names
func AllFeatureColumns() []string {
	out := make([]string, 0, len(FeatureColumns)+len(DerivedFeatureColumns))
	out = append(out, FeatureColumns...)
	return append(out, DerivedFeatureColumns...)
}

// BuildFeatures copies the reading and adds derived features whose inputs
// are both present. The input is not modified.
func BuildFeatures(reading models.SensorReading) map[string]float64 {
	out := make(map[string]float64, len(reading)+len(DerivedFeatureColumns))
	for k, v := range reading {
		out[k] = v
	}

	if energy, ok := reading[models.FieldEnergyConsumption]; ok {
		if co2, ok := reading[models.FieldCO2Concentration]; ok {
			out[FeatureEnergyEfficiencyRatio] = energy / (co2 + 1)
		}
	}
	if temp, ok := reading[models.FieldTemperature]; ok {
		if humidity, ok := reading[models.FieldHumidity]; ok {
			out[FeatureTempHumidityIndex] = temp * (humidity / 100)
		}
	}
	if flow, ok := reading[models.FieldFlowRate]; ok {
		if pressure, ok := reading[models.FieldPressure]; ok {
			out[FeatureFlowPressureRatio] = flow / (pressure + 1)
		}
	}
	if age, ok := reading[models.FieldUnitAgeDays]; ok {
		if since, ok := reading[models.FieldMaintenanceDaysSince]; ok {
			out[FeatureMaintenanceUrgency] = age / (since + 1)
		}
	}

	return out
}
