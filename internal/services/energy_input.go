package services

import (
	"time"

	"carbon-capture-ai/internal/models"
)

// Operational defaults for energy optimization
const (
	DefaultRenewableCapacity   = 300.0
	DefaultGridCostPerKWh      = 0.12
	DefaultRenewableCostPerKWh = 0.08
)

// DefaultPeakHours are the grid peak tariff hours
var DefaultPeakHours = []int{9, 10, 11, 17, 18, 19}

// ExtractEnergyInput pulls the operational energy fields out of a reading,
// filling defaults for anything missing. current_hour falls back to now.
func ExtractEnergyInput(reading models.SensorReading, now time.Time) models.EnergyInput {
	hour := now.Hour()
	if v, ok := reading[models.FieldCurrentHour]; ok {
		hour = int(v)
	}
	return models.EnergyInput{
		EnergyConsumption:     reading.Get(models.FieldEnergyConsumption, 0),
		RenewableCapacity:     reading.Get(models.FieldRenewableCapacity, DefaultRenewableCapacity),
		CurrentRenewableUsage: reading.Get(models.FieldRenewableUsage, 0),
		GridCostPerKWh:        reading.Get(models.FieldGridCost, DefaultGridCostPerKWh),
		RenewableCostPerKWh:   reading.Get(models.FieldRenewableCost, DefaultRenewableCostPerKWh),
		PeakHours:             append([]int(nil), DefaultPeakHours...),
		CurrentHour:           hour,
		Features:              reading,
	}
}
