package recommend

import (
	"strings"

	"carbon-capture-ai/internal/apperr"
	"carbon-capture-ai/internal/models"
)

// ValidateInputs checks a comprehensive optimization request
func ValidateInputs(unitID string, reading models.SensorReading, strategies Strategies, strategy string) (Strategy, error) {
	const op = "optimize_unit"
	if strings.TrimSpace(unitID) == "" {
		return Strategy{}, apperr.InvalidInput(op, "valid unit_id is required")
	}
	if len(reading) == 0 {
		return Strategy{}, apperr.InvalidInput(op, "sensor_data is required")
	}
	st, ok := strategies.Get(strategy)
	if !ok {
		return Strategy{}, apperr.InvalidInput(op, "unknown optimization strategy: %s. Available: %v", strategy, strategies.Names())
	}
	if missing := reading.Missing(models.RequiredFields); len(missing) > 0 {
		return Strategy{}, apperr.InvalidInput(op, "missing required sensor data: %v", missing)
	}
	return st, nil
}
