package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Sensor field names used across the pipeline
const (
	FieldTemperature          = "temperature"
	FieldPressure             = "pressure"
	FieldFlowRate             = "flow_rate"
	FieldHumidity             = "humidity"
	FieldAirQuality           = "air_quality"
	FieldEnergyConsumption    = "energy_consumption"
	FieldCO2Concentration     = "co2_concentration"
	FieldVibration            = "vibration"
	FieldMotorCurrent         = "motor_current"
	FieldUnitAgeDays          = "unit_age_days"
	FieldMaintenanceDaysSince = "maintenance_days_since"
	FieldEfficiencyCurrent    = "efficiency_current"
	FieldDataQuality          = "data_quality"
	FieldRenewableCapacity    = "renewable_capacity"
	FieldRenewableUsage       = "current_renewable_usage"
	FieldGridCost             = "grid_cost_per_kwh"
	FieldRenewableCost        = "renewable_cost_per_kwh"
	FieldCurrentHour          = "current_hour"
)

// RequiredFields must be present for a comprehensive optimization
var RequiredFields = []string{
	FieldTemperature,
	FieldPressure,
	FieldFlowRate,
	FieldEnergyConsumption,
}

// SensorReading maps sensor field names to numeric values.
// Missing fields fall back to field-specific defaults at the consumer.
type SensorReading map[string]float64

// Get returns the value of field or def when absent
func (r SensorReading) Get(field string, def float64) float64 {
	if v, ok := r[field]; ok {
		return v
	}
	return def
}

// Has reports whether field is present
func (r SensorReading) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Missing returns the fields from want that are absent, in order
func (r SensorReading) Missing(want []string) []string {
	var missing []string
	for _, f := range want {
		if !r.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// NonFinite returns the fields holding NaN or Inf in sorted order
func (r SensorReading) NonFinite() []string {
	var fields []string
	for k, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

// Clone returns an independent copy
func (r SensorReading) Clone() SensorReading {
	out := make(SensorReading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// UnitReading pairs a unit with its latest sensor snapshot
type UnitReading struct {
	UnitID     string        `json:"unit_id"`
	SensorData SensorReading `json:"sensor_data"`
}

// SensorMessage is the JSON payload published by field sensors on
// sensors/{unit_id}/{sensor_type}/{sensor_id}
type SensorMessage struct {
	SensorID  string   `json:"sensor_id"`
	Value     *float64 `json:"value"`
	Quality   *Quality `json:"quality"`
	Timestamp string   `json:"timestamp"` // ISO 8601, zone optional
}

// Quality is a data quality percentage. Field gateways send either a
// number or one of the labels good, fair and poor.
type Quality float64

// Quality labels and their percentages
var qualityLabels = map[string]Quality{
	"good": 100,
	"fair": 75,
	"poor": 40,
}

func (q *Quality) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		v, ok := qualityLabels[strings.ToLower(label)]
		if !ok {
			return fmt.Errorf("unknown quality label %q", label)
		}
		*q = v
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("quality must be a number or label: %w", err)
	}
	*q = Quality(f)
	return nil
}

// SensorSample is a parsed sensor message routed to a unit
type SensorSample struct {
	Timestamp  time.Time `json:"timestamp"`
	UnitID     string    `json:"unit_id"`
	SensorType string    `json:"sensor_type"`
	SensorID   string    `json:"sensor_id"`
	Value      float64   `json:"value"`
	Quality    float64   `json:"quality"`
}
