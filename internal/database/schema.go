package database

// SQL schemas for all ClickHouse tables

const (
	// SensorReadingsTableSQL holds every accepted sensor message
	SensorReadingsTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_readings (
			timestamp DateTime64(3),
			unit_id String,
			sensor_type LowCardinality(String),
			sensor_id String,
			value Float64,
			quality Float64
		) ENGINE = MergeTree()
		ORDER BY (unit_id, sensor_type, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// UnitRegistryTableSQL tracks units seen on the sensor topic
	UnitRegistryTableSQL = `
		CREATE TABLE IF NOT EXISTS unit_registry (
			unit_id String,
			first_seen DateTime64(3),
			last_seen DateTime64(3)
		) ENGINE = ReplacingMergeTree(last_seen)
		ORDER BY unit_id
	`

	// PredictionHistoryTableSQL holds the predictions behind each optimization run
	PredictionHistoryTableSQL = `
		CREATE TABLE IF NOT EXISTS prediction_history (
			timestamp DateTime64(3),
			run_id String,
			unit_id String,
			predicted_efficiency Float64,
			current_efficiency Float64,
			efficiency_confidence Float64,
			maintenance_score Float64,
			maintenance_risk LowCardinality(String),
			next_maintenance_date DateTime64(3),
			energy_savings_kwh Float64,
			optimal_power_consumption Float64,
			co2_emissions_kg Float64,
			model_version String
		) ENGINE = MergeTree()
		ORDER BY (unit_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// OptimizationRunsTableSQL holds one row per unit optimization
	OptimizationRunsTableSQL = `
		CREATE TABLE IF NOT EXISTS optimization_runs (
			timestamp DateTime64(3),
			run_id String,
			unit_id String,
			strategy LowCardinality(String),
			implementation_priority LowCardinality(String),
			recommendation_ids Array(String),
			total_efficiency_gain Float64,
			total_energy_savings_kwh Float64,
			total_co2_reduction_tons Float64,
			total_implementation_cost Float64,
			estimated_roi Float64,
			risk_level LowCardinality(String),
			risk_score Float64,
			optimization_score Float64,
			confidence_level LowCardinality(String),
			processing_time_ms Float64
		) ENGINE = MergeTree()
		ORDER BY (unit_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		SensorReadingsTableSQL,
		UnitRegistryTableSQL,
		PredictionHistoryTableSQL,
		OptimizationRunsTableSQL,
	}
}
