package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/models"
)

// chConn is the subset of driver.Conn used by ClickHouseDB
type chConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
	Ping(ctx context.Context) error
	Close() error
}

// ClickHouseConfig holds ClickHouse connection settings
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseDB stores sensor readings and optimization history
type ClickHouseDB struct {
	conn   chConn
	logger *zap.Logger
}

// NewClickHouseDB creates a new ClickHouse database connection and
// initializes the schema
func NewClickHouseDB(ctx context.Context, config ClickHouseConfig, logger *zap.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.Addr},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	db := newClickHouseDB(conn, logger)
	db.logger.Info("Connected to ClickHouse", zap.String("addr", config.Addr))

	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func newClickHouseDB(conn chConn, logger *zap.Logger) *ClickHouseDB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseDB{conn: conn, logger: logger.With(zap.String("component", "clickhouse"))}
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	db.logger.Info("Database schema initialized")
	return nil
}

// SaveSample saves a raw sensor sample
func (db *ClickHouseDB) SaveSample(ctx context.Context, s *models.SensorSample) error {
	query := `
		INSERT INTO sensor_readings (timestamp, unit_id, sensor_type, sensor_id, value, quality)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if err := db.conn.Exec(ctx, query,
		s.Timestamp, s.UnitID, s.SensorType, s.SensorID, s.Value, s.Quality,
	); err != nil {
		return fmt.Errorf("failed to save sensor sample: %w", err)
	}
	return nil
}

// UpsertUnit records that a unit was seen. ReplacingMergeTree keeps the
// row with the latest last_seen.
func (db *ClickHouseDB) UpsertUnit(ctx context.Context, unitID string, firstSeen, lastSeen time.Time) error {
	query := `
		INSERT INTO unit_registry (unit_id, first_seen, last_seen)
		VALUES (?, ?, ?)
	`
	if err := db.conn.Exec(ctx, query, unitID, firstSeen, lastSeen); err != nil {
		return fmt.Errorf("failed to upsert unit: %w", err)
	}
	return nil
}

// SaveOptimization saves the predictions and the plan summary of a run
func (db *ClickHouseDB) SaveOptimization(ctx context.Context, r *models.OptimizationResult) error {
	if err := db.savePredictions(ctx, r); err != nil {
		return err
	}

	plan := r.OptimizationPlan
	out := plan.ExpectedOutcomes
	ids := make([]string, 0, len(plan.Recommendations))
	for _, rec := range plan.Recommendations {
		ids = append(ids, rec.ID)
	}

	query := `
		INSERT INTO optimization_runs (
			timestamp, run_id, unit_id, strategy, implementation_priority, recommendation_ids,
			total_efficiency_gain, total_energy_savings_kwh, total_co2_reduction_tons,
			total_implementation_cost, estimated_roi, risk_level, risk_score,
			optimization_score, confidence_level, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := db.conn.Exec(ctx, query,
		r.Timestamp, r.RunID, r.UnitID, r.OptimizationStrategy, plan.ImplementationPriority, ids,
		out.TotalEfficiencyGain, out.TotalEnergySavingsKWh, out.TotalCO2ReductionTons,
		out.TotalImplementationCost, float64(out.EstimatedROI),
		r.RiskAssessment.OverallRiskLevel, r.RiskAssessment.RiskScore,
		r.PerformanceMetrics.OptimizationScore, r.PerformanceMetrics.ConfidenceLevel,
		r.PerformanceMetrics.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save optimization run: %w", err)
	}
	return nil
}

func (db *ClickHouseDB) savePredictions(ctx context.Context, r *models.OptimizationResult) error {
	var (
		predicted, current, confidence float64
		score                          float64
		risk, version                  string
		nextMaintenance                time.Time
		savings, optimal, co2          float64
	)
	if e := r.Predictions.Efficiency; e != nil {
		predicted, current, confidence = e.PredictedEfficiency, e.CurrentEfficiency, e.ConfidenceScore
		version = e.ModelVersion
	}
	if m := r.Predictions.Maintenance; m != nil {
		score, risk, nextMaintenance = m.MaintenanceScore, m.RiskLevel, m.NextMaintenanceDate
	}
	if en := r.Predictions.Energy; en != nil {
		savings, optimal, co2 = en.EnergySavingsKWh, en.OptimalPowerConsumption, en.CO2EmissionsKg
	}

	query := `
		INSERT INTO prediction_history (
			timestamp, run_id, unit_id, predicted_efficiency, current_efficiency,
			efficiency_confidence, maintenance_score, maintenance_risk, next_maintenance_date,
			energy_savings_kwh, optimal_power_consumption, co2_emissions_kg, model_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := db.conn.Exec(ctx, query,
		r.Timestamp, r.RunID, r.UnitID, predicted, current,
		confidence, score, risk, nextMaintenance,
		savings, optimal, co2, version,
	); err != nil {
		return fmt.Errorf("failed to save prediction history: %w", err)
	}
	return nil
}

// LastOptimization returns when unitID was last optimized, or the zero
// time if it never was
func (db *ClickHouseDB) LastOptimization(ctx context.Context, unitID string) (time.Time, error) {
	query := `
		SELECT max(timestamp)
		FROM optimization_runs
		WHERE unit_id = ?
	`
	var ts time.Time
	if err := db.conn.QueryRow(ctx, query, unitID).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to get last optimization: %w", err)
	}
	// max() over no rows yields the epoch
	if ts.Unix() <= 0 {
		return time.Time{}, nil
	}
	return ts, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}

