package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/models"
)

const auditTableSQL = `
	CREATE TABLE IF NOT EXISTS optimization_audit (
		run_id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		implementation_priority TEXT NOT NULL,
		optimization_score DOUBLE PRECISION NOT NULL,
		confidence_level TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		recommendations JSONB NOT NULL,
		expected_outcomes JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`

// AuditRecord is one row of the optimization audit trail
type AuditRecord struct {
	RunID                  string          `db:"run_id" json:"run_id"`
	UnitID                 string          `db:"unit_id" json:"unit_id"`
	Strategy               string          `db:"strategy" json:"optimization_strategy"`
	ImplementationPriority string          `db:"implementation_priority" json:"implementation_priority"`
	OptimizationScore      float64         `db:"optimization_score" json:"optimization_score"`
	ConfidenceLevel        string          `db:"confidence_level" json:"confidence_level"`
	RiskLevel              string          `db:"risk_level" json:"risk_level"`
	Recommendations        json.RawMessage `db:"recommendations" json:"recommendations"`
	ExpectedOutcomes       json.RawMessage `db:"expected_outcomes" json:"expected_outcomes"`
	RecordedAt             time.Time       `db:"recorded_at" json:"recorded_at"`
}

// OpenPostgres connects to Postgres with the pq driver
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return db, nil
}

// PostgresPlanRecorder keeps an audit row per optimization run
type PostgresPlanRecorder struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewPostgresPlanRecorder(db *sqlx.DB, logger *zap.Logger) *PostgresPlanRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresPlanRecorder{db: db, logger: logger.With(zap.String("component", "postgres"))}
}

// EnsureSchema creates the audit table if it does not exist
func (r *PostgresPlanRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, auditTableSQL); err != nil {
		return fmt.Errorf("failed to create optimization_audit: %w", err)
	}
	return nil
}

// SaveOptimization inserts the audit row for a run. Re-recording a run id
// is a no-op.
func (r *PostgresPlanRecorder) SaveOptimization(ctx context.Context, result *models.OptimizationResult) error {
	const query = `
		INSERT INTO optimization_audit (
			run_id, unit_id, strategy, implementation_priority,
			optimization_score, confidence_level, risk_level,
			recommendations, expected_outcomes, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (run_id) DO NOTHING`

	plan := result.OptimizationPlan
	recs := plan.Recommendations
	if recs == nil {
		recs = []models.Recommendation{}
	}
	recsJSON, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	outcomesJSON, err := json.Marshal(plan.ExpectedOutcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal expected outcomes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		result.RunID, result.UnitID, result.OptimizationStrategy, plan.ImplementationPriority,
		result.PerformanceMetrics.OptimizationScore, result.PerformanceMetrics.ConfidenceLevel,
		result.RiskAssessment.OverallRiskLevel,
		recsJSON, outcomesJSON, result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record optimization run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest audit rows for a unit, newest first
func (r *PostgresPlanRecorder) RecentRuns(ctx context.Context, unitID string, limit int) ([]AuditRecord, error) {
	const query = `
		SELECT
			run_id, unit_id, strategy, implementation_priority,
			optimization_score, confidence_level, risk_level,
			recommendations, expected_outcomes, recorded_at
		FROM optimization_audit
		WHERE unit_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`

	if limit <= 0 {
		limit = 10
	}
	records := []AuditRecord{}
	if err := r.db.SelectContext(ctx, &records, query, unitID, limit); err != nil {
		return nil, fmt.Errorf("failed to query optimization runs: %w", err)
	}
	return records, nil
}

// Close closes the connection pool
func (r *PostgresPlanRecorder) Close() error {
	return r.db.Close()
}
