package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/models"
)

// DefaultPlanTTL is how long the latest plan of a unit stays readable
const DefaultPlanTTL = 24 * time.Hour

const (
	planKeyPrefix = "carbon:plan:"
	planIndexKey  = "carbon:plan_units"
)

// ErrPlanNotFound is returned when no plan is stored for a unit
var ErrPlanNotFound = errors.New("plan not found")

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisPlanStore keeps the latest optimization result per unit
type RedisPlanStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisPlanStore connects to Redis and verifies the connection
func NewRedisPlanStore(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisPlanStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return newRedisPlanStore(client, config.TTL, logger), nil
}

func newRedisPlanStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisPlanStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultPlanTTL
	}
	return &RedisPlanStore{client: client, ttl: ttl, logger: logger.With(zap.String("component", "redis"))}
}

func (s *RedisPlanStore) planKey(unitID string) string {
	return planKeyPrefix + unitID
}

// SaveOptimization stores result as the latest plan of its unit and
// indexes the unit by result time. Index entries older than the TTL are
// pruned in the same transaction.
func (s *RedisPlanStore) SaveOptimization(ctx context.Context, result *models.OptimizationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal optimization result: %w", err)
	}

	ts := result.Timestamp
	cutoff := ts.Add(-s.ttl).UnixMilli()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.planKey(result.UnitID), data, s.ttl)
		pipe.ZAdd(ctx, planIndexKey, redis.Z{Score: float64(ts.UnixMilli()), Member: result.UnitID})
		pipe.ZRemRangeByScore(ctx, planIndexKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store latest plan: %w", err)
	}
	return nil
}

// LatestPlan returns the stored plan of a unit or ErrPlanNotFound
func (s *RedisPlanStore) LatestPlan(ctx context.Context, unitID string) (*models.OptimizationResult, error) {
	data, err := s.client.Get(ctx, s.planKey(unitID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get latest plan: %w", err)
	}

	var result models.OptimizationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest plan: %w", err)
	}
	return &result, nil
}

// Units returns the units with a stored plan, most recently optimized first
func (s *RedisPlanStore) Units(ctx context.Context) ([]string, error) {
	units, err := s.client.ZRevRange(ctx, planIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list planned units: %w", err)
	}
	return units, nil
}

// Close closes the Redis client
func (s *RedisPlanStore) Close() error {
	return s.client.Close()
}
