package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"carbon-capture-ai/internal/recommend"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker       string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTTopicSensors string
	MQTTTopicPlan    string
	MQTTTopicStatus  string
	MQTTTopicAvail   string

	// ClickHouse Configuration (empty address disables)
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// Postgres audit trail (empty DSN disables)
	PostgresDSN string

	// Redis latest-plan store (empty address disables)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PlanTTL       time.Duration

	// HTTP
	HTTPAddr string

	// ML Model Configuration
	ModelDir           string
	ModelVersion       string
	CreateSampleModels bool

	// Prediction service
	InferenceWorkers int
	CacheEnabled     bool
	CacheTTL         time.Duration
	CacheHighWater   int
	BatchConcurrency int
	InferenceTimeout time.Duration

	// Optimization service
	MaxConcurrentOptimizations int
	DefaultStrategy            string
	TimeHorizonHours           int
	StrategyFile               string
	// Strategies are the built-in templates merged with StrategyFile
	Strategies recommend.Strategies

	// Ingestion
	OptimizeInterval time.Duration

	// Logging
	LogLevel       string
	LogDevelopment bool
}

var defaults = map[string]any{
	"MQTT_BROKER":             "tcp://localhost:1883",
	"MQTT_CLIENT_ID":          "carbon-capture-ai",
	"MQTT_USERNAME":           "",
	"MQTT_PASSWORD":           "",
	"MQTT_TOPIC_SENSORS":      "sensors/+/+/+",
	"MQTT_TOPIC_PLAN":         "responses/{unit_id}",
	"MQTT_TOPIC_STATUS":       "status/{unit_id}",
	"MQTT_TOPIC_AVAILABILITY": "carbon-capture-ai/availability",

	"CLICKHOUSE_ADDR": "",
	"CLICKHOUSE_DB":   "carbon",
	"CLICKHOUSE_USER": "default",
	"CLICKHOUSE_PASS": "",

	"POSTGRES_DSN": "",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"PLAN_TTL":       "24h",

	"HTTP_ADDR": ":8080",

	"MODEL_DIR":            "./models",
	"MODEL_VERSION":        "1.0.0",
	"CREATE_SAMPLE_MODELS": true,

	"INFERENCE_WORKERS": 4,
	"CACHE_ENABLED":     true,
	"CACHE_TTL":         "300s",
	"CACHE_HIGH_WATER":  100,
	"BATCH_CONCURRENCY": 5,
	"INFERENCE_TIMEOUT": "30s",

	"MAX_CONCURRENT_OPTIMIZATIONS": 5,
	"DEFAULT_STRATEGY":             "balanced",
	"TIME_HORIZON_HOURS":           24,
	"STRATEGY_FILE":                "",

	"OPTIMIZE_INTERVAL": "60s",

	"LOG_LEVEL":       "info",
	"LOG_DEVELOPMENT": false,
}

// Load reads configuration from an optional .env file, the environment
// and an optional YAML file named by CONFIG_FILE. Environment wins.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := fromViper(v)
	cfg.Strategies = recommend.DefaultStrategies()
	if cfg.StrategyFile != "" {
		strategies, err := recommend.LoadStrategies(cfg.StrategyFile)
		if err != nil {
			return nil, err
		}
		cfg.Strategies = strategies
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		MQTTBroker:       v.GetString("MQTT_BROKER"),
		MQTTClientID:     v.GetString("MQTT_CLIENT_ID"),
		MQTTUsername:     v.GetString("MQTT_USERNAME"),
		MQTTPassword:     v.GetString("MQTT_PASSWORD"),
		MQTTTopicSensors: v.GetString("MQTT_TOPIC_SENSORS"),
		MQTTTopicPlan:    v.GetString("MQTT_TOPIC_PLAN"),
		MQTTTopicStatus:  v.GetString("MQTT_TOPIC_STATUS"),
		MQTTTopicAvail:   v.GetString("MQTT_TOPIC_AVAILABILITY"),

		ClickHouseAddr: v.GetString("CLICKHOUSE_ADDR"),
		ClickHouseDB:   v.GetString("CLICKHOUSE_DB"),
		ClickHouseUser: v.GetString("CLICKHOUSE_USER"),
		ClickHousePass: v.GetString("CLICKHOUSE_PASS"),

		PostgresDSN: v.GetString("POSTGRES_DSN"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		PlanTTL:       v.GetDuration("PLAN_TTL"),

		HTTPAddr: v.GetString("HTTP_ADDR"),

		ModelDir:           v.GetString("MODEL_DIR"),
		ModelVersion:       v.GetString("MODEL_VERSION"),
		CreateSampleModels: v.GetBool("CREATE_SAMPLE_MODELS"),

		InferenceWorkers: v.GetInt("INFERENCE_WORKERS"),
		CacheEnabled:     v.GetBool("CACHE_ENABLED"),
		CacheTTL:         v.GetDuration("CACHE_TTL"),
		CacheHighWater:   v.GetInt("CACHE_HIGH_WATER"),
		BatchConcurrency: v.GetInt("BATCH_CONCURRENCY"),
		InferenceTimeout: v.GetDuration("INFERENCE_TIMEOUT"),

		MaxConcurrentOptimizations: v.GetInt("MAX_CONCURRENT_OPTIMIZATIONS"),
		DefaultStrategy:            v.GetString("DEFAULT_STRATEGY"),
		TimeHorizonHours:           v.GetInt("TIME_HORIZON_HOURS"),
		StrategyFile:               v.GetString("STRATEGY_FILE"),

		OptimizeInterval: v.GetDuration("OPTIMIZE_INTERVAL"),

		LogLevel:       v.GetString("LOG_LEVEL"),
		LogDevelopment: v.GetBool("LOG_DEVELOPMENT"),
	}
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.InferenceWorkers < 1 {
		return fmt.Errorf("INFERENCE_WORKERS must be at least 1, got %d", c.InferenceWorkers)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency)
	}
	if c.MaxConcurrentOptimizations < 1 {
		return fmt.Errorf("MAX_CONCURRENT_OPTIMIZATIONS must be at least 1, got %d", c.MaxConcurrentOptimizations)
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive when the cache is enabled")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive")
	}
	if c.TimeHorizonHours < 1 {
		return fmt.Errorf("TIME_HORIZON_HOURS must be at least 1, got %d", c.TimeHorizonHours)
	}
	strategies := c.Strategies
	if strategies == nil {
		strategies = recommend.DefaultStrategies()
	}
	if _, ok := strategies.Get(c.DefaultStrategy); !ok {
		return fmt.Errorf("DEFAULT_STRATEGY %q is not one of %v", c.DefaultStrategy, strategies.Names())
	}
	return nil
}
