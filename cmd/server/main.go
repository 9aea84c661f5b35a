package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/api"
	"carbon-capture-ai/internal/database"
	"carbon-capture-ai/internal/metrics"
	"carbon-capture-ai/internal/ml"
	"carbon-capture-ai/internal/mqtt"
	"carbon-capture-ai/internal/services"
	"carbon-capture-ai/pkg/config"
	"carbon-capture-ai/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}

	// run has closed its stores by the time it returns; exit only after the flush
	err = run(cfg, log)
	if err != nil {
		log.Error("Service failed", zap.Error(err))
	} else {
		log.Info("Shutdown complete. Goodbye!")
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting carbon capture optimization service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// === Models ===
	registry, err := loadModels(cfg, log)
	if err != nil {
		return err
	}

	// === Prediction and optimization services ===
	predictions := services.NewPredictionService(
		ml.NewPredictor(registry, log),
		services.PredictionServiceConfig{
			Workers:          cfg.InferenceWorkers,
			CacheEnabled:     cfg.CacheEnabled,
			CacheTTL:         cfg.CacheTTL,
			CacheHighWater:   cfg.CacheHighWater,
			BatchConcurrency: cfg.BatchConcurrency,
			InferenceTimeout: cfg.InferenceTimeout,
			ModelDir:         cfg.ModelDir,
		},
		log,
		services.WithMetrics(m),
	)

	if cfg.StrategyFile != "" {
		log.Info("Loaded strategy templates",
			zap.String("file", cfg.StrategyFile),
			zap.Strings("strategies", cfg.Strategies.Names()))
	}
	optimizer := services.NewOptimizationService(predictions, cfg.Strategies,
		services.OptimizationServiceConfig{
			MaxConcurrent:    cfg.MaxConcurrentOptimizations,
			DefaultStrategy:  cfg.DefaultStrategy,
			TimeHorizonHours: cfg.TimeHorizonHours,
		}, m, log)

	// === Stores (each optional) ===
	var (
		recorder services.ReadingRecorder
		sinks    []services.ResultSink
		plans    api.PlanStore
		runs     api.RunHistory
	)

	if cfg.ClickHouseAddr != "" {
		ch, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, log)
		if err != nil {
			return err
		}
		defer ch.Close()
		recorder = ch
		sinks = append(sinks, ch)
	}

	if cfg.PostgresDSN != "" {
		db, err := database.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		pg := database.NewPostgresPlanRecorder(db, log)
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
		runs = pg
	}

	if cfg.RedisAddr != "" {
		rs, err := database.NewRedisPlanStore(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.PlanTTL,
		}, log)
		if err != nil {
			return err
		}
		defer rs.Close()
		sinks = append(sinks, rs)
		plans = rs
	}

	// === MQTT ingestion ===
	sensorConfig := services.DefaultSensorServiceConfig()
	sensorConfig.OptimizeInterval = cfg.OptimizeInterval
	sensorService := services.NewSensorService(optimizer, recorder, sinks, sensorConfig, m, log)

	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	var ingest sync.WaitGroup
	var subscriber *mqtt.Subscriber

	if cfg.MQTTBroker != "" {
		clientConfig := mqtt.DefaultClientConfig()
		clientConfig.Broker = cfg.MQTTBroker
		clientConfig.ClientID = cfg.MQTTClientID
		clientConfig.Username = cfg.MQTTUsername
		clientConfig.Password = cfg.MQTTPassword
		clientConfig.AvailabilityTopic = cfg.MQTTTopicAvail
		mqttClient, err := mqtt.NewClient(clientConfig, log)
		if err != nil {
			return err
		}
		defer mqttClient.Close()

		publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
			PlanTopic:   cfg.MQTTTopicPlan,
			StatusTopic: cfg.MQTTTopicStatus,
		}, sensorService.ResultChan, log)

		ingest.Add(2)
		go func() {
			defer ingest.Done()
			sensorService.Start(ingestCtx)
		}()
		// Runs until the sensor service closes ResultChan
		go func() {
			defer ingest.Done()
			publisher.Start(context.Background())
		}()

		subscriber = mqtt.NewSubscriber(mqttClient.GetNativeClient(), mqtt.SubscriberConfig{
			SensorTopic: cfg.MQTTTopicSensors,
		}, sensorService.SampleChan, log)
		if err := subscriber.SubscribeAll(); err != nil {
			stopIngest()
			ingest.Wait()
			return err
		}
		mqttClient.OnReconnect(subscriber.SubscribeAll)
	} else {
		log.Warn("MQTT_BROKER not set, sensor ingestion disabled")
	}

	// === HTTP ===
	handler := api.NewHandler(predictions, optimizer, plans, runs, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	log.Info("Service is running",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("sensor_topic", cfg.MQTTTopicSensors),
		zap.String("model_version", registry.Version()),
		zap.Int("sinks", len(sinks)))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping services...")
	case runErr = <-serveErr:
		log.Error("HTTP server failed", zap.Error(runErr))
	}

	// === Ordered shutdown ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 1. stop accepting requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	// 2. stop ingestion, let running optimizations publish and persist
	if subscriber != nil {
		if err := subscriber.Unsubscribe(); err != nil {
			log.Warn("Unsubscribe failed", zap.Error(err))
		}
	}
	stopIngest()
	ingest.Wait()
	// 3. drain services, stop the worker pool
	if err := optimizer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Service shutdown incomplete", zap.Error(err))
	}
	// 4. deferred: MQTT disconnect and store connections close
	return runErr
}

// loadModels loads the model directory, creating sample models first when
// nothing is there and that is enabled
func loadModels(cfg *config.Config, log *zap.Logger) (*ml.Registry, error) {
	registry := ml.NewRegistry(cfg.ModelVersion, log)
	loaded, err := registry.LoadDir(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 && cfg.CreateSampleModels {
		log.Info("No models found, creating sample models", zap.String("directory", cfg.ModelDir))
		if err := ml.CreateSampleModels(cfg.ModelDir, cfg.ModelVersion, log); err != nil {
			return nil, err
		}
		if _, err := registry.LoadDir(cfg.ModelDir); err != nil {
			return nil, err
		}
	}
	if h := registry.Health(); h.OverallStatus != "healthy" {
		log.Warn("Models not fully loaded, predictions will fail until loaded",
			zap.String("status", h.OverallStatus))
	}
	return registry, nil
}
