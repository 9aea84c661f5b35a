package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/models"
)

// tokenPublisher is the part of mqtt.Client the publisher needs
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// PlanMessage is published on the plan topic after each optimization
type PlanMessage struct {
	Type                   string                  `json:"type"`
	UnitID                 string                  `json:"unit_id"`
	RunID                  string                  `json:"run_id"`
	Strategy               string                  `json:"optimization_strategy"`
	ImplementationPriority string                  `json:"implementation_priority"`
	Recommendations        []models.Recommendation `json:"recommendations"`
	ExpectedOutcomes       models.ExpectedOutcomes `json:"expected_outcomes"`
	RiskLevel              string                  `json:"risk_level"`
	Timestamp              time.Time               `json:"timestamp"`
}

// Publisher publishes optimization results from a channel
type Publisher struct {
	client tokenPublisher
	logger *zap.Logger

	// Input channel (read by publisher, written by the sensor service)
	ResultChan chan *models.OptimizationResult

	// Topic patterns
	planTopic   string // e.g., "responses/{unit_id}"
	statusTopic string // e.g., "status/{unit_id}"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	PlanTopic   string
	StatusTopic string
}

// NewPublisher creates a new MQTT publisher reading from resultChan
func NewPublisher(
	client tokenPublisher,
	config PublisherConfig,
	resultChan chan *models.OptimizationResult,
	logger *zap.Logger,
) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:      client,
		logger:      logger.With(zap.String("component", "mqtt_publisher")),
		ResultChan:  resultChan,
		planTopic:   config.PlanTopic,
		statusTopic: config.StatusTopic,
	}
}

// Start begins publishing results from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("Starting...")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled, shutting down...")
			return

		case result, ok := <-p.ResultChan:
			if !ok {
				p.logger.Info("Result channel closed, shutting down...")
				return
			}
			if err := p.PublishResult(result); err != nil {
				p.logger.Error("Error publishing optimization result",
					zap.String("unit_id", result.UnitID),
					zap.Error(err))
			}
		}
	}
}

// PublishResult publishes the plan and the unit status of result
func (p *Publisher) PublishResult(result *models.OptimizationResult) error {
	if p.planTopic != "" {
		plan := PlanMessage{
			Type:                   "optimization_plan",
			UnitID:                 result.UnitID,
			RunID:                  result.RunID,
			Strategy:               result.OptimizationStrategy,
			ImplementationPriority: result.OptimizationPlan.ImplementationPriority,
			Recommendations:        result.OptimizationPlan.Recommendations,
			ExpectedOutcomes:       result.OptimizationPlan.ExpectedOutcomes,
			RiskLevel:              result.RiskAssessment.OverallRiskLevel,
			Timestamp:              result.Timestamp,
		}
		if err := p.publish(FormatTopic(p.planTopic, result.UnitID), plan, false); err != nil {
			return err
		}
	}
	if p.statusTopic != "" {
		if err := p.publish(FormatTopic(p.statusTopic, result.UnitID), models.StatusFromResult(result), true); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, 1, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}

	p.logger.Debug("Published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}
