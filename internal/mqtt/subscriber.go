package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/models"
)

// Subscriber handles MQTT subscriptions and writes parsed samples to a channel
type Subscriber struct {
	client mqtt.Client
	logger *zap.Logger
	now    func() time.Time

	// Output channel (written by subscriber, read by the sensor service)
	SampleChan chan *models.SensorSample

	sensorTopic string
	sendTimeout time.Duration
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	SensorTopic string        // e.g., "sensors/+/+/+"
	SendTimeout time.Duration // how long to wait on a full channel before dropping
}

// NewSubscriber creates a new MQTT subscriber writing to sampleChan
func NewSubscriber(
	client mqtt.Client,
	config SubscriberConfig,
	sampleChan chan *models.SensorSample,
	logger *zap.Logger,
) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = time.Second
	}
	return &Subscriber{
		client:      client,
		logger:      logger.With(zap.String("component", "mqtt_subscriber")),
		now:         time.Now,
		SampleChan:  sampleChan,
		sensorTopic: config.SensorTopic,
		sendTimeout: config.SendTimeout,
	}
}

// SubscribeAll subscribes to the configured sensor topic
func (s *Subscriber) SubscribeAll() error {
	if s.sensorTopic == "" {
		return nil
	}
	token := s.client.Subscribe(s.sensorTopic, 1, s.handleSensor)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", token.Error())
	}
	s.logger.Info("Subscribed to sensor topic", zap.String("topic", s.sensorTopic))
	return nil
}

// handleSensor parses a sensor message and writes it to the channel.
// Invalid messages are dropped.
func (s *Subscriber) handleSensor(_ mqtt.Client, msg mqtt.Message) {
	sample, err := ParseSensorMessage(msg.Topic(), msg.Payload(), s.now())
	if err != nil {
		s.logger.Warn("Dropping invalid sensor message",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
		return
	}

	// Write to channel (non-blocking with timeout)
	select {
	case s.SampleChan <- sample:
	case <-time.After(s.sendTimeout):
		s.logger.Warn("Sample channel full, dropping message",
			zap.String("unit_id", sample.UnitID),
			zap.String("sensor_type", sample.SensorType))
	}
}

// Unsubscribe stops delivery from the sensor topic
func (s *Subscriber) Unsubscribe() error {
	if s.sensorTopic == "" {
		return nil
	}
	token := s.client.Unsubscribe(s.sensorTopic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from sensor topic: %w", token.Error())
	}
	s.logger.Info("Unsubscribed from sensor topic", zap.String("topic", s.sensorTopic))
	return nil
}
