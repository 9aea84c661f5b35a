package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Availability payloads published retained on the availability topic
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// AvailabilityTopic carries the retained online/offline state of the
	// optimizer. The broker publishes offline as our will if we drop off.
	AvailabilityTopic string
	KeepAlive         time.Duration
	ConnectTimeout    time.Duration
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ClientID:          "carbon-capture-ai",
		AvailabilityTopic: "carbon-capture-ai/availability",
		KeepAlive:         60 * time.Second,
		ConnectTimeout:    30 * time.Second,
	}
}

// Client owns the broker connection of the optimizer. Sensor subscriptions
// are registered with OnReconnect so they survive a broker restart.
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger *zap.Logger

	mu          sync.Mutex
	connects    int
	resubscribe []func() error
}

// NewClient connects to the broker and announces the optimizer online
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		config: config,
		logger: logger.With(zap.String("component", "mqtt"), zap.String("broker", config.Broker)),
	}
	c.client = mqtt.NewClient(c.options())

	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s after %s", config.Broker, c.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return c, nil
}

func (c *Client) options() *mqtt.ClientOptions {
	def := DefaultClientConfig()
	if c.config.KeepAlive <= 0 {
		c.config.KeepAlive = def.KeepAlive
	}
	if c.config.ConnectTimeout <= 0 {
		c.config.ConnectTimeout = def.ConnectTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetKeepAlive(c.config.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	// sensor handlers only queue samples
	opts.SetOrderMatters(false)
	if c.config.AvailabilityTopic != "" {
		opts.SetWill(c.config.AvailabilityTopic, AvailabilityOffline, 1, true)
	}
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Debug("Message on unsubscribed topic", zap.String("topic", msg.Topic()))
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) { c.handleConnect(client) })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("Broker connection lost, sensor ingestion paused", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Info("Reconnecting to broker")
	})
	return opts
}

// handleConnect publishes availability and, on a reconnect, restores the
// registered subscriptions
func (c *Client) handleConnect(client tokenPublisher) {
	c.mu.Lock()
	c.connects++
	reconnect := c.connects > 1
	resubscribe := append([]func() error(nil), c.resubscribe...)
	c.mu.Unlock()

	if c.config.AvailabilityTopic != "" {
		token := client.Publish(c.config.AvailabilityTopic, 1, true, []byte(AvailabilityOnline))
		if token.Wait() && token.Error() != nil {
			c.logger.Warn("Failed to publish availability", zap.Error(token.Error()))
		}
	}

	if !reconnect {
		c.logger.Info("Connected to broker")
		return
	}
	c.logger.Info("Reconnected to broker, restoring subscriptions", zap.Int("subscriptions", len(resubscribe)))
	for _, fn := range resubscribe {
		if err := fn(); err != nil {
			c.logger.Error("Failed to restore subscription", zap.Error(err))
		}
	}
}

// OnReconnect registers fn to run after every reconnection
func (c *Client) OnReconnect(fn func() error) {
	c.mu.Lock()
	c.resubscribe = append(c.resubscribe, fn)
	c.mu.Unlock()
}

// GetNativeClient returns the underlying paho client for Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// Close announces the optimizer offline and disconnects
func (c *Client) Close() {
	if c.config.AvailabilityTopic != "" && c.client.IsConnected() {
		token := c.client.Publish(c.config.AvailabilityTopic, 1, true, []byte(AvailabilityOffline))
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from broker")
}
