package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"carbon-capture-ai/internal/models"
)

// defaultQuality is assumed for messages that report no quality
const defaultQuality = 100.0

// timestamp layouts accepted from field gateways, zone optional
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// SensorTopic is a parsed sensors/{unit_id}/{sensor_type}/{sensor_id} topic
type SensorTopic struct {
	UnitID     string
	SensorType string
	SensorID   string
}

// ParseSensorTopic splits a sensor topic into its levels
// Example: "sensors/unit-01/temperature/t-7" -> {unit-01 temperature t-7}
func ParseSensorTopic(topic string) (SensorTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "sensors" {
		return SensorTopic{}, fmt.Errorf("unexpected sensor topic %q", topic)
	}
	for _, p := range parts[1:] {
		if p == "" {
			return SensorTopic{}, fmt.Errorf("empty level in sensor topic %q", topic)
		}
	}
	return SensorTopic{UnitID: parts[1], SensorType: parts[2], SensorID: parts[3]}, nil
}

// ParseSensorMessage decodes a sensor payload received on topic. sensor_id,
// value and timestamp are required; an unparseable timestamp falls back to now.
func ParseSensorMessage(topic string, payload []byte, now time.Time) (*models.SensorSample, error) {
	st, err := ParseSensorTopic(topic)
	if err != nil {
		return nil, err
	}

	var msg models.SensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sensor message: %w", err)
	}
	if msg.SensorID == "" {
		return nil, fmt.Errorf("sensor message on %s has no sensor_id", topic)
	}
	if msg.Value == nil {
		return nil, fmt.Errorf("sensor message on %s has no value", topic)
	}
	if math.IsNaN(*msg.Value) || math.IsInf(*msg.Value, 0) {
		return nil, fmt.Errorf("sensor message on %s has a non-finite value", topic)
	}
	if msg.Timestamp == "" {
		return nil, fmt.Errorf("sensor message on %s has no timestamp", topic)
	}

	quality := defaultQuality
	if msg.Quality != nil {
		quality = float64(*msg.Quality)
	}

	return &models.SensorSample{
		Timestamp:  parseTimestamp(msg.Timestamp, now),
		UnitID:     st.UnitID,
		SensorType: st.SensorType,
		SensorID:   msg.SensorID,
		Value:      *msg.Value,
		Quality:    quality,
	}, nil
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

// FormatTopic replaces the {unit_id} placeholder with unitID
func FormatTopic(pattern, unitID string) string {
	return strings.ReplaceAll(pattern, "{unit_id}", unitID)
}
