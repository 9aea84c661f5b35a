package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-capture-ai/internal/models"
)

func sample(unit, sensorType string, value, quality float64) models.SensorSample {
	return models.SensorSample{
		UnitID:     unit,
		SensorType: sensorType,
		SensorID:   sensorType + "-01",
		Value:      value,
		Quality:    quality,
	}
}

func TestUnitBecomesReadyWithRequiredFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewUnitBuffer(time.Minute, WithClock(func() time.Time { return now }))

	for _, s := range []models.SensorSample{
		sample("u1", models.FieldTemperature, 31, 100),
		sample("u1", models.FieldPressure, 48, 80),
		sample("u1", models.FieldFlowRate, 1100, 90),
	} {
		_, ready := b.Update(s)
		assert.False(t, ready)
	}

	reading, ready := b.Update(sample("u1", models.FieldEnergyConsumption, 850, 90))
	require.True(t, ready)
	assert.Equal(t, 31.0, reading[models.FieldTemperature])
	assert.Equal(t, 90.0, reading[models.FieldDataQuality])

	// rate limited until the interval elapses
	_, ready = b.Update(sample("u1", models.FieldTemperature, 32, 90))
	assert.False(t, ready)

	now = now.Add(time.Minute)
	reading, ready = b.Update(sample("u1", models.FieldTemperature, 33, 90))
	require.True(t, ready)
	assert.Equal(t, 33.0, reading[models.FieldTemperature])
}

func TestSnapshotIsIndependent(t *testing.T) {
	b := NewUnitBuffer(0)
	b.Update(sample("u2", models.FieldVibration, 2.5, 100))

	snap, ok := b.Snapshot("u2")
	require.True(t, ok)
	snap[models.FieldVibration] = 9

	again, _ := b.Snapshot("u2")
	assert.Equal(t, 2.5, again[models.FieldVibration])

	_, ok = b.Snapshot("missing")
	assert.False(t, ok)
}

func TestUnitsSorted(t *testing.T) {
	b := NewUnitBuffer(0)
	b.Update(sample("u3", models.FieldPressure, 1, 100))
	b.Update(sample("u1", models.FieldPressure, 1, 100))

	assert.Equal(t, []string{"u1", "u3"}, b.Units())
}

func TestMarkOptimizedDelaysRelease(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewUnitBuffer(time.Minute, WithClock(func() time.Time { return now }))

	b.MarkOptimized("u1", now.Add(-30*time.Second))
	b.MarkOptimized("u1", now.Add(-2*time.Hour))

	for _, field := range models.RequiredFields {
		_, ready := b.Update(sample("u1", field, 1, 100))
		assert.False(t, ready, field)
	}

	now = now.Add(31 * time.Second)
	_, ready := b.Update(sample("u1", models.FieldTemperature, 2, 100))
	assert.True(t, ready)
}

func TestNilLoggerKeepsNoopDefault(t *testing.T) {
	b := NewUnitBuffer(time.Minute, WithLogger(nil))

	assert.NotPanics(t, func() {
		b.Update(sample("u1", models.FieldTemperature, 31, 100))
	})
}
