package ml

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Labels of the sample maintenance classifier
const (
	LabelHealthy             = "healthy"
	LabelMaintenanceRequired = "maintenance_required"
)

var sampleScaler = map[string][2]float64{
	"temperature":                {25, 5},
	"pressure":                   {50, 8},
	"flow_rate":                  {1000, 200},
	"humidity":                   {60, 15},
	"air_quality":                {50, 20},
	"energy_consumption":         {800, 150},
	"co2_concentration":          {400, 30},
	"unit_age_days":              {700, 400},
	"maintenance_days_since":     {90, 60},
	"efficiency_current":         {80, 8},
	FeatureEnergyEfficiencyRatio: {2, 0.5},
	FeatureTempHumidityIndex:     {15, 5},
	FeatureFlowPressureRatio:     {20, 5},
	FeatureMaintenanceUrgency:    {10, 10},
}

func sampleWeights(weights map[string]float64) ([]float64, *StandardScaler) {
	features := AllFeatureColumns()
	row := make([]float64, len(features))
	scaler := &StandardScaler{Mean: make([]float64, len(features)), Scale: make([]float64, len(features))}
	for i, name := range features {
		row[i] = weights[name]
		stats := sampleScaler[name]
		scaler.Mean[i] = stats[0]
		scaler.Scale[i] = stats[1]
	}
	return row, scaler
}

// SampleEfficiencyArtifact is a linear efficiency model for first start
func SampleEfficiencyArtifact(version string) *Artifact {
	row, scaler := sampleWeights(map[string]float64{
		"temperature":            -1.5,
		"pressure":               -0.8,
		"flow_rate":              -0.5,
		"humidity":               -0.3,
		"efficiency_current":     2.0,
		"maintenance_days_since": -0.7,
		"unit_age_days":          -0.4,
	})
	return &Artifact{
		Target:   string(TargetEfficiency),
		Task:     TaskRegression,
		Family:   FamilyLinear,
		Version:  version,
		Features: AllFeatureColumns(),
		Scaler:   scaler,
		Linear:   &LinearParams{Weights: [][]float64{row}, Intercepts: []float64{85}},
	}
}

// SampleMaintenanceArtifact is a logistic maintenance classifier for first start
func SampleMaintenanceArtifact(version string) *Artifact {
	row, scaler := sampleWeights(map[string]float64{
		"unit_age_days":           0.6,
		"maintenance_days_since":  1.2,
		FeatureMaintenanceUrgency: 0.4,
		"temperature":             0.3,
	})
	return &Artifact{
		Target:   string(TargetMaintenance),
		Task:     TaskClassification,
		Family:   FamilyLinear,
		Version:  version,
		Features: AllFeatureColumns(),
		Scaler:   scaler,
		Labels:   []string{LabelHealthy, LabelMaintenanceRequired},
		Linear:   &LinearParams{Weights: [][]float64{row}, Intercepts: []float64{-1}},
	}
}

// CreateSampleModels writes sample artifacts into dir when none exist
func CreateSampleModels(dir, version string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, a := range []*Artifact{SampleEfficiencyArtifact(version), SampleMaintenanceArtifact(version)} {
		path := filepath.Join(dir, ModelFile(Target(a.Target)))
		if _, err := os.Stat(path); err == nil {
			continue
		}
		f, err := NewFacade(a)
		if err != nil {
			return err
		}
		if err := f.Save(path); err != nil {
			return err
		}
		logger.Info("Created sample model", zap.String("path", path))
	}
	return nil
}
