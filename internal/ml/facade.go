package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"carbon-capture-ai/internal/apperr"
)

// Artifact is the on-disk form of a trained estimator and its fitted scaler
type Artifact struct {
	Target   string          `json:"target"`
	Task     Task            `json:"task"`
	Family   Family          `json:"family"`
	Version  string          `json:"version,omitempty"`
	Features []string        `json:"features"`
	Scaler   *StandardScaler `json:"scaler,omitempty"`
	Labels   []string        `json:"labels,omitempty"`
	Linear   *LinearParams   `json:"linear,omitempty"`
	Ensemble *EnsembleParams `json:"ensemble,omitempty"`
	MLP      *MLPParams      `json:"mlp,omitempty"`
}

// Facade presents a trained estimator behind a feature-map contract.
// It is read-only after construction and safe for concurrent use.
type Facade struct {
	artifact *Artifact
	est      estimator
}

// Distribution is a probability distribution over an ordered label set
type Distribution struct {
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
}

// Argmax returns the most probable label and its probability.
// Ties resolve to the earliest label.
func (d Distribution) Argmax() (string, float64) {
	best := -1
	for i, p := range d.Probabilities {
		if best < 0 || p > d.Probabilities[best] {
			best = i
		}
	}
	if best < 0 {
		return "", 0
	}
	return d.Labels[best], d.Probabilities[best]
}

// Probability returns the probability of label, or 0 when unknown
func (d Distribution) Probability(label string) float64 {
	for i, l := range d.Labels {
		if l == label {
			return d.Probabilities[i]
		}
	}
	return 0
}

// NewFacade validates an artifact and binds it to its estimator family
func NewFacade(a *Artifact) (*Facade, error) {
	if a == nil {
		return nil, fmt.Errorf("nil artifact")
	}
	if len(a.Features) == 0 {
		return nil, fmt.Errorf("artifact %q lists no features", a.Target)
	}
	if err := a.Scaler.validate(len(a.Features)); err != nil {
		return nil, err
	}

	var est estimator
	switch a.Family {
	case FamilyLinear:
		if a.Linear == nil {
			return nil, fmt.Errorf("linear artifact %q has no parameters", a.Target)
		}
		est = a.Linear
	case FamilyForest, FamilyBoosted:
		if a.Ensemble == nil {
			return nil, fmt.Errorf("ensemble artifact %q has no parameters", a.Target)
		}
		a.Ensemble.boosted = a.Family == FamilyBoosted
		est = a.Ensemble
	case FamilyMLP:
		if a.MLP == nil {
			return nil, fmt.Errorf("mlp artifact %q has no parameters", a.Target)
		}
		est = a.MLP
	default:
		return nil, fmt.Errorf("unknown estimator family %q", a.Family)
	}

	if err := est.validate(len(a.Features)); err != nil {
		return nil, fmt.Errorf("artifact %q: %w", a.Target, err)
	}

	switch a.Task {
	case TaskRegression:
	case TaskClassification:
		if len(a.Labels) < 2 {
			return nil, fmt.Errorf("classifier %q needs at least two labels", a.Target)
		}
	default:
		return nil, fmt.Errorf("unknown task %q", a.Task)
	}

	return &Facade{artifact: a, est: est}, nil
}

// Target returns the prediction target the estimator was trained for
func (f *Facade) Target() string { return f.artifact.Target }

// Family returns the estimator family
func (f *Facade) Family() Family { return f.artifact.Family }

// Task returns the prediction task
func (f *Facade) Task() Task { return f.artifact.Task }

// Version returns the artifact version, if recorded
func (f *Facade) Version() string { return f.artifact.Version }

// vector builds the scaled feature vector. Absent features are 0.
func (f *Facade) vector(features map[string]float64) ([]float64, error) {
	x := make([]float64, len(f.artifact.Features))
	for i, name := range f.artifact.Features {
		v := features[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("feature %s is not finite", name)
		}
		x[i] = v
	}
	if err := f.artifact.Scaler.Transform(x); err != nil {
		return nil, err
	}
	return x, nil
}

// Predict returns the regression output for features
func (f *Facade) Predict(features map[string]float64) (float64, error) {
	op := "predict_" + f.artifact.Target
	if f.artifact.Task != TaskRegression {
		return 0, apperr.Inference(op, fmt.Errorf("estimator is a %s model", f.artifact.Task))
	}
	x, err := f.vector(features)
	if err != nil {
		return 0, apperr.Inference(op, err)
	}
	v, err := f.est.predict(x)
	if err != nil {
		return 0, apperr.Inference(op, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperr.Inference(op, fmt.Errorf("estimator produced a non-finite value"))
	}
	return v, nil
}

// PredictProba returns the class distribution for features
func (f *Facade) PredictProba(features map[string]float64) (Distribution, error) {
	op := "predict_proba_" + f.artifact.Target
	if f.artifact.Task != TaskClassification {
		return Distribution{}, apperr.Inference(op, fmt.Errorf("estimator is a %s model", f.artifact.Task))
	}
	x, err := f.vector(features)
	if err != nil {
		return Distribution{}, apperr.Inference(op, err)
	}
	probs, err := f.est.predictProba(x, len(f.artifact.Labels))
	if err != nil {
		return Distribution{}, apperr.Inference(op, err)
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Distribution{}, apperr.Inference(op,
				fmt.Errorf("estimator produced a non-finite probability for %s", f.artifact.Labels[i]))
		}
	}
	return Distribution{
		Labels:        append([]string(nil), f.artifact.Labels...),
		Probabilities: probs,
	}, nil
}

// Load reads an artifact from path
func Load(path string) (*Facade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model %s: %w", path, err)
	}

	return NewFacade(&a)
}

// Save writes the artifact to path, creating parent directories
func (f *Facade) Save(path string) error {
	data, err := json.MarshalIndent(f.artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return os.Rename(tmp, path)
}
