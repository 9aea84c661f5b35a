package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"carbon-capture-ai/internal/apperr"
)

// Target names a prediction target served by the registry
type Target string

const (
	TargetEfficiency  Target = "efficiency"
	TargetMaintenance Target = "maintenance"
	TargetEnergy      Target = "energy"
)

// Targets lists every target in a stable order
var Targets = []Target{TargetEfficiency, TargetMaintenance, TargetEnergy}

// requiredTargets must be loaded for the registry to report healthy
var requiredTargets = []Target{TargetEfficiency, TargetMaintenance}

const metadataFile = "model_metadata.json"

// Metadata is written next to the artifacts on save
type Metadata struct {
	ModelVersion   string    `json:"model_version"`
	FeatureColumns []string  `json:"feature_columns"`
	Targets        []Target  `json:"targets"`
	SavedAt        time.Time `json:"saved_at"`
}

// Registry holds the loaded estimator for each target. Estimators are
// swapped atomically; in-flight inference keeps the facade it started with.
type Registry struct {
	slots   map[Target]*atomic.Pointer[Facade]
	version atomic.Pointer[string]
	// serializes LoadDir/SaveDir
	ioMu   sync.Mutex
	logger *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(version string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		slots:  make(map[Target]*atomic.Pointer[Facade], len(Targets)),
		logger: logger,
	}
	for _, t := range Targets {
		r.slots[t] = &atomic.Pointer[Facade]{}
	}
	r.version.Store(&version)
	return r
}

// ModelFile returns the artifact file name for target
func ModelFile(t Target) string {
	return string(t) + "_model.json"
}

// Get returns the estimator for target or a model_not_ready error
func (r *Registry) Get(t Target) (*Facade, error) {
	slot, ok := r.slots[t]
	if !ok {
		return nil, apperr.ModelNotReady(string(t))
	}
	f := slot.Load()
	if f == nil {
		return nil, apperr.ModelNotReady(string(t))
	}
	return f, nil
}

// Loaded reports whether target has an estimator
func (r *Registry) Loaded(t Target) bool {
	_, err := r.Get(t)
	return err == nil
}

// Swap installs f for target and returns the previous estimator. A nil f unloads.
func (r *Registry) Swap(t Target, f *Facade) (*Facade, error) {
	slot, ok := r.slots[t]
	if !ok {
		return nil, fmt.Errorf("unknown model target %q", t)
	}
	if f != nil && f.Target() != "" && f.Target() != string(t) {
		return nil, fmt.Errorf("artifact for %q cannot serve %q", f.Target(), t)
	}
	old := slot.Swap(f)
	r.logger.Info("Model swapped", zap.String("target", string(t)), zap.Bool("loaded", f != nil))
	return old, nil
}

// Version returns the model version reported on predictions
func (r *Registry) Version() string {
	return *r.version.Load()
}

// LoadDir loads every artifact present in dir. Missing artifacts leave the
// current estimator in place. Returns the targets that were loaded.
func (r *Registry) LoadDir(dir string) ([]Target, error) {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()

	if data, err := os.ReadFile(filepath.Join(dir, metadataFile)); err == nil {
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse model metadata: %w", err)
		}
		if meta.ModelVersion != "" {
			v := meta.ModelVersion
			r.version.Store(&v)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	// Load all first so a bad artifact does not leave a half-swapped set
	loaded := make(map[Target]*Facade)
	for _, t := range Targets {
		path := filepath.Join(dir, ModelFile(t))
		f, err := Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s model: %w", t, err)
		}
		loaded[t] = f
	}

	var targets []Target
	for _, t := range Targets {
		if f, ok := loaded[t]; ok {
			r.slots[t].Store(f)
			targets = append(targets, t)
		}
	}

	r.logger.Info("Models loaded",
		zap.String("directory", dir),
		zap.Int("count", len(targets)),
		zap.String("version", r.Version()))
	return targets, nil
}

// SaveDir writes every loaded artifact and the metadata file to dir
func (r *Registry) SaveDir(dir string) error {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	var saved []Target
	for _, t := range Targets {
		f := r.slots[t].Load()
		if f == nil {
			continue
		}
		if err := f.Save(filepath.Join(dir, ModelFile(t))); err != nil {
			return fmt.Errorf("failed to save %s model: %w", t, err)
		}
		saved = append(saved, t)
	}

	meta := Metadata{
		ModelVersion:   r.Version(),
		FeatureColumns: AllFeatureColumns(),
		Targets:        saved,
		SavedAt:        time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write model metadata: %w", err)
	}

	r.logger.Info("Models saved", zap.String("directory", dir), zap.Int("count", len(saved)))
	return nil
}

// ModelStatus describes one target in a health report
type ModelStatus struct {
	Status string `json:"status"`
	Family string `json:"type,omitempty"`
	Task   string `json:"task,omitempty"`
	Loaded bool   `json:"loaded"`
}

// Health is the model health report
type Health struct {
	OverallStatus string                 `json:"overall_status"`
	Models        map[Target]ModelStatus `json:"models"`
	ModelVersion  string                 `json:"model_version"`
	LastCheck     time.Time              `json:"last_check"`
}

// Health reports healthy when every required target is loaded, degraded otherwise
func (r *Registry) Health() Health {
	h := Health{
		OverallStatus: "healthy",
		Models:        make(map[Target]ModelStatus, len(Targets)),
		ModelVersion:  r.Version(),
		LastCheck:     time.Now().UTC(),
	}
	for _, t := range Targets {
		f := r.slots[t].Load()
		if f == nil {
			h.Models[t] = ModelStatus{Status: "not_loaded"}
			continue
		}
		h.Models[t] = ModelStatus{
			Status: "healthy",
			Family: string(f.Family()),
			Task:   string(f.Task()),
			Loaded: true,
		}
	}
	for _, t := range requiredTargets {
		if !h.Models[t].Loaded {
			h.OverallStatus = "degraded"
		}
	}
	return h
}
