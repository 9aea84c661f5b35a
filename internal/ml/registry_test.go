package ml

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/apperr"
)

func TestRegistryNotReady(t *testing.T) {
	r := NewRegistry("1.0.0", zap.NewNop())

	_, err := r.Get(TargetEfficiency)
	assert.ErrorIs(t, err, apperr.ErrModelNotReady)

	h := r.Health()
	assert.Equal(t, "degraded", h.OverallStatus)
	assert.Equal(t, "not_loaded", h.Models[TargetMaintenance].Status)
}

func TestRegistrySwapRejectsWrongTarget(t *testing.T) {
	r := NewRegistry("1.0.0", nil)
	f, err := NewFacade(constantArtifact(TargetEfficiency, 80))
	require.NoError(t, err)

	_, err = r.Swap(TargetMaintenance, f)
	assert.Error(t, err)

	old, err := r.Swap(TargetEfficiency, f)
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.True(t, r.Loaded(TargetEfficiency))
}

func TestRegistrySwapWhileReading(t *testing.T) {
	r := NewRegistry("1.0.0", nil)
	a, err := NewFacade(constantArtifact(TargetEfficiency, 70))
	require.NoError(t, err)
	b, err := NewFacade(constantArtifact(TargetEfficiency, 90))
	require.NoError(t, err)
	_, err = r.Swap(TargetEfficiency, a)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				f, err := r.Get(TargetEfficiency)
				if !assert.NoError(t, err) {
					return
				}
				v, err := f.Predict(nil)
				assert.NoError(t, err)
				assert.True(t, v == 70 || v == 90)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		next := a
		if j%2 == 0 {
			next = b
		}
		_, err := r.Swap(TargetEfficiency, next)
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestRegistrySaveAndLoadDir(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry("2.1.0", nil)
	eff, err := NewFacade(SampleEfficiencyArtifact("2.1.0"))
	require.NoError(t, err)
	maint, err := NewFacade(SampleMaintenanceArtifact("2.1.0"))
	require.NoError(t, err)
	_, err = r.Swap(TargetEfficiency, eff)
	require.NoError(t, err)
	_, err = r.Swap(TargetMaintenance, maint)
	require.NoError(t, err)

	require.NoError(t, r.SaveDir(dir))
	assert.FileExists(t, filepath.Join(dir, "efficiency_model.json"))
	assert.FileExists(t, filepath.Join(dir, "maintenance_model.json"))
	assert.FileExists(t, filepath.Join(dir, metadataFile))
	assert.NoFileExists(t, filepath.Join(dir, "energy_model.json"))

	other := NewRegistry("0.0.1", nil)
	loaded, err := other.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []Target{TargetEfficiency, TargetMaintenance}, loaded)
	assert.Equal(t, "2.1.0", other.Version())
	assert.Equal(t, "healthy", other.Health().OverallStatus)
}

func TestRegistryLoadDirKeepsCurrentOnBadArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "efficiency_model.json"), []byte(`{"family":"quantum"}`), 0o644))

	r := NewRegistry("1.0.0", nil)
	f, err := NewFacade(constantArtifact(TargetEfficiency, 75))
	require.NoError(t, err)
	_, err = r.Swap(TargetEfficiency, f)
	require.NoError(t, err)

	_, err = r.LoadDir(dir)
	require.Error(t, err)

	got, err := r.Get(TargetEfficiency)
	require.NoError(t, err)
	assert.Same(t, f, got)
}

func TestCreateSampleModels(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, CreateSampleModels(dir, "1.0.0", nil))

	r := NewRegistry("1.0.0", nil)
	loaded, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}
