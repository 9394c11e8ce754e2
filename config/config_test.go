package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creditrisk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, scoring.ModeSupervised, cfg.Pipeline.Mode)
	assert.Equal(t, scoring.KindLogReg, cfg.Pipeline.ModelType)
	assert.True(t, cfg.Pipeline.UseSMOTE)
	assert.InDelta(t, 0.2, cfg.Pipeline.TestSize, 1e-12)
	assert.InDelta(t, 0.10, cfg.Pipeline.Contamination, 1e-12)
	assert.Equal(t, int64(42), cfg.Pipeline.RandomState)
	assert.Equal(t, "Unnamed: 0", cfg.Data.IDColumn)
	assert.Equal(t, filepath.Join("models", "metrics.json"), cfg.MetricsPath())
	assert.Equal(t, "sqlite", cfg.Registry.Driver)
}

func TestLoadYAMLKeepsUnsetDefaults(t *testing.T) {
	path := writeFile(t, `
pipeline:
  mode: unsupervised
  contamination: 0.05
data:
  target: ""
  models_dir: out
server:
  addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, scoring.ModeUnsupervised, cfg.Pipeline.Mode)
	assert.InDelta(t, 0.05, cfg.Pipeline.Contamination, 1e-12)
	assert.InDelta(t, 0.2, cfg.Pipeline.TestSize, 1e-12)
	assert.Equal(t, "", cfg.Data.Target)
	assert.False(t, cfg.Schema().HasTarget())
	assert.Equal(t, filepath.Join("out", "credit_model.bin"), cfg.ModelPath())
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "pipeline:\n  model_type: logreg\n")
	t.Setenv("CREDITRISK_MODEL_TYPE", "random_forest")
	t.Setenv("CREDITRISK_USE_SMOTE", "false")
	t.Setenv("CREDITRISK_RANDOM_STATE", "7")
	t.Setenv("CREDITRISK_WORKERS", "3")
	t.Setenv("CREDITRISK_DB_DSN", "file:runs.db")
	t.Setenv("CREDITRISK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, scoring.KindRandomForest, cfg.Pipeline.ModelType)
	assert.False(t, cfg.Pipeline.UseSMOTE)
	assert.Equal(t, int64(7), cfg.Pipeline.RandomState)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, "file:runs.db", cfg.Registry.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad bool", env: map[string]string{"CREDITRISK_USE_SMOTE": "maybe"}},
		{name: "bad float", env: map[string]string{"CREDITRISK_TEST_SIZE": "a fifth"}},
		{name: "bad int", env: map[string]string{"CREDITRISK_RANDOM_STATE": "4.2"}},
		{name: "bad mode", env: map[string]string{"CREDITRISK_MODE": "semi"}},
		{name: "bad model", env: map[string]string{"CREDITRISK_MODEL_TYPE": "svm"}},
		{name: "bad driver", env: map[string]string{"CREDITRISK_DB_DRIVER": "mysql"}},
		{name: "bad level", env: map[string]string{"CREDITRISK_LOG_LEVEL": "loud"}},
		{name: "bad yaml", file: "pipeline: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
