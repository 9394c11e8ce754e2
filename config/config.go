// Package config loads the application configuration from a YAML file and
// CREDITRISK_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

// EnvPrefix は環境変数の接頭辞
const EnvPrefix = "CREDITRISK_"

// Config is the complete application configuration.
type Config struct {
	Pipeline pipeline.Config `yaml:"pipeline"`
	Data     DataConfig      `yaml:"data"`
	Registry RegistryConfig  `yaml:"registry"`
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
}

// DataConfig holds file system locations and column roles.
type DataConfig struct {
	RawData      string `yaml:"raw_data"`
	ProcessedDir string `yaml:"processed_dir"`
	ModelsDir    string `yaml:"models_dir"`
	// IDColumn is dropped on load when present.
	IDColumn string `yaml:"id_column"`
	// Target is the label column; empty means the data has no labels.
	Target string `yaml:"target"`
}

// RegistryConfig selects the run registry database. An empty DSN disables it.
type RegistryConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Pipeline: pipeline.DefaultConfig(),
		Data: DataConfig{
			RawData:      filepath.Join("data", "raw", "german_credit.csv"),
			ProcessedDir: filepath.Join("data", "processed"),
			ModelsDir:    "models",
			IDColumn:     "Unnamed: 0",
			Target:       dataset.SyntheticTarget,
		},
		Registry: RegistryConfig{Driver: "sqlite"},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info"},
	}
}

// ModelPath is where the fitted artifact is stored.
func (c *Config) ModelPath() string { return filepath.Join(c.Data.ModelsDir, "credit_model.bin") }

// MetricsPath is where the evaluation report is written.
func (c *Config) MetricsPath() string { return filepath.Join(c.Data.ModelsDir, "metrics.json") }

// Schema returns the German credit schema with the configured target.
func (c *Config) Schema() *dataset.Schema { return dataset.GermanCreditSchema(c.Data.Target) }

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then a .env file in the working directory (if any),
// then CREDITRISK_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
		log.GetLoggerWithName("config").Debug("loaded config file", log.ConfigFileKey, path)
	}

	// .env が無いのは正常
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the pipeline settings and the registry driver.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	switch c.Registry.Driver {
	case "sqlite", "postgres":
	default:
		return errors.NewValidationError("registry.driver", "must be sqlite or postgres", c.Registry.Driver)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", err.Error(), c.Log.Level)
	}
	return nil
}

func (c *Config) applyEnv() error {
	p := &c.Pipeline
	if v, ok := lookup("MODE"); ok {
		p.Mode = scoring.Mode(strings.ToLower(v))
	}
	if v, ok := lookup("MODEL_TYPE"); ok {
		p.ModelType = v
	}
	if err := envBool("USE_SMOTE", &p.UseSMOTE); err != nil {
		return err
	}
	if err := envFloat("CONTAMINATION", &p.Contamination); err != nil {
		return err
	}
	if err := envFloat("TEST_SIZE", &p.TestSize); err != nil {
		return err
	}
	if v, ok := lookup("RANDOM_STATE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"RANDOM_STATE", "must be an integer", v)
		}
		p.RandomState = n
	}
	if v, ok := lookup("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"WORKERS", "must be an integer", v)
		}
		p.Workers = n
	}

	envString("RAW_DATA", &c.Data.RawData)
	envString("PROCESSED_DIR", &c.Data.ProcessedDir)
	envString("MODELS_DIR", &c.Data.ModelsDir)
	envString("ID_COLUMN", &c.Data.IDColumn)
	envString("TARGET", &c.Data.Target)
	envString("DB_DRIVER", &c.Registry.Driver)
	envString("DB_DSN", &c.Registry.DSN)
	envString("ADDR", &c.Server.Addr)
	envString("LOG_LEVEL", &c.Log.Level)
	return nil
}

// lookup reads CREDITRISK_<key>. A variable set to the empty string counts as
// set so that, for example, CREDITRISK_TARGET= clears the target.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	return strings.TrimSpace(v), ok
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envBool(key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.NewValidationError(EnvPrefix+key, "must be a boolean", v)
	}
	*dst = b
	return nil
}

func envFloat(key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.NewValidationError(EnvPrefix+key, "must be a number", v)
	}
	*dst = f
	return nil
}
