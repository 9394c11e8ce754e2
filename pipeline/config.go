package pipeline

import (
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

// Config selects and tunes the pipeline. It is passed explicitly to Fit and
// recorded in the artifact.
type Config struct {
	Mode          scoring.Mode `yaml:"mode" json:"mode"`
	ModelType     string       `yaml:"model_type" json:"model_type"`
	UseSMOTE      bool         `yaml:"use_smote" json:"use_smote"`
	Contamination float64      `yaml:"contamination" json:"contamination"`
	RandomState   int64        `yaml:"random_state" json:"random_state"`
	TestSize      float64      `yaml:"test_size" json:"test_size"`
	// Workers bounds concurrent tree building; < 1 means one per CPU.
	Workers int `yaml:"workers" json:"workers"`
}

// DefaultConfig returns the supervised logistic-regression setup with SMOTE.
func DefaultConfig() Config {
	return Config{
		Mode:          scoring.ModeSupervised,
		ModelType:     scoring.KindLogReg,
		UseSMOTE:      true,
		Contamination: scoring.DefaultContamination,
		RandomState:   42,
		TestSize:      0.2,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if _, err := scoring.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Mode == scoring.ModeSupervised && c.ModelType != scoring.KindLogReg && c.ModelType != scoring.KindRandomForest {
		return errors.NewValidationError("model_type", "must be logreg or random_forest", c.ModelType)
	}
	if c.Mode == scoring.ModeUnsupervised && (c.Contamination <= 0 || c.Contamination > 0.5) {
		return errors.NewValidationError("contamination", "must be in (0, 0.5]", c.Contamination)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return errors.NewValidationError("test_size", "must be in (0, 1)", c.TestSize)
	}
	return nil
}
