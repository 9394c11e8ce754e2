package pipeline

import (
	"time"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

// TopFeatureCount is the number of features Metadata ranks.
const TopFeatureCount = 10

// Metadata describes an artifact without its fitted state.
type Metadata struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Mode          string    `json:"mode"`
	Model         string    `json:"model"`
	UseSMOTE      bool      `json:"use_smote"`
	NTrainSamples int       `json:"n_train_samples"`
	NFeatures     int       `json:"n_features"`
	Numeric       []string  `json:"numeric_columns"`
	Categorical   []string  `json:"categorical_columns"`
	Target        string    `json:"target,omitempty"`
	FeatureNames  []string  `json:"feature_names"`
	// TopFeatures ranks encoded features by |coefficient| for logreg and by
	// impurity importance for random_forest. Empty for isolation_forest.
	TopFeatures []model.FeatureWeight `json:"top_features,omitempty"`
}

// Metadata summarizes a.
func (a *Artifact) Metadata() Metadata {
	names := a.Preprocessor.FeatureNames()
	md := Metadata{
		ID:            a.ID,
		CreatedAt:     a.CreatedAt,
		Mode:          string(a.Config.Mode),
		Model:         a.ModelName(),
		UseSMOTE:      a.Config.Mode == scoring.ModeSupervised && a.Config.UseSMOTE,
		NTrainSamples: a.NTrainSamples,
		NFeatures:     len(names),
		Numeric:       a.Schema.NumericColumns(),
		Categorical:   a.Schema.CategoricalColumns(),
		Target:        a.Schema.TargetColumn(),
		FeatureNames:  names,
	}
	if clf, ok := a.Model.(*scoring.RiskClassifier); ok {
		md.TopFeatures = topFeatures(clf, names)
	}
	return md
}

func topFeatures(clf *scoring.RiskClassifier, names []string) []model.FeatureWeight {
	if w, ok, err := clf.Weights(names); ok && err == nil {
		return w.Top(TopFeatureCount)
	}
	if imp, ok := clf.FeatureImportances(); ok {
		mw := &model.ModelWeights{ModelType: clf.Kind, Coefficients: imp, Features: names}
		return mw.Top(TopFeatureCount)
	}
	return nil
}
