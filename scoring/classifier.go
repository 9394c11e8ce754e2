package scoring

import (
	"context"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/sklearn/ensemble"
	"github.com/YuminosukeSato/creditrisk/sklearn/linear_model"
)

// Classifier kinds accepted by NewRiskClassifier.
const (
	KindLogReg       = "logreg"
	KindRandomForest = "random_forest"
)

func init() {
	gob.Register(&linear_model.LogisticRegression{})
	gob.Register(&ensemble.RandomForestClassifier{})
}

// RiskClassifier predicts the probability of default with any
// ProbabilisticClassifier trained on 0/1 labels.
type RiskClassifier struct {
	Kind       string
	Classifier model.ProbabilisticClassifier
	State      *model.FitState
	NFeatures  int
}

// ClassifierOptions tunes the classifiers built by NewRiskClassifier.
type ClassifierOptions struct {
	RandomState int64
	Workers     int
}

// NewRiskClassifier builds the classifier named by kind with the credit-risk
// hyperparameters: balanced class weights, 1000 L-BFGS iterations for
// logreg, 400 trees with min_samples_leaf 2 for random_forest.
func NewRiskClassifier(kind string, opts ClassifierOptions) (*RiskClassifier, error) {
	var clf model.ProbabilisticClassifier
	switch kind {
	case KindLogReg, "logistic_regression":
		kind = KindLogReg
		clf = linear_model.NewLogisticRegression(
			linear_model.WithLRMaxIter(1000),
			linear_model.WithLRClassWeight("balanced"),
		)
	case KindRandomForest, "rf":
		kind = KindRandomForest
		clf = ensemble.NewRandomForestClassifier(
			ensemble.WithNEstimators(400),
			ensemble.WithForestMinSamplesLeaf(2),
			ensemble.WithForestClassWeight("balanced"),
			ensemble.WithForestMaxFeatures("sqrt"),
			ensemble.WithForestRandomState(opts.RandomState),
			ensemble.WithForestNJobs(opts.Workers),
		)
	default:
		return nil, errors.NewValidationError("model_type", "must be logreg or random_forest", kind)
	}
	return NewRiskClassifierWith(kind, clf), nil
}

// NewRiskClassifierWith wraps an arbitrary classifier.
func NewRiskClassifierWith(kind string, clf model.ProbabilisticClassifier) *RiskClassifier {
	return &RiskClassifier{Kind: kind, Classifier: clf, State: model.NewFitState()}
}

// Mode implements Model.
func (c *RiskClassifier) Mode() Mode { return ModeSupervised }

// IsFitted implements Model.
func (c *RiskClassifier) IsFitted() bool { return c.State.IsFitted() }

// Fit implements Model.
func (c *RiskClassifier) Fit(X, y mat.Matrix) error {
	return c.FitContext(context.Background(), X, y)
}

type contextFitter interface {
	FitContext(ctx context.Context, X, y mat.Matrix) error
}

// FitContext trains the wrapped classifier, passing ctx to classifiers that
// build concurrently.
func (c *RiskClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	n, d := X.Dims()
	if n < MinTrainingSamples {
		return errors.NewTrainingError("RiskClassifier.Fit", n,
			fmt.Sprintf("need at least %d samples", MinTrainingSamples))
	}
	if y == nil {
		return errors.NewTrainingError("RiskClassifier.Fit", n, "labels are required for supervised training")
	}
	if r, _ := y.Dims(); r != n {
		return errors.NewDimensionError("RiskClassifier.Fit", n, r, 0)
	}

	seen := [2]bool{}
	for i := 0; i < n; i++ {
		switch y.At(i, 0) {
		case 0:
			seen[0] = true
		case 1:
			seen[1] = true
		default:
			return errors.NewTrainingError("RiskClassifier.Fit", n,
				fmt.Sprintf("label %v at row %d is not 0 or 1", y.At(i, 0), i))
		}
	}
	if !seen[0] || !seen[1] {
		return errors.NewTrainingError("RiskClassifier.Fit", n, "labels contain a single class")
	}

	err := errors.SafeExecute("RiskClassifier.Fit", func() error {
		if cf, ok := c.Classifier.(contextFitter); ok {
			return cf.FitContext(ctx, X, y)
		}
		return c.Classifier.Fit(X, y)
	})
	switch {
	case err == nil:
	case errors.IsTrainingError(err), ctx.Err() != nil:
		return err
	default:
		return errors.NewTrainingError("RiskClassifier.Fit", n, err.Error())
	}

	c.NFeatures = d
	if c.State == nil {
		c.State = model.NewFitState()
	}
	c.State.SetDimensions(d, n)
	c.State.SetFitted()

	if lr, ok := c.Classifier.(*linear_model.LogisticRegression); ok {
		log.GetLoggerWithName("scoring").Debug("lbfgs finished",
			log.ModelNameKey, "RiskClassifier",
			log.IterationKey, lr.NIter,
			log.LossKey, lr.Loss,
		)
	}
	return nil
}

func checkWidth(state *model.FitState, name string, want int, X mat.Matrix) error {
	if err := state.RequireFitted(name, "Score"); err != nil {
		return err
	}
	if _, got := X.Dims(); got != want {
		return errors.NewSchemaErrorf(name+".Score", "expected %d encoded features, got %d", want, got)
	}
	return nil
}

// Score returns the probability of default (class 1) per row.
func (c *RiskClassifier) Score(X mat.Matrix) ([]float64, error) {
	if err := checkWidth(c.State, "RiskClassifier", c.NFeatures, X); err != nil {
		return nil, err
	}
	proba, err := c.Classifier.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := proba.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = proba.At(i, 1)
	}
	return out, nil
}

// Decide labels each row as default when its probability is at least
// DecisionThreshold.
func (c *RiskClassifier) Decide(X mat.Matrix) ([]Prediction, error) {
	probs, err := c.Score(X)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(probs))
	defaults := 0
	for i, p := range probs {
		label := 0
		if p >= DecisionThreshold {
			label = 1
			defaults++
		}
		out[i] = Prediction{Mode: ModeSupervised, Probability: p, Score: p, Risk: p, Label: label}
	}
	log.GetLoggerWithName("scoring").Debug("classified applicants",
		log.OperationKey, log.OperationPredict,
		log.ThresholdKey, DecisionThreshold,
		log.PredsKey, len(out),
		"defaults", defaults,
	)
	return out, nil
}

// GetParams returns the wrapped classifier's hyperparameters plus its kind.
func (c *RiskClassifier) GetParams() map[string]interface{} {
	params := map[string]interface{}{}
	if pg, ok := c.Classifier.(model.ParameterGetter); ok {
		for k, v := range pg.GetParams() {
			params[k] = v
		}
	}
	params["kind"] = c.Kind
	return params
}

// Weights exports the coefficients of a logistic model; ok is false for
// other classifiers.
func (c *RiskClassifier) Weights(features []string) (*model.ModelWeights, bool, error) {
	lr, ok := c.Classifier.(*linear_model.LogisticRegression)
	if !ok {
		return nil, false, nil
	}
	w, err := lr.ExportWeights(features)
	return w, true, err
}

// FeatureImportances returns forest importances; ok is false for other classifiers.
func (c *RiskClassifier) FeatureImportances() ([]float64, bool) {
	rf, ok := c.Classifier.(*ensemble.RandomForestClassifier)
	if !ok || !rf.State.IsFitted() {
		return nil, false
	}
	return append([]float64(nil), rf.FeatureImportances...), true
}
