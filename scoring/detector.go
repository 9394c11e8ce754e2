package scoring

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/preprocessing"
	"github.com/YuminosukeSato/creditrisk/sklearn/ensemble"
)

// DefaultContamination is the expected share of anomalous applicants.
const DefaultContamination = 0.10

// AnomalyDetector flags atypical applicants with an isolation forest.
// Risk is the negated decision function min-max normalized against the
// training distribution, so the most normal training applicant has risk 0
// and the most abnormal one risk 1.
type AnomalyDetector struct {
	Forest    *ensemble.IsolationForest
	Risk      *preprocessing.MinMaxScaler
	State     *model.FitState
	NFeatures int
}

// DetectorOptions tunes NewAnomalyDetector.
type DetectorOptions struct {
	Contamination float64
	RandomState   int64
	Workers       int
}

// NewAnomalyDetector builds a 300-tree isolation forest with
// max_samples = min(256, n).
func NewAnomalyDetector(opts DetectorOptions) (*AnomalyDetector, error) {
	if opts.Contamination <= 0 || opts.Contamination > 0.5 {
		return nil, errors.NewValidationError("contamination", "must be in (0, 0.5]", opts.Contamination)
	}
	return &AnomalyDetector{
		Forest: ensemble.NewIsolationForest(
			ensemble.WithIsolationEstimators(300),
			ensemble.WithContamination(opts.Contamination),
			ensemble.WithIsolationRandomState(opts.RandomState),
			ensemble.WithIsolationNJobs(opts.Workers),
		),
		Risk:  preprocessing.NewMinMaxScaler([2]float64{0, 1}, preprocessing.WithEpsilon(RiskEpsilon), preprocessing.WithClip(true)),
		State: model.NewFitState(),
	}, nil
}

// Mode implements Model.
func (a *AnomalyDetector) Mode() Mode { return ModeUnsupervised }

// IsFitted implements Model.
func (a *AnomalyDetector) IsFitted() bool { return a.State.IsFitted() }

// GetParams returns the isolation forest hyperparameters.
func (a *AnomalyDetector) GetParams() map[string]interface{} {
	return a.Forest.GetParams()
}

// Fit implements Model; y is ignored.
func (a *AnomalyDetector) Fit(X, _ mat.Matrix) error {
	return a.FitContext(context.Background(), X)
}

// FitContext fits the forest and the risk normalization.
func (a *AnomalyDetector) FitContext(ctx context.Context, X mat.Matrix) error {
	n, d := X.Dims()
	if n < MinTrainingSamples {
		return errors.NewTrainingError("AnomalyDetector.Fit", n,
			fmt.Sprintf("need at least %d samples", MinTrainingSamples))
	}
	if err := a.Forest.FitContext(ctx, X); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return errors.NewTrainingError("AnomalyDetector.Fit", n, err.Error())
	}

	decision, err := a.Forest.DecisionFunction(X)
	if err != nil {
		return err
	}
	neg := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		neg.Set(i, 0, -decision.AtVec(i))
	}
	if err := a.Risk.Fit(neg); err != nil {
		return errors.Wrap(err, "fit risk normalization")
	}

	a.NFeatures = d
	if a.State == nil {
		a.State = model.NewFitState()
	}
	a.State.SetDimensions(d, n)
	a.State.SetFitted()
	return nil
}

// Score returns the isolation forest decision function; negative is anomalous.
func (a *AnomalyDetector) Score(X mat.Matrix) ([]float64, error) {
	if err := checkWidth(a.State, "AnomalyDetector", a.NFeatures, X); err != nil {
		return nil, err
	}
	d, err := a.Forest.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, d), nil
}

// Decide labels rows the forest isolates early as anomalous and attaches
// the normalized risk.
func (a *AnomalyDetector) Decide(X mat.Matrix) ([]Prediction, error) {
	scores, err := a.Score(X)
	if err != nil {
		return nil, err
	}
	neg := make([]float64, len(scores))
	for i, s := range scores {
		neg[i] = -s
	}
	risk, err := a.Risk.TransformValues(neg)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(scores))
	for i, s := range scores {
		label := 0
		if s < 0 {
			label = 1
		}
		out[i] = Prediction{Mode: ModeUnsupervised, Score: s, Risk: risk[i], Label: label}
	}
	return out, nil
}
