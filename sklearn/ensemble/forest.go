package ensemble

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/core/parallel"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/sklearn/tree"
)

var (
	_ model.ProbabilisticClassifier = (*RandomForestClassifier)(nil)
	_ model.ParameterGetter         = (*RandomForestClassifier)(nil)
)

// RandomForestClassifier is a bagged ensemble of CART trees.
type RandomForestClassifier struct {
	State *model.FitState

	// Hyperparameters
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	ClassWeight     string
	RandomState     int64
	NJobs           int

	// Fitted state
	Estimators         []*tree.DecisionTreeClassifier
	Classes            []float64
	NClasses           int
	NFeatures          int
	FeatureImportances []float64
}

// ForestOption configures a RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.NEstimators = n }
}

// WithForestMaxDepth sets the maximum depth of each tree.
func WithForestMaxDepth(d int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.MaxDepth = d }
}

// WithForestMinSamplesLeaf sets min_samples_leaf for each tree.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.MinSamplesLeaf = n }
}

// WithForestMaxFeatures sets max_features ("sqrt", "log2" or "all").
func WithForestMaxFeatures(mode string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.MaxFeatures = mode }
}

// WithForestClassWeight sets class weighting ("" or "balanced").
func WithForestClassWeight(mode string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.ClassWeight = mode }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) ForestOption {
	return func(rf *RandomForestClassifier) { rf.Bootstrap = b }
}

// WithForestRandomState sets the base seed.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) { rf.RandomState = seed }
}

// WithForestNJobs sets the number of concurrent tree builders; < 1 means NumCPU.
func WithForestNJobs(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.NJobs = n }
}

// NewRandomForestClassifier creates a forest with scikit-learn defaults.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		State:           model.NewFitState(),
		NEstimators:     100,
		Criterion:       "gini",
		MaxDepth:        -1,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "sqrt",
		Bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit builds the forest from X (n, features) and y (n, 1).
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext builds the forest, stopping early if ctx is cancelled.
func (rf *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}
	if rf.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.NEstimators)
	}

	classes, yIdx := classIndex(y)
	if len(classes) < 2 {
		return errors.NewTrainingError("RandomForestClassifier.Fit", nSamples,
			fmt.Sprintf("needs samples of at least 2 classes, got only %v", classes))
	}

	base := make([]float64, nSamples)
	for i := range base {
		base[i] = 1
	}
	if rf.ClassWeight == "balanced" {
		cw := tree.BalancedClassWeights(yIdx, len(classes))
		for i, c := range yIdx {
			base[i] = cw[c]
		}
	}

	Xd := mat.DenseCopyOf(X)
	yd := mat.DenseCopyOf(y)
	estimators := make([]*tree.DecisionTreeClassifier, rf.NEstimators)

	logger := log.GetLoggerWithName("ensemble")
	logger.Debug("building random forest",
		log.ModelNameKey, "RandomForestClassifier",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		"n_estimators", rf.NEstimators,
		log.WorkersKey, parallel.Workers(rf.NJobs),
	)

	err := parallel.ForEach(ctx, rf.NEstimators, rf.NJobs, func(_ context.Context, idx int) error {
		rng := rand.New(rand.NewSource(rf.RandomState + int64(idx)))

		weights := make([]float64, nSamples)
		if rf.Bootstrap {
			for j := 0; j < nSamples; j++ {
				weights[rng.Intn(nSamples)]++
			}
		} else {
			for j := range weights {
				weights[j] = 1
			}
		}
		for j := range weights {
			weights[j] *= base[j]
		}

		t := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.Criterion),
			tree.WithMaxDepth(rf.MaxDepth),
			tree.WithMinSamplesSplit(rf.MinSamplesSplit),
			tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
			tree.WithMaxFeatures(rf.MaxFeatures),
			tree.WithRandomState(rng.Int63()),
		)
		if err := t.FitWeighted(Xd, yd, weights); err != nil {
			return errors.Wrapf(err, "tree %d", idx)
		}
		estimators[idx] = t
		return nil
	})
	if err != nil {
		return err
	}

	importances := make([]float64, nFeatures)
	for _, t := range estimators {
		for j, v := range t.FeatureImportances {
			importances[j] += v
		}
	}
	total := 0.0
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for j := range importances {
			importances[j] /= total
		}
	}

	rf.Estimators = estimators
	rf.Classes = classes
	rf.NClasses = len(classes)
	rf.NFeatures = nFeatures
	rf.FeatureImportances = importances
	if rf.State == nil {
		rf.State = model.NewFitState()
	}
	rf.State.SetDimensions(nFeatures, nSamples)
	rf.State.SetFitted()
	return nil
}

func classIndex(y mat.Matrix) ([]float64, []int) {
	n, _ := y.Dims()
	seen := make(map[float64]int)
	for i := 0; i < n; i++ {
		seen[y.At(i, 0)] = 0
	}
	classes := make([]float64, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Float64s(classes)
	for i, c := range classes {
		seen[c] = i
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = seen[y.At(i, 0)]
	}
	return classes, idx
}

// PredictProba averages the class distributions of all trees, shape (n, n_classes).
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.State.Check("RandomForestClassifier", "PredictProba", X); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, rf.NClasses, nil)
	for _, t := range rf.Estimators {
		t.AccumulateProba(X, out)
	}
	out.Scale(1/float64(len(rf.Estimators)), out)
	return out, nil
}

// Predict returns the most probable class per row, shape (n, 1).
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		best := 0
		for k := 1; k < rf.NClasses; k++ {
			if proba.At(i, k) > proba.At(i, best) {
				best = k
			}
		}
		out.Set(i, 0, rf.Classes[best])
	}
	return out, nil
}

// Score returns the mean accuracy on X and y.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	n, _ := X.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"criterion":         rf.Criterion,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"bootstrap":         rf.Bootstrap,
		"class_weight":      rf.ClassWeight,
		"random_state":      rf.RandomState,
	}
}
