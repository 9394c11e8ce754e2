package ensemble

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/core/parallel"
	"github.com/YuminosukeSato/creditrisk/metrics"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

var _ model.OutlierDetector = (*IsolationForest)(nil)

// eulerGamma is the Euler–Mascheroni constant used by c(n).
const eulerGamma = 0.5772156649

// IsolationForest isolates observations with random axis-aligned splits.
// Anomalies need fewer splits to isolate, so their average path length is
// short. Scores follow scikit-learn: ScoreSamples is the opposite of the
// anomaly score of the original paper (lower is more abnormal), and
// DecisionFunction subtracts Offset so that negative values are outliers.
type IsolationForest struct {
	State *model.FitState

	// Hyperparameters
	NEstimators   int
	MaxSamples    int     // <= 0 means min(256, n_samples)
	Contamination float64 // <= 0 means "auto" (offset -0.5)
	RandomState   int64
	NJobs         int

	// Fitted state
	Trees      []IsolationTree
	SampleSize int
	Offset     float64
	NFeatures  int
}

// IsolationTree is one fitted isolation tree in flat form.
type IsolationTree struct {
	Nodes []IsolationNode
}

// IsolationNode is a split (Feature >= 0) or a leaf holding Size samples.
type IsolationNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Size      int
}

// IsolationOption configures an IsolationForest.
type IsolationOption func(*IsolationForest)

// WithIsolationEstimators sets the number of isolation trees.
func WithIsolationEstimators(n int) IsolationOption {
	return func(f *IsolationForest) { f.NEstimators = n }
}

// WithMaxSamples sets the subsample size drawn for each tree.
func WithMaxSamples(n int) IsolationOption {
	return func(f *IsolationForest) { f.MaxSamples = n }
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) IsolationOption {
	return func(f *IsolationForest) { f.Contamination = c }
}

// WithIsolationRandomState sets the base seed.
func WithIsolationRandomState(seed int64) IsolationOption {
	return func(f *IsolationForest) { f.RandomState = seed }
}

// WithIsolationNJobs sets the number of concurrent tree builders.
func WithIsolationNJobs(n int) IsolationOption {
	return func(f *IsolationForest) { f.NJobs = n }
}

// NewIsolationForest creates an IsolationForest with scikit-learn defaults.
func NewIsolationForest(opts ...IsolationOption) *IsolationForest {
	f := &IsolationForest{
		State:       model.NewFitState(),
		NEstimators: 100,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit builds the forest on X and sets Offset from the training scores.
func (f *IsolationForest) Fit(X mat.Matrix) error {
	return f.FitContext(context.Background(), X)
}

// FitContext is Fit with cancellation.
func (f *IsolationForest) FitContext(ctx context.Context, X mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("IsolationForest.Fit", "empty data", errors.ErrEmptyData)
	}
	if f.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", f.NEstimators)
	}
	if f.Contamination > 0.5 {
		return errors.NewValidationError("contamination", "must be in (0, 0.5]", f.Contamination)
	}

	sampleSize := f.MaxSamples
	if sampleSize <= 0 {
		sampleSize = 256
	}
	sampleSize = min(sampleSize, nSamples)
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))

	rows := make([][]float64, nSamples)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}

	log.GetLoggerWithName("ensemble").Debug("building isolation forest",
		log.ModelNameKey, "IsolationForest",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		"max_samples", sampleSize,
		"n_estimators", f.NEstimators,
	)

	trees := make([]IsolationTree, f.NEstimators)
	err := parallel.ForEach(ctx, f.NEstimators, f.NJobs, func(_ context.Context, idx int) error {
		rng := rand.New(rand.NewSource(f.RandomState + int64(idx)))
		sample := rng.Perm(nSamples)[:sampleSize]
		b := &isolationBuilder{rows: rows, rng: rng, maxDepth: maxDepth, nFeatures: nFeatures}
		b.build(sample, 0)
		trees[idx] = IsolationTree{Nodes: b.nodes}
		return nil
	})
	if err != nil {
		return err
	}

	f.Trees = trees
	f.SampleSize = sampleSize
	f.NFeatures = nFeatures
	f.Offset = -0.5
	if f.State == nil {
		f.State = model.NewFitState()
	}
	f.State.SetDimensions(nFeatures, nSamples)
	f.State.SetFitted()

	if f.Contamination > 0 {
		offset, err := metrics.Percentile(f.scoreRows(rows), 100*f.Contamination)
		if err != nil {
			return err
		}
		f.Offset = offset
	}
	return nil
}

type isolationBuilder struct {
	rows      [][]float64
	rng       *rand.Rand
	maxDepth  int
	nFeatures int
	nodes     []IsolationNode
}

func (b *isolationBuilder) build(samples []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, IsolationNode{Feature: -1, Left: -1, Right: -1, Size: len(samples)})
	if depth >= b.maxDepth || len(samples) <= 1 {
		return idx
	}

	// 定数でない特徴量が見つかるまでランダムに選ぶ
	var feature int
	var lo, hi float64
	found := false
	for _, f := range b.rng.Perm(b.nFeatures) {
		lo, hi = b.rows[samples[0]][f], b.rows[samples[0]][f]
		for _, s := range samples[1:] {
			v := b.rows[s][f]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi > lo {
			feature, found = f, true
			break
		}
	}
	if !found {
		return idx
	}

	threshold := lo + b.rng.Float64()*(hi-lo)
	var left, right []int
	for _, s := range samples {
		if b.rows[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// pathLength returns the depth at which row is isolated, corrected by c(size)
// for leaves that still hold several training samples.
func (t *IsolationTree) pathLength(row []float64) float64 {
	depth := 0
	n := &t.Nodes[0]
	for n.Feature >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.Size)
}

// averagePathLength is c(n), the average path length of an unsuccessful
// search in a binary search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func (f *IsolationForest) scoreRows(rows [][]float64) []float64 {
	norm := averagePathLength(f.SampleSize)
	out := make([]float64, len(rows))
	parallel.ParallelizeWithThreshold(len(rows), 64, func(start, end int) {
		for i := start; i < end; i++ {
			total := 0.0
			for t := range f.Trees {
				total += f.Trees[t].pathLength(rows[i])
			}
			mean := total / float64(len(f.Trees))
			if norm == 0 {
				out[i] = -1
				continue
			}
			out[i] = -math.Pow(2, -mean/norm)
		}
	})
	return out
}

func (f *IsolationForest) rows(X mat.Matrix, method string) ([][]float64, error) {
	if err := f.State.Check("IsolationForest", method, X); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	return rows, nil
}

// ScoreSamples returns the negated anomaly score of each row, in [-1, 0).
func (f *IsolationForest) ScoreSamples(X mat.Matrix) (*mat.VecDense, error) {
	rows, err := f.rows(X, "ScoreSamples")
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(len(rows), f.scoreRows(rows)), nil
}

// DecisionFunction returns ScoreSamples - Offset; negative values are anomalies.
func (f *IsolationForest) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	s, err := f.ScoreSamples(X)
	if err != nil {
		return nil, err
	}
	for i := 0; i < s.Len(); i++ {
		s.SetVec(i, s.AtVec(i)-f.Offset)
	}
	return s, nil
}

// Predict returns 1 for inliers and -1 for outliers, shape (n, 1).
func (f *IsolationForest) Predict(X mat.Matrix) (mat.Matrix, error) {
	d, err := f.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(d.Len(), 1, nil)
	for i := 0; i < d.Len(); i++ {
		if d.AtVec(i) < 0 {
			out.Set(i, 0, -1)
		} else {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// GetParams returns the hyperparameters.
func (f *IsolationForest) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":  f.NEstimators,
		"max_samples":   f.MaxSamples,
		"contamination": f.Contamination,
		"random_state":  f.RandomState,
	}
}
