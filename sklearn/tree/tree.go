// Package tree implements CART decision trees compatible with scikit-learn's
// DecisionTreeClassifier. Trees are stored as flat node arrays so that fitted
// models, and forests built from them, encode directly with gob.
package tree

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

var (
	_ model.ProbabilisticClassifier = (*DecisionTreeClassifier)(nil)
	_ model.ParameterSetter         = (*DecisionTreeClassifier)(nil)
)

// Node is one node of a fitted tree. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value is the weighted class distribution at the node, normalized to sum to 1.
	Value    []float64
	Impurity float64
	NSamples int
	Depth    int
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return n.Feature < 0 }

// DecisionTreeClassifier is a CART classifier.
type DecisionTreeClassifier struct {
	State *model.FitState

	// Hyperparameters
	Criterion       string // "gini" or "entropy"
	MaxDepth        int    // <= 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string // "", "all", "sqrt" or "log2"
	ClassWeight     string // "" or "balanced"
	RandomState     int64

	// Fitted state
	Nodes              []Node
	Classes            []float64
	NClasses           int
	NFeatures          int
	FeatureImportances []float64
}

// Option is a functional option for DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity criterion.
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.Criterion = criterion }
}

// WithMaxDepth sets the maximum depth; values <= 0 mean unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.MinSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are examined per split.
func WithMaxFeatures(mode string) Option {
	return func(dt *DecisionTreeClassifier) { dt.MaxFeatures = mode }
}

// WithClassWeight sets class weighting ("" or "balanced").
func WithClassWeight(mode string) Option {
	return func(dt *DecisionTreeClassifier) { dt.ClassWeight = mode }
}

// WithRandomState sets the seed used for feature sampling.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.RandomState = seed }
}

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		State:           model.NewFitState(),
		Criterion:       "gini",
		MaxDepth:        -1,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "all",
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Fit builds the tree from X (n, features) and y (n, 1).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted builds the tree with per-sample weights. Rows with zero weight
// are ignored, which is how bootstrap resampling is expressed.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", fmt.Sprintf("y must be a column vector, got %d columns", yCols))
	}
	if sampleWeight != nil && len(sampleWeight) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(sampleWeight), 0)
	}
	if dt.Criterion != "gini" && dt.Criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.Criterion)
	}

	classes, yIdx := encodeClasses(y)
	weights := make([]float64, nSamples)
	for i := range weights {
		weights[i] = 1
		if sampleWeight != nil {
			weights[i] = sampleWeight[i]
		}
	}
	if dt.ClassWeight == "balanced" {
		cw := BalancedClassWeights(yIdx, len(classes))
		for i := range weights {
			weights[i] *= cw[yIdx[i]]
		}
	}

	b := &builder{
		dt:       dt,
		X:        X,
		y:        yIdx,
		w:        weights,
		nClasses: len(classes),
		rng:      rand.New(rand.NewSource(dt.RandomState)),
		imp:      make([]float64, nFeatures),
		nFeat:    nFeatures,
	}

	samples := make([]int, 0, nSamples)
	for i, w := range weights {
		if w > 0 {
			samples = append(samples, i)
		}
	}
	if len(samples) == 0 {
		return errors.NewTrainingError("DecisionTreeClassifier.Fit", nSamples, "all sample weights are zero")
	}

	dt.Nodes = dt.Nodes[:0]
	dt.Classes = classes
	dt.NClasses = len(classes)
	dt.NFeatures = nFeatures
	b.build(samples, 0)

	total := 0.0
	for _, v := range b.imp {
		total += v
	}
	dt.FeatureImportances = make([]float64, nFeatures)
	if total > 0 {
		for j, v := range b.imp {
			dt.FeatureImportances[j] = v / total
		}
	}

	if dt.State == nil {
		dt.State = model.NewFitState()
	}
	dt.State.SetDimensions(nFeatures, nSamples)
	dt.State.SetFitted()
	return nil
}

// BalancedClassWeights returns n_samples / (n_classes * count(c)) for each
// class index, matching scikit-learn's class_weight="balanced".
func BalancedClassWeights(yIdx []int, nClasses int) []float64 {
	counts := make([]float64, nClasses)
	for _, c := range yIdx {
		counts[c]++
	}
	out := make([]float64, nClasses)
	for c, n := range counts {
		if n > 0 {
			out[c] = float64(len(yIdx)) / (float64(nClasses) * n)
		}
	}
	return out
}

func encodeClasses(y mat.Matrix) ([]float64, []int) {
	n, _ := y.Dims()
	seen := make(map[float64]struct{})
	for i := 0; i < n; i++ {
		seen[y.At(i, 0)] = struct{}{}
	}
	classes := make([]float64, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	yIdx := make([]int, n)
	for i := 0; i < n; i++ {
		yIdx[i] = index[y.At(i, 0)]
	}
	return classes, yIdx
}

type builder struct {
	dt       *DecisionTreeClassifier
	X        mat.Matrix
	y        []int
	w        []float64
	nClasses int
	nFeat    int
	rng      *rand.Rand
	imp      []float64
}

type valueIndex struct {
	v float64
	i int
}

func (b *builder) counts(samples []int) ([]float64, float64) {
	c := make([]float64, b.nClasses)
	total := 0.0
	for _, i := range samples {
		c[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return c, total
}

func (b *builder) impurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	switch b.dt.Criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / total
				h -= p * math.Log2(p)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			p := c / total
			g -= p * p
		}
		return g
	}
}

func (b *builder) nCandidates() int {
	switch b.dt.MaxFeatures {
	case "sqrt":
		return max(1, int(math.Sqrt(float64(b.nFeat))))
	case "log2":
		return max(1, int(math.Log2(float64(b.nFeat))))
	default:
		return b.nFeat
	}
}

// build appends the subtree for samples and returns its node index.
func (b *builder) build(samples []int, depth int) int {
	counts, total := b.counts(samples)
	imp := b.impurity(counts, total)

	value := make([]float64, b.nClasses)
	for c := range counts {
		value[c] = counts[c] / total
	}

	idx := len(b.dt.Nodes)
	b.dt.Nodes = append(b.dt.Nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    value,
		Impurity: imp,
		NSamples: len(samples),
		Depth:    depth,
	})

	minLeaf := max(1, b.dt.MinSamplesLeaf)
	if imp <= 1e-12 ||
		len(samples) < b.dt.MinSamplesSplit ||
		len(samples) < 2*minLeaf ||
		(b.dt.MaxDepth > 0 && depth >= b.dt.MaxDepth) {
		return idx
	}

	feature, threshold, gain, ok := b.bestSplit(samples, imp, total, minLeaf)
	if !ok {
		return idx
	}

	var left, right []int
	for _, i := range samples {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.imp[feature] += gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	n := &b.dt.Nodes[idx]
	n.Feature = feature
	n.Threshold = threshold
	n.Left = l
	n.Right = r
	return idx
}

// bestSplit scans candidate features and returns the split with the largest
// weighted impurity decrease. Ties keep the earlier candidate.
func (b *builder) bestSplit(samples []int, nodeImp, nodeW float64, minLeaf int) (int, float64, float64, bool) {
	features := b.rng.Perm(b.nFeat)
	if b.dt.MaxFeatures == "" || b.dt.MaxFeatures == "all" {
		for j := range features {
			features[j] = j
		}
	}
	k := b.nCandidates()

	bestGain := math.Inf(-1)
	bestFeature, bestThreshold := -1, 0.0

	pairs := make([]valueIndex, len(samples))
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)
	rightInit, _ := b.counts(samples)

	visited := 0
	for _, f := range features {
		if visited >= k && bestFeature >= 0 {
			break
		}
		visited++

		for p, i := range samples {
			pairs[p] = valueIndex{v: b.X.At(i, f), i: i}
		}
		sort.SliceStable(pairs, func(a, c int) bool { return pairs[a].v < pairs[c].v })
		if pairs[0].v == pairs[len(pairs)-1].v {
			continue
		}

		for c := range left {
			left[c] = 0
		}
		copy(right, rightInit)
		wl, wr := 0.0, nodeW

		for pos := 0; pos < len(pairs)-1; pos++ {
			i := pairs[pos].i
			left[b.y[i]] += b.w[i]
			right[b.y[i]] -= b.w[i]
			wl += b.w[i]
			wr -= b.w[i]

			nl := pos + 1
			if nl < minLeaf || len(pairs)-nl < minLeaf {
				continue
			}
			v, next := pairs[pos].v, pairs[pos+1].v
			if v == next {
				continue
			}

			gain := nodeW*nodeImp - wl*b.impurity(left, wl) - wr*b.impurity(right, wr)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = v + (next-v)/2
				if bestThreshold == next {
					bestThreshold = v
				}
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, math.Max(bestGain, 0), true
}

func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *Node {
	n := &dt.Nodes[0]
	for !n.IsLeaf() {
		if X.At(i, n.Feature) <= n.Threshold {
			n = &dt.Nodes[n.Left]
		} else {
			n = &dt.Nodes[n.Right]
		}
	}
	return n
}

func (dt *DecisionTreeClassifier) checkPredict(X mat.Matrix, method string) error {
	return dt.State.Check("DecisionTreeClassifier", method, X)
}

// PredictProba returns an (n, NClasses) matrix of leaf class distributions.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, dt.NClasses, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, dt.leaf(X, i).Value)
	}
	return out, nil
}

// AccumulateProba adds the leaf distribution of every row of X into dst,
// which must be (n, NClasses). Forests use it to average trees without
// allocating per-tree matrices.
func (dt *DecisionTreeClassifier) AccumulateProba(X mat.Matrix, dst *mat.Dense) {
	r, _ := X.Dims()
	for i := 0; i < r; i++ {
		v := dt.leaf(X, i).Value
		for c, p := range v {
			dst.Set(i, c, dst.At(i, c)+p)
		}
	}
}

// Predict returns the most probable class label per row as an (n, 1) matrix.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "Predict"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		v := dt.leaf(X, i).Value
		best := 0
		for c := 1; c < len(v); c++ {
			if v[c] > v[best] {
				best = c
			}
		}
		out.Set(i, 0, dt.Classes[best])
	}
	return out, nil
}

// Score returns the mean accuracy on X and y.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := X.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// GetFeatureImportances returns normalized impurity-decrease importances.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.FeatureImportances...)
}

// GetDepth returns the depth of the deepest leaf (root has depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	d := 0
	for i := range dt.Nodes {
		d = max(d, dt.Nodes[i].Depth)
	}
	return d
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for i := range dt.Nodes {
		if dt.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.Criterion,
		"max_depth":         dt.MaxDepth,
		"min_samples_split": dt.MinSamplesSplit,
		"min_samples_leaf":  dt.MinSamplesLeaf,
		"max_features":      dt.MaxFeatures,
		"class_weight":      dt.ClassWeight,
		"random_state":      dt.RandomState,
	}
}

// SetParams sets hyperparameters by name.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			dt.Criterion, ok = value.(string)
		case "max_depth":
			dt.MaxDepth, ok = value.(int)
		case "min_samples_split":
			dt.MinSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			dt.MinSamplesLeaf, ok = value.(int)
		case "max_features":
			dt.MaxFeatures, ok = value.(string)
		case "class_weight":
			dt.ClassWeight, ok = value.(string)
		case "random_state":
			dt.RandomState, ok = value.(int64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}
