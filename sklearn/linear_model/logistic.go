// Package linear_model provides linear classifiers compatible with
// scikit-learn's linear_model package.
package linear_model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

var (
	_ model.ProbabilisticClassifier = (*LogisticRegression)(nil)
	_ model.ParameterSetter         = (*LogisticRegression)(nil)
)

// LogisticRegression implements L2-regularised logistic regression.
// Compatible with scikit-learn's LogisticRegression(solver="lbfgs"):
// binary problems fit one coefficient row, multiclass problems fit a
// multinomial (softmax) model.
type LogisticRegression struct {
	State *model.FitState

	// Hyperparameters
	Penalty      string  // "l2" or "none"
	C            float64 // Inverse regularization strength
	FitIntercept bool
	ClassWeight  string // "" or "balanced"
	MaxIter      int
	Tol          float64

	// Fitted parameters
	Coef      [][]float64 // 1 x n_features for binary, n_classes x n_features otherwise
	Intercept []float64
	Classes   []float64
	NClasses  int
	NFeatures int
	NIter     int
	Loss      float64 // 収束時の目的関数値 (正則化項込み)
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		State:        model.NewFitState(),
		Penalty:      "l2",
		C:            1.0,
		FitIntercept: true,
		MaxIter:      100,
		Tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.Penalty = penalty }
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.FitIntercept = fit }
}

// WithLRMaxIter sets the maximum number of L-BFGS iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.MaxIter = maxIter }
}

// WithLRTol sets the gradient tolerance for stopping
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.Tol = tol }
}

// WithLRClassWeight sets class weighting ("" or "balanced")
func WithLRClassWeight(mode string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.ClassWeight = mode }
}

// problem holds the training data in row-major form for the objective.
type problem struct {
	rows      [][]float64
	y         []int
	w         []float64
	sumW      float64
	lambda    float64
	nFeatures int
	nClasses  int // 1 for the binary objective
	intercept bool
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticRegression.Fit", fmt.Sprintf("y must be a column vector, got %d columns", yCols))
	}
	if lr.Penalty != "l2" && lr.Penalty != "none" {
		return errors.NewValidationError("penalty", "lbfgs supports only l2 or none", lr.Penalty)
	}
	if lr.Penalty == "l2" && lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}

	classes, yIdx := extractClasses(y)
	if len(classes) < 2 {
		return errors.NewTrainingError("LogisticRegression.Fit", nSamples,
			fmt.Sprintf("needs samples of at least 2 classes, got only %v", classes))
	}

	weights := make([]float64, nSamples)
	for i := range weights {
		weights[i] = 1
	}
	if lr.ClassWeight == "balanced" {
		counts := make([]float64, len(classes))
		for _, c := range yIdx {
			counts[c]++
		}
		for i, c := range yIdx {
			weights[i] = float64(nSamples) / (float64(len(classes)) * counts[c])
		}
	}

	p := &problem{
		rows:      make([][]float64, nSamples),
		y:         yIdx,
		w:         weights,
		sumW:      floats.Sum(weights),
		nFeatures: nFeatures,
		nClasses:  1,
		intercept: lr.FitIntercept,
	}
	if len(classes) > 2 {
		p.nClasses = len(classes)
	}
	if lr.Penalty == "l2" {
		p.lambda = 1 / (lr.C * p.sumW)
	}
	for i := 0; i < nSamples; i++ {
		p.rows[i] = mat.Row(nil, i, X)
	}

	width := nFeatures + 1
	x0 := make([]float64, p.nClasses*width)
	result, err := optimize.Minimize(optimize.Problem{
		Func: p.loss,
		Grad: p.grad,
	}, x0, &optimize.Settings{
		MajorIterations:   lr.MaxIter,
		GradientThreshold: lr.Tol,
	}, &optimize.LBFGS{})
	if result == nil {
		return errors.NewTrainingError("LogisticRegression.Fit", nSamples, fmt.Sprintf("optimizer failed: %v", err))
	}
	if err != nil || result.Status == optimize.IterationLimit {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", result.Stats.MajorIterations,
			"lbfgs failed to converge; increase max_iter or scale the data"))
	}
	if cerr := errors.CheckNumericalStability("LogisticRegression.Fit", result.X, result.Stats.MajorIterations); cerr != nil {
		return cerr
	}

	lr.Classes = classes
	lr.NClasses = len(classes)
	lr.NFeatures = nFeatures
	lr.NIter = result.Stats.MajorIterations
	lr.Loss = result.F
	lr.Coef = make([][]float64, p.nClasses)
	lr.Intercept = make([]float64, p.nClasses)
	for k := 0; k < p.nClasses; k++ {
		block := result.X[k*width : (k+1)*width]
		lr.Coef[k] = append([]float64(nil), block[:nFeatures]...)
		lr.Intercept[k] = block[nFeatures]
	}

	if lr.State == nil {
		lr.State = model.NewFitState()
	}
	lr.State.SetDimensions(nFeatures, nSamples)
	lr.State.SetFitted()
	return nil
}

// extractClasses identifies sorted unique class labels and the index of each row's label.
func extractClasses(y mat.Matrix) ([]float64, []int) {
	rows, _ := y.Dims()
	seen := make(map[float64]int)
	for i := 0; i < rows; i++ {
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
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = seen[y.At(i, 0)]
	}
	return classes, idx
}

// linear returns the decision value of block k for row.
func (p *problem) linear(params []float64, k int, row []float64) float64 {
	width := p.nFeatures + 1
	block := params[k*width : (k+1)*width]
	return floats.Dot(block[:p.nFeatures], row) + block[p.nFeatures]
}

func (p *problem) penalty(params []float64) float64 {
	if p.lambda == 0 {
		return 0
	}
	width := p.nFeatures + 1
	s := 0.0
	for k := 0; k < p.nClasses; k++ {
		coef := params[k*width : k*width+p.nFeatures]
		s += floats.Dot(coef, coef)
	}
	return 0.5 * p.lambda * s
}

func (p *problem) loss(params []float64) float64 {
	total := 0.0
	z := make([]float64, p.nClasses)
	for i, row := range p.rows {
		if p.nClasses == 1 {
			zi := p.linear(params, 0, row)
			total += p.w[i] * (softplus(zi) - float64(p.y[i])*zi)
			continue
		}
		for k := range z {
			z[k] = p.linear(params, k, row)
		}
		total += p.w[i] * (floats.LogSumExp(z) - z[p.y[i]])
	}
	return total/p.sumW + p.penalty(params)
}

func (p *problem) grad(grad, params []float64) {
	for j := range grad {
		grad[j] = 0
	}
	width := p.nFeatures + 1
	z := make([]float64, p.nClasses)
	for i, row := range p.rows {
		if p.nClasses == 1 {
			r := p.w[i] * (sigmoid(p.linear(params, 0, row)) - float64(p.y[i]))
			floats.AddScaled(grad[:p.nFeatures], r, row)
			grad[p.nFeatures] += r
			continue
		}
		for k := range z {
			z[k] = p.linear(params, k, row)
		}
		lse := floats.LogSumExp(z)
		for k := range z {
			r := math.Exp(z[k] - lse)
			if k == p.y[i] {
				r--
			}
			r *= p.w[i]
			floats.AddScaled(grad[k*width:k*width+p.nFeatures], r, row)
			grad[k*width+p.nFeatures] += r
		}
	}
	floats.Scale(1/p.sumW, grad)
	for k := 0; k < p.nClasses; k++ {
		coef := params[k*width : k*width+p.nFeatures]
		floats.AddScaled(grad[k*width:k*width+p.nFeatures], p.lambda, coef)
		if !p.intercept {
			grad[k*width+p.nFeatures] = 0
		}
	}
}

// DecisionFunction returns the raw linear scores: (n, 1) for binary models,
// (n, n_classes) for multinomial ones.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.check(X, "DecisionFunction"); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, len(lr.Coef), nil)
	row := make([]float64, lr.NFeatures)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		for k, coef := range lr.Coef {
			out.Set(i, k, floats.Dot(coef, row)+lr.Intercept[k])
		}
	}
	return out, nil
}

func (lr *LogisticRegression) check(X mat.Matrix, method string) error {
	return lr.State.Check("LogisticRegression", method, X)
}

// PredictProba returns probability estimates for each class, shape (n, n_classes)
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	probas := mat.NewDense(n, lr.NClasses, nil)
	z := make([]float64, lr.NClasses)
	for i := 0; i < n; i++ {
		if lr.NClasses == 2 {
			p1 := sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1-p1)
			probas.Set(i, 1, p1)
			continue
		}
		mat.Row(z, i, scores)
		lse := floats.LogSumExp(z)
		for k := range z {
			probas.Set(i, k, math.Exp(z[k]-lse))
		}
	}
	return probas, nil
}

// Predict makes predictions for input data, shape (n, 1)
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	predictions := mat.NewDense(n, 1, nil)
	row := make([]float64, lr.NClasses)
	for i := 0; i < n; i++ {
		mat.Row(row, i, probas)
		predictions.Set(i, 0, lr.Classes[floats.MaxIdx(row)])
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// ExportWeights returns the binary coefficients for reporting.
// features names the encoded columns and may be nil.
func (lr *LogisticRegression) ExportWeights(features []string) (*model.ModelWeights, error) {
	if err := lr.State.RequireFitted("LogisticRegression", "ExportWeights"); err != nil {
		return nil, err
	}
	if len(lr.Coef) != 1 {
		return nil, errors.NewValueError("LogisticRegression.ExportWeights", "only binary models export a single weight vector")
	}
	mw := &model.ModelWeights{
		ModelType:       "LogisticRegression",
		Coefficients:    append([]float64(nil), lr.Coef[0]...),
		Intercept:       lr.Intercept[0],
		Features:        features,
		Hyperparameters: lr.GetParams(),
	}
	if err := mw.Validate(); err != nil {
		return nil, errors.Wrap(err, "LogisticRegression.ExportWeights")
	}
	return mw, nil
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.Penalty,
		"C":             lr.C,
		"fit_intercept": lr.FitIntercept,
		"class_weight":  lr.ClassWeight,
		"max_iter":      lr.MaxIter,
		"tol":           lr.Tol,
		"solver":        "lbfgs",
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.Penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.FitIntercept, ok = value.(bool)
		case "class_weight":
			lr.ClassWeight, ok = value.(string)
		case "max_iter":
			lr.MaxIter, ok = value.(int)
		case "tol":
			lr.Tol, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1 + exp(z)) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
