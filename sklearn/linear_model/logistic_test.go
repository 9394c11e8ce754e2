package linear_model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// separable returns standardized (duration, amount) rows; the last three
// applicants defaulted.
func separable() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		-1.5, -1.5,
		-1.0, -0.5,
		-0.5, -1.0,
		1.0, 0.5,
		0.5, 1.0,
		1.5, 1.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	return X, y
}

func TestFitPredictSeparable(t *testing.T) {
	X, y := separable()
	lr := NewLogisticRegression(WithLRMaxIter(1000))
	require.NoError(t, lr.Fit(X, y))

	assert.Equal(t, 1.0, lr.Score(X, y))
	assert.Equal(t, []float64{0, 1}, lr.Classes)
	require.Len(t, lr.Coef, 1)
	assert.Greater(t, lr.Coef[0][0], 0.0)
	assert.Greater(t, lr.Coef[0][1], 0.0)

	pred, err := lr.Predict(mat.NewDense(2, 2, []float64{-1, -1, 1, 1}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.At(0, 0))
	assert.Equal(t, 1.0, pred.At(1, 0))
}

func TestPredictProbaIsMonotoneInRisk(t *testing.T) {
	X, y := separable()
	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))

	queries := mat.NewDense(5, 2, []float64{
		-2, -2,
		-1, -1,
		0, 0,
		1, 1,
		2, 2,
	})
	proba, err := lr.PredictProba(queries)
	require.NoError(t, err)

	prev := -1.0
	for i := 0; i < 5; i++ {
		p0, p1 := proba.At(i, 0), proba.At(i, 1)
		assert.InDelta(t, 1.0, p0+p1, 1e-12)
		assert.Greater(t, p1, prev, "row %d", i)
		prev = p1
	}
	// 対称なデータなので原点はほぼ五分五分
	assert.InDelta(t, 0.5, proba.At(2, 1), 0.05)

	scores, err := lr.DecisionFunction(queries)
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(scores.At(4, 0)), proba.At(4, 1), 1e-12)
}

func TestRegularizationShrinksCoefficients(t *testing.T) {
	X, y := creditLikeData()

	norm := func(c float64) float64 {
		lr := NewLogisticRegression(WithLRC(c), WithLRMaxIter(1000))
		require.NoError(t, lr.Fit(X, y))
		s := 0.0
		for _, w := range lr.Coef[0] {
			s += w * w
		}
		return math.Sqrt(s)
	}

	strong, weak := norm(0.01), norm(100)
	assert.Less(t, strong, weak)
}

func TestWithoutIntercept(t *testing.T) {
	X, y := separable()
	lr := NewLogisticRegression(WithLogisticFitIntercept(false))
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 0.0, lr.Intercept[0])
}

func TestMultinomialRiskGrades(t *testing.T) {
	X := mat.NewDense(9, 1, []float64{-3, -2.5, -2, 0, 0.2, -0.2, 2, 2.5, 3})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRC(100))
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 3, lr.NClasses)
	require.Len(t, lr.Coef, 3)
	assert.Equal(t, 1.0, lr.Score(X, y))

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	_, c := proba.Dims()
	require.Equal(t, 3, c)
	for i := 0; i < 9; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1)+proba.At(i, 2), 1e-9)
	}

	_, err = lr.ExportWeights(nil)
	assert.Error(t, err, "multinomial models have no single weight vector")
}

func TestConvergenceWarning(t *testing.T) {
	var warnings []string
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w.Error()) })
	defer errors.SetWarningHandler(func(error) {})

	X, y := creditLikeData()
	lr := NewLogisticRegression(WithLRMaxIter(1), WithLRTol(1e-12))
	require.NoError(t, lr.Fit(X, y))
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "LogisticRegression")
}

func TestGetSetParams(t *testing.T) {
	lr := NewLogisticRegression()
	params := lr.GetParams()
	assert.Equal(t, "l2", params["penalty"])
	assert.Equal(t, 1.0, params["C"])
	assert.Equal(t, 100, params["max_iter"])
	assert.Equal(t, "lbfgs", params["solver"])

	require.NoError(t, lr.SetParams(map[string]interface{}{
		"C":            0.5,
		"max_iter":     1000,
		"class_weight": "balanced",
		"penalty":      "none",
	}))
	assert.Equal(t, 0.5, lr.C)
	assert.Equal(t, 1000, lr.MaxIter)
	assert.Equal(t, "balanced", lr.ClassWeight)
	assert.Equal(t, "none", lr.Penalty)

	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{name: "unknown key", params: map[string]interface{}{"l1_ratio": 0.5}},
		{name: "int for float", params: map[string]interface{}{"C": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *errors.ValidationError
			assert.True(t, errors.As(lr.SetParams(tt.params), &verr))
		})
	}
}

func TestFitValidation(t *testing.T) {
	X, y := separable()
	tests := []struct {
		name string
		lr   *LogisticRegression
		X, y mat.Matrix
	}{
		{name: "non-positive C", lr: NewLogisticRegression(WithLRC(0)), X: X, y: y},
		{name: "row mismatch", lr: NewLogisticRegression(), X: X, y: mat.NewDense(5, 1, nil)},
		{name: "y matrix", lr: NewLogisticRegression(), X: X, y: mat.NewDense(6, 2, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.lr.Fit(tt.X, tt.y))
		})
	}
}

func TestNotFitted(t *testing.T) {
	lr := NewLogisticRegression()
	X := mat.NewDense(1, 2, []float64{0, 0})

	_, err := lr.Predict(X)
	assert.True(t, errors.IsNotFitted(err))
	_, err = lr.PredictProba(X)
	assert.True(t, errors.IsNotFitted(err))
	assert.Equal(t, 0.0, lr.Score(X, mat.NewDense(1, 1, nil)))
}
