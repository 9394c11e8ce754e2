package linear_model

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

func creditLikeData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(100, 3, nil)
	y := mat.NewDense(100, 1, nil)
	for i := 0; i < 100; i++ {
		X.Set(i, 0, math.Sin(float64(i)/10.0))
		X.Set(i, 1, math.Cos(float64(i)/7.0))
		X.Set(i, 2, float64(i%10)/5.0-1)
		z := 2*X.At(i, 0) - 1.5*X.At(i, 1) + 0.5*X.At(i, 2)
		if z > 0.3 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

// TestLogisticRegressionWeightReproducibility は重みの完全な再現性をテスト
func TestLogisticRegressionWeightReproducibility(t *testing.T) {
	X, y := creditLikeData()

	m1 := NewLogisticRegression(WithLRMaxIter(500))
	require.NoError(t, m1.Fit(X, y))
	m2 := NewLogisticRegression(WithLRMaxIter(500))
	require.NoError(t, m2.Fit(X, y))

	assert.Equal(t, m1.Coef, m2.Coef)
	assert.Equal(t, m1.Intercept, m2.Intercept)

	weights, err := m1.ExportWeights([]string{"a", "b", "c"})
	require.NoError(t, err)

	data, err := weights.ToJSON()
	require.NoError(t, err)
	loaded := &model.ModelWeights{}
	require.NoError(t, loaded.FromJSON(data))

	assert.Equal(t, m1.Coef[0], loaded.Coefficients)
	assert.Equal(t, m1.Intercept[0], loaded.Intercept)
	assert.Equal(t, "a", loaded.Top(1)[0].Feature)
}

func TestLogisticRegressionGobRoundTrip(t *testing.T) {
	X, y := creditLikeData()
	lr := NewLogisticRegression(WithLRClassWeight("balanced"))
	require.NoError(t, lr.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(lr, &buf))
	var restored LogisticRegression
	require.NoError(t, model.LoadModelFromReader(&restored, &buf))

	want, err := lr.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestLogisticRegressionSingleClass(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{1, 1, 1})

	err := NewLogisticRegression().Fit(X, y)
	assert.True(t, errors.IsTrainingError(err))
}

func TestLogisticRegressionBalancedShiftsMinority(t *testing.T) {
	// 9:1 の不均衡データでは balanced の方が少数クラスの確率が高くなる
	X := mat.NewDense(20, 1, nil)
	y := mat.NewDense(20, 1, nil)
	for i := 0; i < 20; i++ {
		X.Set(i, 0, float64(i%10))
		if i%10 == 9 {
			y.Set(i, 0, 1)
		}
	}
	queries := mat.NewDense(1, 1, []float64{5})

	plain := NewLogisticRegression()
	require.NoError(t, plain.Fit(X, y))
	balanced := NewLogisticRegression(WithLRClassWeight("balanced"))
	require.NoError(t, balanced.Fit(X, y))

	pp, err := plain.PredictProba(queries)
	require.NoError(t, err)
	pb, err := balanced.PredictProba(queries)
	require.NoError(t, err)
	assert.Greater(t, pb.At(0, 1), pp.At(0, 1))
}

func TestLogisticRegressionErrors(t *testing.T) {
	lr := NewLogisticRegression()
	_, err := lr.ExportWeights(nil)
	assert.True(t, errors.IsNotFitted(err))

	X, y := creditLikeData()
	require.NoError(t, lr.Fit(X, y))
	_, err = lr.Predict(mat.NewDense(1, 2, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	bad := NewLogisticRegression(WithLRPenalty("l1"))
	assert.Error(t, bad.Fit(X, y))
}
