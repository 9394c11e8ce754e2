package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})

	scaler := NewStandardScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, scaler.Mean[0], 1e-12)
	// population std of 1..4
	assert.InDelta(t, math.Sqrt(1.25), scaler.Scale[0], 1e-12)

	for j := 0; j < 2; j++ {
		sum := 0.0
		for i := 0; i < 4; i++ {
			sum += out.At(i, j)
		}
		assert.InDelta(t, 0, sum, 1e-9)
	}

	// 入力は書き換えない
	assert.Equal(t, 1.0, X.At(0, 0))
}

func TestStandardScalerZeroVariance(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		5, 0,
		5, 0,
		5, 0,
	})

	scaler := NewStandardScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)

	r, c := out.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.Equal(t, 0.0, out.At(i, j))
		}
	}

	unseen, err := scaler.Transform(mat.NewDense(1, 2, []float64{100, -7}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, unseen.At(0, 0))
	assert.Equal(t, 0.0, unseen.At(0, 1))
}

func TestStandardScalerErrors(t *testing.T) {
	scaler := NewStandardScalerDefault()
	_, err := scaler.Transform(mat.NewDense(1, 1, []float64{1}))
	assert.True(t, errors.IsNotFitted(err))

	require.NoError(t, scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = scaler.Transform(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestMinMaxScalerEpsilonAndClip(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{-1, 0, 1})

	scaler := NewMinMaxScaler([2]float64{0, 1}, WithEpsilon(1e-12), WithClip(true))
	require.NoError(t, scaler.Fit(X))

	out, err := scaler.TransformValues([]float64{-1, 0, 1, 5, -5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, 0.5, out[1], 1e-9)
	assert.InDelta(t, 1.0, out[2], 1e-9)
	assert.Equal(t, 1.0, out[3])
	assert.Equal(t, 0.0, out[4])

	constant := NewMinMaxScaler([2]float64{0, 1}, WithEpsilon(1e-12), WithClip(true))
	require.NoError(t, constant.Fit(mat.NewDense(2, 1, []float64{3, 3})))
	v, err := constant.TransformValues([]float64{3})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(v[0]))
	assert.Equal(t, 0.0, v[0])
}

func TestMinMaxScalerDefault(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, 5,
		5, 5,
		10, 5,
	})
	scaler := NewMinMaxScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.At(1, 0), 1e-12)
	assert.InDelta(t, 0.0, out.At(1, 1), 1e-12)

	assert.InDelta(t, 1.0, out.At(2, 0), 1e-12)

	_, err = scaler.TransformValues([]float64{1})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr), "TransformValues needs a single-column fit")
}
