package ensemble

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

func gaussian(n, d int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
	}
	return X
}

func TestAveragePathLength(t *testing.T) {
	assert.Equal(t, 0.0, averagePathLength(1))
	assert.Equal(t, 1.0, averagePathLength(2))
	assert.InDelta(t, 10.2447, averagePathLength(256), 1e-3)
}

func TestIsolationForestFlagsOutlier(t *testing.T) {
	X := gaussian(300, 2, 1)
	X.Set(0, 0, 8)
	X.Set(0, 1, -8)

	f := NewIsolationForest(WithIsolationEstimators(100), WithContamination(0.1), WithIsolationRandomState(42))
	require.NoError(t, f.Fit(X))
	assert.Equal(t, 256, f.SampleSize)

	scores, err := f.ScoreSamples(X)
	require.NoError(t, err)
	for i := 0; i < scores.Len(); i++ {
		assert.Less(t, scores.AtVec(i), 0.0)
		assert.GreaterOrEqual(t, scores.AtVec(i), -1.0)
	}
	assert.Equal(t, scores.AtVec(0), mat.Min(scores))

	pred, err := f.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, -1.0, pred.At(0, 0))

	anomalies := 0
	for i := 0; i < 300; i++ {
		if pred.At(i, 0) < 0 {
			anomalies++
		}
	}
	// 学習データでは contamination の割合だけが外れ値になる
	assert.InDelta(t, 30, anomalies, 2)
}

func TestIsolationForestAutoOffset(t *testing.T) {
	f := NewIsolationForest(WithIsolationEstimators(10))
	require.NoError(t, f.Fit(gaussian(50, 3, 2)))
	assert.Equal(t, -0.5, f.Offset)
	assert.Equal(t, 50, f.SampleSize)
}

func TestIsolationForestDeterministic(t *testing.T) {
	X := gaussian(120, 4, 3)
	fit := func(jobs int) *mat.VecDense {
		f := NewIsolationForest(WithIsolationEstimators(20), WithIsolationRandomState(9), WithIsolationNJobs(jobs))
		require.NoError(t, f.Fit(X))
		d, err := f.DecisionFunction(X)
		require.NoError(t, err)
		return d
	}
	assert.True(t, mat.Equal(fit(1), fit(3)))
}

func TestIsolationForestErrors(t *testing.T) {
	f := NewIsolationForest()
	_, err := f.ScoreSamples(mat.NewDense(1, 2, nil))
	assert.True(t, errors.IsNotFitted(err))

	require.NoError(t, f.Fit(gaussian(10, 2, 4)))
	_, err = f.DecisionFunction(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	bad := NewIsolationForest(WithContamination(0.7))
	assert.Error(t, bad.Fit(gaussian(10, 2, 5)))
}

func TestIsolationForestGobRoundTrip(t *testing.T) {
	X := gaussian(60, 2, 6)
	f := NewIsolationForest(WithIsolationEstimators(15), WithContamination(0.1))
	require.NoError(t, f.Fit(X))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(f, &buf))
	var restored IsolationForest
	require.NoError(t, model.LoadModelFromReader(&restored, &buf))

	want, err := f.DecisionFunction(X)
	require.NoError(t, err)
	got, err := restored.DecisionFunction(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}
