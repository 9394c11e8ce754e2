package ensemble

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// twoBlobs returns two Gaussian blobs; class 1 is the smaller one.
func twoBlobs(n0, n1 int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n0+n1, 3, nil)
	y := mat.NewDense(n0+n1, 1, nil)
	for i := 0; i < n0+n1; i++ {
		center := 0.0
		if i >= n0 {
			center = 3.0
			y.Set(i, 0, 1)
		}
		for j := 0; j < 3; j++ {
			X.Set(i, j, center+rng.NormFloat64())
		}
	}
	return X, y
}

func TestRandomForestSeparatesBlobs(t *testing.T) {
	X, y := twoBlobs(80, 20, 1)
	rf := NewRandomForestClassifier(
		WithNEstimators(30),
		WithForestMinSamplesLeaf(2),
		WithForestClassWeight("balanced"),
		WithForestRandomState(42),
	)
	require.NoError(t, rf.Fit(X, y))

	assert.GreaterOrEqual(t, rf.Score(X, y), 0.95)
	assert.Len(t, rf.Estimators, 30)
	assert.Equal(t, []float64{0, 1}, rf.Classes)

	proba, err := rf.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	require.Equal(t, 100, r)
	require.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-9)
	}

	sum := 0.0
	for _, v := range rf.FeatureImportances {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRandomForestIndependentOfWorkers(t *testing.T) {
	X, y := twoBlobs(40, 20, 2)
	fit := func(jobs int) mat.Matrix {
		rf := NewRandomForestClassifier(WithNEstimators(12), WithForestRandomState(7), WithForestNJobs(jobs))
		require.NoError(t, rf.Fit(X, y))
		p, err := rf.PredictProba(X)
		require.NoError(t, err)
		return p
	}
	assert.True(t, mat.Equal(fit(1), fit(4)))
}

func TestRandomForestErrors(t *testing.T) {
	rf := NewRandomForestClassifier()
	_, err := rf.PredictProba(mat.NewDense(1, 2, nil))
	assert.True(t, errors.IsNotFitted(err))

	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{0, 0, 0})
	assert.True(t, errors.IsTrainingError(rf.Fit(X, y)))
}

func TestRandomForestCancelled(t *testing.T) {
	X, y := twoBlobs(20, 20, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rf := NewRandomForestClassifier(WithNEstimators(5))
	assert.ErrorIs(t, rf.FitContext(ctx, X, y), context.Canceled)
	assert.False(t, rf.State.IsFitted())
}

func TestRandomForestGobRoundTrip(t *testing.T) {
	X, y := twoBlobs(30, 10, 4)
	rf := NewRandomForestClassifier(WithNEstimators(8), WithForestRandomState(1))
	require.NoError(t, rf.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(rf, &buf))
	var restored RandomForestClassifier
	require.NoError(t, model.LoadModelFromReader(&restored, &buf))

	want, err := rf.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}
