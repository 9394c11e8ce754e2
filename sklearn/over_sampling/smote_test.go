package over_sampling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

func imbalanced(nMaj, nMin int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(1))
	n := nMaj + nMin
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		offset := 0.0
		if i >= nMaj {
			offset = 5
			y.Set(i, 0, 1)
		}
		X.Set(i, 0, offset+rng.Float64())
		X.Set(i, 1, offset+rng.Float64())
	}
	return X, y
}

func countClass(y mat.Matrix, c float64) int {
	n, _ := y.Dims()
	count := 0
	for i := 0; i < n; i++ {
		if y.At(i, 0) == c {
			count++
		}
	}
	return count
}

func TestSMOTEBalances700To300(t *testing.T) {
	X, y := imbalanced(700, 300)
	Xr, yr, err := NewSMOTE(WithRandomState(42)).Resample(X, y)
	require.NoError(t, err)

	n0, n1 := countClass(yr, 0), countClass(yr, 1)
	assert.Equal(t, 700, n0)
	assert.InDelta(t, 0.5, float64(n1)/float64(n0+n1), 0.01)

	r, c := Xr.Dims()
	assert.Equal(t, n0+n1, r)
	assert.Equal(t, 2, c)

	// 先頭は元データのまま
	assert.True(t, mat.Equal(X, Xr.Slice(0, 1000, 0, 2)))
	assert.True(t, mat.Equal(y, yr.Slice(0, 1000, 0, 1)))

	// 合成行は少数クラスの範囲内に収まる
	for i := 1000; i < r; i++ {
		assert.Equal(t, 1.0, yr.At(i, 0))
		for j := 0; j < 2; j++ {
			assert.GreaterOrEqual(t, Xr.At(i, j), 5.0)
			assert.LessOrEqual(t, Xr.At(i, j), 6.0)
		}
	}
}

func TestSMOTELogsClassCounts(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	log.SetProvider(provider)
	defer log.SetProvider(log.NewZerologProvider(log.LevelWarn))

	X, y := imbalanced(70, 30)
	_, _, err := NewSMOTE(WithRandomState(7)).Resample(X, y)
	require.NoError(t, err)

	logs := provider.Logger()
	assert.True(t, logs.ContainsMessage("smote resampled"))
	assert.True(t, logs.ContainsField(log.MinorityKey, 30.0))
	assert.True(t, logs.ContainsField(log.MajorityKey, 70.0))
	assert.True(t, logs.ContainsField(log.RandomSeedKey, 7.0))
}

func TestSMOTEDeterministic(t *testing.T) {
	X, y := imbalanced(40, 10)
	a, _, err := NewSMOTE(WithRandomState(3)).Resample(X, y)
	require.NoError(t, err)
	b, _, err := NewSMOTE(WithRandomState(3)).Resample(X, y)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestSMOTESamplingRatio(t *testing.T) {
	X, y := imbalanced(100, 20)
	_, yr, err := NewSMOTE(WithSamplingRatio(0.5)).Resample(X, y)
	require.NoError(t, err)
	assert.Equal(t, 50, countClass(yr, 1))
}

func TestSMOTESmallMinorityShrinksK(t *testing.T) {
	X, y := imbalanced(10, 3)
	_, yr, err := NewSMOTE().Resample(X, y)
	require.NoError(t, err)
	assert.Equal(t, 10, countClass(yr, 1))
}

func TestSMOTEErrors(t *testing.T) {
	X, y := imbalanced(10, 1)
	_, _, err := NewSMOTE().Resample(X, y)
	assert.True(t, errors.IsTrainingError(err))

	_, _, err = NewSMOTE(WithKNeighbors(0)).Resample(X, y)
	assert.Error(t, err)

	_, _, err = NewSMOTE().Resample(X, mat.NewDense(3, 1, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestNearestNeighbors(t *testing.T) {
	rows := [][]float64{{0}, {1}, {3}, {10}}
	nn := nearestNeighbors(rows, 2)
	assert.Equal(t, []int{1, 2}, nn[0])
	assert.Equal(t, []int{0, 2}, nn[1])
	assert.Equal(t, []int{2, 1}, nn[3])
}
