package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

func smallTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.NewTable(
		[]string{"Age", "Duration", "Sex", "Housing"},
		[][]string{
			{"20", "12", "male", "own"},
			{"30", "24", "female", "rent"},
			{"40", "36", "male", "free"},
		},
	)
	require.NoError(t, err)
	return table
}

func smallSchema(t *testing.T) *dataset.Schema {
	t.Helper()
	s, err := dataset.NewSchema([]string{"Age", "Duration"}, []string{"Sex", "Housing"}, "")
	require.NoError(t, err)
	return s
}

func TestPreprocessorColumnOrder(t *testing.T) {
	p := NewPreprocessor(smallSchema(t))
	X, err := p.FitTransform(smallTable(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"num__Age", "num__Duration",
		"cat__Sex_female", "cat__Sex_male",
		"cat__Housing_free", "cat__Housing_own", "cat__Housing_rent",
	}, p.FeatureNames())

	r, c := X.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 7, c)

	// row 0: male, own
	assert.Equal(t, []float64{0, 1, 0, 1, 0}, []float64{X.At(0, 2), X.At(0, 3), X.At(0, 4), X.At(0, 5), X.At(0, 6)})
	assert.InDelta(t, 0.0, X.At(1, 0), 1e-12)
}

func TestPreprocessorUnseenCategory(t *testing.T) {
	p := NewPreprocessor(smallSchema(t))
	require.NoError(t, p.Fit(smallTable(t)))

	serving, err := dataset.NewTable(
		[]string{"Age", "Duration", "Sex", "Housing"},
		[][]string{{"25", "18", "nonbinary", "unknown"}},
	)
	require.NoError(t, err)

	X, err := p.Transform(serving)
	require.NoError(t, err)
	for j := 2; j < 7; j++ {
		assert.Equal(t, 0.0, X.At(0, j), "one-hot column %d", j)
	}
}

func TestPreprocessorZeroVarianceTraining(t *testing.T) {
	table, err := dataset.NewTable(
		[]string{"Age", "Duration", "Sex", "Housing"},
		[][]string{
			{"35", "12", "male", "own"},
			{"35", "12", "male", "own"},
			{"35", "12", "male", "own"},
		},
	)
	require.NoError(t, err)

	p := NewPreprocessor(smallSchema(t))
	X, err := p.FitTransform(table)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, X.At(i, 0))
		assert.Equal(t, 0.0, X.At(i, 1))
	}
}

func TestPreprocessorErrors(t *testing.T) {
	p := NewPreprocessor(smallSchema(t))

	_, err := p.Transform(smallTable(t))
	assert.True(t, errors.IsNotFitted(err))

	require.NoError(t, p.Fit(smallTable(t)))
	_, err = p.Transform(smallTable(t).Drop("Housing"))
	assert.True(t, errors.IsSchemaError(err))

	err = NewPreprocessor(smallSchema(t)).Fit(smallTable(t).Drop("Age"))
	assert.True(t, errors.IsSchemaError(err))
}

func TestPreprocessorRefitReplacesState(t *testing.T) {
	p := NewPreprocessor(smallSchema(t))
	require.NoError(t, p.Fit(smallTable(t)))
	assert.Equal(t, 7, p.NFeatures())

	narrow, err := dataset.NewTable(
		[]string{"Age", "Duration", "Sex", "Housing"},
		[][]string{{"1", "2", "male", "own"}, {"3", "4", "male", "own"}},
	)
	require.NoError(t, err)
	require.NoError(t, p.Fit(narrow))
	assert.Equal(t, 4, p.NFeatures())
	assert.Equal(t, []string{"male"}, p.Encoder.Categories[0])
}

func TestPreprocessorGobRoundTrip(t *testing.T) {
	p := NewPreprocessor(smallSchema(t))
	require.NoError(t, p.Fit(smallTable(t)))

	path := t.TempDir() + "/pre.gob"
	require.NoError(t, model.SaveModel(p, path))

	var loaded Preprocessor
	require.NoError(t, model.LoadModel(&loaded, path))

	want, err := p.Transform(smallTable(t))
	require.NoError(t, err)
	got, err := loaded.Transform(smallTable(t))
	require.NoError(t, err)
	assert.Equal(t, want.RawMatrix().Data, got.RawMatrix().Data)
}
