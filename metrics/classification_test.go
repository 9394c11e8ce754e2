package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		proba   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{
			name:  "defaulters ranked above every repayer",
			yTrue: vec(0, 0, 0, 1, 1),
			proba: vec(0.05, 0.2, 0.3, 0.6, 0.95),
			want:  1.0,
		},
		{
			name:  "ranking inverted",
			yTrue: vec(0, 0, 1, 1),
			proba: vec(0.9, 0.7, 0.2, 0.1),
			want:  0.0,
		},
		{
			name:  "one repayer outranks one defaulter",
			yTrue: vec(0, 0, 1, 1),
			proba: vec(0.1, 0.4, 0.35, 0.8),
			want:  0.75,
		},
		{
			name:  "tied probabilities count half",
			yTrue: vec(0, 1, 0, 1),
			proba: vec(0.5, 0.5, 0.2, 0.7),
			want:  0.875,
		},
		{
			name:  "constant model",
			yTrue: vec(1, 0, 1, 0, 0),
			proba: vec(0.3, 0.3, 0.3, 0.3, 0.3),
			want:  0.5,
		},
		{
			name:    "label outside 0/1",
			yTrue:   vec(0, 2, 1),
			proba:   vec(0.1, 0.5, 0.9),
			wantErr: true,
		},
		{
			name:    "length mismatch",
			yTrue:   vec(0, 1),
			proba:   vec(0.5),
			wantErr: true,
		},
		{
			name:    "nil labels",
			proba:   vec(0.5),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(tt.yTrue, tt.proba)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAUCSingleClassWarns(t *testing.T) {
	var warnings []string
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w.Error()) })
	defer errors.SetWarningHandler(func(error) {})

	got, err := AUC(vec(0, 0, 0), vec(0.2, 0.4, 0.9))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "roc_auc")
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name  string
		yTrue *mat.VecDense
		proba *mat.VecDense
		want  float64
	}{
		{
			name:  "confident and right",
			yTrue: vec(0, 1),
			proba: vec(0, 1),
			want:  0,
		},
		{
			name:  "calibrated",
			yTrue: vec(0, 0, 1, 1),
			proba: vec(0.1, 0.2, 0.8, 0.9),
			want:  -(2*math.Log(0.9) + 2*math.Log(0.8)) / 4,
		},
		{
			name:  "coin flip",
			yTrue: vec(1, 0, 1),
			proba: vec(0.5, 0.5, 0.5),
			want:  math.Ln2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(tt.yTrue, tt.proba)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	// 確率 0 の予測でも有限値になる
	got, err := BinaryLogLoss(vec(1), vec(0))
	require.NoError(t, err)
	assert.False(t, math.IsInf(got, 0))
	assert.InDelta(t, -math.Log(1e-15), got, 1e-6)

	_, err = BinaryLogLoss(vec(0, 0.5), vec(0.1, 0.2))
	assert.Error(t, err)
}

func TestAccuracy(t *testing.T) {
	acc, err := Accuracy(vec(0, 1, 1, 0, 0), vec(0, 1, 0, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, acc, 1e-12)

	_, err = Accuracy(&mat.VecDense{}, &mat.VecDense{})
	assert.Error(t, err)
}

func TestROCCurveSingleClass(t *testing.T) {
	_, _, _, err := ROCCurve(vec(1, 1, 1), vec(0.2, 0.5, 0.9))
	assert.Error(t, err)
}

func BenchmarkAUC(b *testing.B) {
	const n = 1000
	yTrue := mat.NewVecDense(n, nil)
	proba := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			yTrue.SetVec(i, 1)
		}
		proba.SetVec(i, float64((i*7919)%n)/n)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(yTrue, proba)
	}
}
