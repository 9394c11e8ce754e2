package scoring

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

func labelled(n int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		shift := 0.0
		if i%4 == 0 {
			shift = 2.5
			y.Set(i, 0, 1)
		}
		for j := 0; j < 3; j++ {
			X.Set(i, j, shift+rng.NormFloat64())
		}
	}
	return X, y
}

func TestPredictionLabelName(t *testing.T) {
	tests := []struct {
		p    Prediction
		want string
	}{
		{Prediction{Mode: ModeSupervised, Label: 1}, "default"},
		{Prediction{Mode: ModeSupervised, Label: 0}, "no_default"},
		{Prediction{Mode: ModeUnsupervised, Label: 1}, "anomalous"},
		{Prediction{Mode: ModeUnsupervised, Label: 0}, "normal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.LabelName())
	}
}

func TestPredictionJSONProbability(t *testing.T) {
	tests := []struct {
		name   string
		p      Prediction
		want   bool
		wantPD float64
	}{
		{"supervised zero", Prediction{Mode: ModeSupervised, Probability: 0, Label: 0}, true, 0},
		{"supervised", Prediction{Mode: ModeSupervised, Probability: 0.73, Score: 0.73, Label: 1}, true, 0.73},
		{"unsupervised", Prediction{Mode: ModeUnsupervised, Score: -0.1, Risk: 0.6, Label: 1}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.p)
			require.NoError(t, err)

			var doc map[string]any
			require.NoError(t, json.Unmarshal(raw, &doc))
			got, ok := doc["probability"]
			require.Equal(t, tt.want, ok, string(raw))
			if tt.want {
				assert.Equal(t, tt.wantPD, got)
			}
			for _, key := range []string{"mode", "score", "risk", "label"} {
				assert.Contains(t, doc, key)
			}

			var back Prediction
			require.NoError(t, json.Unmarshal(raw, &back))
			assert.Equal(t, tt.p, back)
		})
	}
}

func TestClassifierLogsTrainingAndDecision(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	log.SetProvider(provider)
	defer log.SetProvider(log.NewZerologProvider(log.LevelWarn))

	X, y := labelled(120, 3)
	clf, err := NewRiskClassifier(KindLogReg, ClassifierOptions{RandomState: 42})
	require.NoError(t, err)
	require.NoError(t, clf.Fit(X, y))

	logs := provider.Logger()
	assert.True(t, logs.ContainsMessage("lbfgs finished"))
	entries, err := logs.GetLogEntries()
	require.NoError(t, err)
	var iterations, loss interface{}
	for _, e := range entries {
		if e["message"] == "lbfgs finished" {
			iterations, loss = e[log.IterationKey], e[log.LossKey]
		}
	}
	require.NotNil(t, iterations)
	assert.Greater(t, iterations.(float64), 0.0)
	require.NotNil(t, loss)
	assert.Greater(t, loss.(float64), 0.0)

	_, err = clf.Decide(X)
	require.NoError(t, err)
	assert.True(t, logs.ContainsField(log.ThresholdKey, DecisionThreshold))
	assert.True(t, logs.ContainsField(log.PredsKey, 120.0))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("unsupervised")
	require.NoError(t, err)
	assert.Equal(t, ModeUnsupervised, m)

	_, err = ParseMode("semi")
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "mode", verr.ParamName)
	assert.Equal(t, "semi", verr.Value)
}

func TestRiskClassifierVariants(t *testing.T) {
	X, y := labelled(200, 1)

	for _, kind := range []string{KindLogReg, KindRandomForest} {
		t.Run(kind, func(t *testing.T) {
			clf, err := NewRiskClassifier(kind, ClassifierOptions{RandomState: 42, Workers: 2})
			require.NoError(t, err)
			if rf, ok := clf.Classifier.(interface{ GetParams() map[string]interface{} }); ok {
				require.NotEmpty(t, rf.GetParams())
			}
			require.NoError(t, clf.Fit(X, y))

			preds, err := clf.Decide(X)
			require.NoError(t, err)
			require.Len(t, preds, 200)

			correct := 0
			for i, p := range preds {
				assert.GreaterOrEqual(t, p.Probability, 0.0)
				assert.LessOrEqual(t, p.Probability, 1.0)
				assert.Equal(t, p.Probability >= DecisionThreshold, p.Label == 1)
				if float64(p.Label) == y.At(i, 0) {
					correct++
				}
			}
			assert.Greater(t, float64(correct)/200, 0.8)
		})
	}
}

func TestRiskClassifierUnknownKind(t *testing.T) {
	_, err := NewRiskClassifier("svm", ClassifierOptions{})
	assert.Error(t, err)
}

func TestRiskClassifierTrainingErrors(t *testing.T) {
	clf, err := NewRiskClassifier(KindLogReg, ClassifierOptions{})
	require.NoError(t, err)

	tests := []struct {
		name string
		X    *mat.Dense
		y    *mat.Dense
	}{
		{"one row", mat.NewDense(1, 2, nil), mat.NewDense(1, 1, []float64{1})},
		{"single class", mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{0, 0, 0})},
		{"non binary label", mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{0, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.IsTrainingError(clf.Fit(tt.X, tt.y)))
			assert.False(t, clf.IsFitted())
		})
	}
	assert.True(t, errors.IsTrainingError(clf.Fit(mat.NewDense(3, 1, nil), nil)))
}

func TestScoreBeforeFitAndWidthMismatch(t *testing.T) {
	clf, err := NewRiskClassifier(KindLogReg, ClassifierOptions{})
	require.NoError(t, err)
	_, err = clf.Score(mat.NewDense(1, 3, nil))
	assert.True(t, errors.IsNotFitted(err))

	X, y := labelled(40, 2)
	require.NoError(t, clf.Fit(X, y))
	_, err = clf.Decide(mat.NewDense(1, 4, nil))
	assert.True(t, errors.IsSchemaError(err))
}

func TestLogRegExportsWeights(t *testing.T) {
	X, y := labelled(60, 3)
	clf, err := NewRiskClassifier(KindLogReg, ClassifierOptions{})
	require.NoError(t, err)
	require.NoError(t, clf.Fit(X, y))

	w, ok, err := clf.Weights([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, w.Coefficients, 3)

	_, ok = clf.FeatureImportances()
	assert.False(t, ok)
}

func TestAnomalyDetector(t *testing.T) {
	X, _ := labelled(300, 4)
	det, err := NewAnomalyDetector(DetectorOptions{Contamination: DefaultContamination, RandomState: 42})
	require.NoError(t, err)
	require.NoError(t, det.Fit(X, nil))

	preds, err := det.Decide(X)
	require.NoError(t, err)

	anomalies := 0
	for _, p := range preds {
		assert.GreaterOrEqual(t, p.Risk, 0.0)
		assert.LessOrEqual(t, p.Risk, 1.0)
		assert.Equal(t, p.Score < 0, p.Label == 1)
		anomalies += p.Label
	}
	assert.InDelta(t, 0.10, float64(anomalies)/300, 0.01)

	// 学習時の分布外の点もリスクは [0,1] に収まる
	far := mat.NewDense(1, 3, []float64{50, -50, 50})
	out, err := det.Decide(far)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out[0].Risk)
	assert.Equal(t, "anomalous", out[0].LabelName())
}

func TestAnomalyDetectorValidation(t *testing.T) {
	_, err := NewAnomalyDetector(DetectorOptions{Contamination: 0})
	assert.Error(t, err)

	det, err := NewAnomalyDetector(DetectorOptions{Contamination: 0.1})
	require.NoError(t, err)
	assert.True(t, errors.IsTrainingError(det.Fit(mat.NewDense(1, 2, nil), nil)))
}

func TestGetParamsReflectsRiskHyperparameters(t *testing.T) {
	lr, err := NewRiskClassifier(KindLogReg, ClassifierOptions{})
	require.NoError(t, err)
	params := lr.GetParams()
	assert.Equal(t, KindLogReg, params["kind"])
	assert.Equal(t, 1000, params["max_iter"])
	assert.Equal(t, "balanced", params["class_weight"])

	rf, err := NewRiskClassifier(KindRandomForest, ClassifierOptions{RandomState: 7})
	require.NoError(t, err)
	params = rf.GetParams()
	assert.Equal(t, KindRandomForest, params["kind"])
	assert.Equal(t, 400, params["n_estimators"])
	assert.Equal(t, 2, params["min_samples_leaf"])

	det, err := NewAnomalyDetector(DetectorOptions{Contamination: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 300, det.GetParams()["n_estimators"])
	assert.Equal(t, 0.1, det.GetParams()["contamination"])
}

func TestModelGobThroughInterface(t *testing.T) {
	X, y := labelled(80, 5)
	clf, err := NewRiskClassifier(KindRandomForest, ClassifierOptions{RandomState: 1})
	require.NoError(t, err)
	require.NoError(t, clf.Fit(X, y))

	holder := struct{ Model Model }{Model: clf}
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(holder))

	var restored struct{ Model Model }
	require.NoError(t, gob.NewDecoder(&buf).Decode(&restored))

	want, err := clf.Score(X)
	require.NoError(t, err)
	got, err := restored.Model.Score(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, ModeSupervised, restored.Model.Mode())
}
