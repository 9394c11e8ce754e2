package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/creditrisk/evaluation"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func supervisedReport() *evaluation.Report {
	return &evaluation.Report{
		ArtifactID:  "0b7f6a1e",
		Model:       scoring.KindLogReg,
		Mode:        scoring.ModeSupervised,
		EvaluatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		NTest:       10,
		Supervised: &evaluation.Supervised{
			ROCAUC:          0.8125,
			F1:              0.6667,
			Precision:       0.6,
			Recall:          0.75,
			Accuracy:        0.7,
			Threshold:       scoring.DecisionThreshold,
			ConfusionMatrix: [][]int{{4, 2}, {1, 3}},
			Report:          "              precision    recall  f1-score   support\n",
			ROC: &evaluation.Curve{
				FPR: []float64{0, 0, 0.5, 1},
				TPR: []float64{0, 0.5, 0.75, 1},
			},
		},
	}
}

func unsupervisedReport() *evaluation.Report {
	scores := []float64{-0.08, -0.02, 0.01, 0.03, 0.05, 0.06, 0.07, 0.09, 0.1, 0.12}
	return &evaluation.Report{
		Model:       "isolation_forest",
		Mode:        scoring.ModeUnsupervised,
		EvaluatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		NTest:       len(scores),
		Unsupervised: &evaluation.Unsupervised{
			AnomalyRate: 0.2,
			ScoreMean:   0.043,
			ScoreP10:    -0.026,
			ScoreP50:    0.055,
			ScoreP90:    0.102,
			Scores:      scores,
		},
	}
}

func TestWriteJSONOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "metrics.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"stale": true}`), 0o644))

	require.NoError(t, WriteJSON(path, supervisedReport()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.NotContains(t, doc, "stale")
	assert.InDelta(t, 0.8125, doc["roc_auc"], 1e-12)
	assert.Equal(t, "supervised", doc["mode"])
	assert.EqualValues(t, 10, doc["n_test"])
}

func TestUnsupervisedJSONFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeJSON(&buf, unsupervisedReport()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	for _, key := range []string{"n_test", "anomaly_rate", "score_mean", "score_p10", "score_p50", "score_p90"} {
		assert.Contains(t, doc, key)
	}
	assert.NotContains(t, doc, "roc_auc")
	assert.NotContains(t, doc, "Scores")
}

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name string
		rep  *evaluation.Report
		want []string
	}{
		{
			name: "supervised",
			rep:  supervisedReport(),
			want: []string{"| ROC AUC | 0.8125 |", "| actual default | 1 | 3 |", "## Classification report"},
		},
		{
			name: "unsupervised",
			rep:  unsupervisedReport(),
			want: []string{"Anomaly rate: **20.00%**", "| p50 | 0.0550 |"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := string(Markdown(tt.rep))
			for _, w := range tt.want {
				assert.Contains(t, md, w)
			}
		})
	}
}

func TestRenderHTML(t *testing.T) {
	out := string(RenderHTML(Markdown(supervisedReport()), "Credit risk evaluation"))
	assert.Contains(t, out, "<title>Credit risk evaluation</title>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<h1")
}

func TestWriteAll(t *testing.T) {
	tests := []struct {
		name     string
		rep      *evaluation.Report
		wantPlot string
	}{
		{"supervised", supervisedReport(), ROCFile},
		{"unsupervised", unsupervisedReport(), HistogramFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files, err := WriteAll(filepath.Join(dir, "metrics.json"), tt.rep)
			require.NoError(t, err)

			assert.Equal(t, filepath.Join(dir, tt.wantPlot), files.Plot)
			for _, p := range []string{files.JSON, files.Markdown, files.HTML} {
				info, err := os.Stat(p)
				require.NoError(t, err)
				assert.Positive(t, info.Size())
			}
			img, err := os.ReadFile(files.Plot)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(img, pngMagic))
		})
	}
}

func TestPlotErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, PlotROC(filepath.Join(dir, "roc.png"), nil, 0.5))
	assert.Error(t, PlotROC(filepath.Join(dir, "roc.png"), &evaluation.Curve{FPR: []float64{0}, TPR: nil}, 0.5))
	assert.Error(t, PlotScoreHistogram(filepath.Join(dir, "h.png"), nil))
}
