// Package evaluation scores a fitted pipeline on held-out data and produces
// an immutable MetricsReport.
package evaluation

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/metrics"
	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

// ReportDigits is the precision of the rendered classification report.
const ReportDigits = 4

// ClassNames are the display names of label 0 and label 1.
var ClassNames = [2]string{"no_default", "default"}

// Scorer is what evaluation needs from a fitted pipeline: the mode and the
// labelled predictions for a table. Artifacts satisfy it; nothing in it can
// reach a resampler.
type Scorer interface {
	Mode() scoring.Mode
	Decide(t *dataset.Table) ([]scoring.Prediction, error)
}

// Report is the evaluation of one artifact on one dataset. Supervised and
// unsupervised metrics are flattened into the JSON document so that it
// matches the metrics.json layout.
type Report struct {
	ArtifactID  string       `json:"artifact_id,omitempty"`
	Model       string       `json:"model,omitempty"`
	Mode        scoring.Mode `json:"mode"`
	EvaluatedAt time.Time    `json:"evaluated_at"`
	NTest       int          `json:"n_test"`

	*Supervised
	*Unsupervised
}

// Supervised holds classification metrics at DecisionThreshold.
type Supervised struct {
	ROCAUC          float64                       `json:"roc_auc"`
	F1              float64                       `json:"f1"`
	Precision       float64                       `json:"precision"`
	Recall          float64                       `json:"recall"`
	Accuracy        float64                       `json:"accuracy"`
	LogLoss         float64                       `json:"log_loss"`
	Threshold       float64                       `json:"threshold"`
	ConfusionMatrix [][]int                       `json:"confusion_matrix"`
	Report          string                        `json:"report"`
	Classification  *metrics.ClassificationReport `json:"classification"`
	ROC             *Curve                        `json:"roc_curve,omitempty"`
}

// Curve is an ROC curve.
type Curve struct {
	FPR []float64 `json:"fpr"`
	TPR []float64 `json:"tpr"`
}

// Unsupervised describes the anomaly detector on the evaluation rows.
type Unsupervised struct {
	AnomalyRate float64 `json:"anomaly_rate"`
	ScoreMean   float64 `json:"score_mean"`
	ScoreStd    float64 `json:"score_std"`
	ScoreMin    float64 `json:"score_min"`
	ScoreMax    float64 `json:"score_max"`
	ScoreP10    float64 `json:"score_p10"`
	ScoreP50    float64 `json:"score_p50"`
	ScoreP90    float64 `json:"score_p90"`
	// Scores are the raw decision-function values, kept for plotting.
	Scores []float64 `json:"-"`
}

// Evaluate scores t with s. Supervised evaluation requires labels (one per
// row) and fails with MissingLabelsError without them; unsupervised
// evaluation ignores labels.
func Evaluate(s Scorer, t *dataset.Table, labels []float64) (*Report, error) {
	mode := s.Mode()
	if mode == scoring.ModeSupervised && labels == nil {
		return nil, errors.NewMissingLabelsError("Evaluate")
	}

	preds, err := s.Decide(t)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Mode:        mode,
		EvaluatedAt: time.Now().UTC(),
		NTest:       len(preds),
	}

	switch mode {
	case scoring.ModeSupervised:
		if len(labels) != len(preds) {
			return nil, errors.NewDimensionError("Evaluate", len(preds), len(labels), 0)
		}
		rep.Supervised, err = supervised(preds, labels)
	default:
		rep.Unsupervised, err = unsupervised(preds)
	}
	if err != nil {
		return nil, err
	}

	logger := log.GetLoggerWithName("evaluation")
	if rep.Supervised != nil {
		logger.Info("evaluated classifier",
			log.OperationKey, log.OperationEvaluate,
			log.PhaseKey, log.PhaseEvaluation,
			log.SamplesKey, rep.NTest,
			log.ROCAUCKey, rep.ROCAUC,
			log.F1Key, rep.F1,
		)
	} else {
		logger.Info("evaluated anomaly detector",
			log.OperationKey, log.OperationEvaluate,
			log.PhaseKey, log.PhaseEvaluation,
			log.SamplesKey, rep.NTest,
			log.AnomalyRateKey, rep.AnomalyRate,
		)
	}
	return rep, nil
}

// EvaluateArtifact evaluates a and stamps the report with its identity.
// When labels is nil and t carries the artifact's target column, labels are
// read from it.
func EvaluateArtifact(a *pipeline.Artifact, t *dataset.Table, labels []float64) (*Report, error) {
	if labels == nil && a.Mode() == scoring.ModeSupervised && a.Schema.HasTarget() {
		if col, ok := t.Column(a.Schema.TargetColumn()); ok {
			parsed, err := dataset.ParseLabels(col)
			if err != nil {
				return nil, err
			}
			labels = parsed
		}
	}
	rep, err := Evaluate(a, t, labels)
	if err != nil {
		return nil, err
	}
	rep.ArtifactID = a.ID
	rep.Model = a.ModelName()
	return rep, nil
}

func supervised(preds []scoring.Prediction, labels []float64) (*Supervised, error) {
	n := len(preds)
	yTrue := mat.NewVecDense(n, append([]float64(nil), labels...))
	yPred := mat.NewVecDense(n, nil)
	proba := mat.NewVecDense(n, nil)
	for i, p := range preds {
		yPred.SetVec(i, float64(p.Label))
		proba.SetVec(i, p.Probability)
	}

	m := &Supervised{Threshold: scoring.DecisionThreshold}
	var err error
	if m.ROCAUC, err = metrics.AUC(yTrue, proba); err != nil {
		return nil, err
	}
	if m.Precision, err = metrics.PrecisionScore(yTrue, yPred, 1); err != nil {
		return nil, err
	}
	if m.Recall, err = metrics.RecallScore(yTrue, yPred, 1); err != nil {
		return nil, err
	}
	if m.F1, err = metrics.F1Score(yTrue, yPred, 1); err != nil {
		return nil, err
	}
	if m.Accuracy, err = metrics.Accuracy(yTrue, yPred); err != nil {
		return nil, err
	}
	if m.LogLoss, err = metrics.BinaryLogLoss(yTrue, proba); err != nil {
		return nil, err
	}
	if m.ConfusionMatrix, err = metrics.ConfusionMatrix(yTrue, yPred); err != nil {
		return nil, err
	}
	if m.Classification, err = metrics.NewClassificationReport(yTrue, yPred, ClassNames); err != nil {
		return nil, err
	}
	m.Report = m.Classification.Text(ReportDigits)

	// 片方のクラスしかない評価データでは ROC 曲線は定義されない
	if fpr, tpr, _, err := metrics.ROCCurve(yTrue, proba); err == nil {
		m.ROC = &Curve{FPR: fpr, TPR: tpr}
	}
	return m, nil
}

func unsupervised(preds []scoring.Prediction) (*Unsupervised, error) {
	scores := make([]float64, len(preds))
	anomalies := 0
	for i, p := range preds {
		scores[i] = p.Score
		anomalies += p.Label
	}
	s, err := metrics.Summarize(scores)
	if err != nil {
		return nil, err
	}
	return &Unsupervised{
		AnomalyRate: float64(anomalies) / float64(len(preds)),
		ScoreMean:   s.Mean,
		ScoreStd:    s.Std,
		ScoreMin:    s.Min,
		ScoreMax:    s.Max,
		ScoreP10:    s.P10,
		ScoreP50:    s.P50,
		ScoreP90:    s.P90,
		Scores:      scores,
	}, nil
}
