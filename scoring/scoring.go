// Package scoring turns fitted models into credit-risk decisions.
//
// Both model variants expose the same surface (Model): Fit on the encoded
// feature matrix, Score for the raw model output and Decide for the labelled
// Prediction served to callers.
package scoring

import (
	"encoding/gob"
	"encoding/json"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

const (
	// DecisionThreshold is the probability at or above which an applicant is
	// labelled a default.
	DecisionThreshold = 0.5

	// MinTrainingSamples is the smallest training set either model accepts.
	MinTrainingSamples = 2

	// RiskEpsilon keeps the min-max risk normalization finite on a constant
	// training score distribution.
	RiskEpsilon = 1e-12
)

// Mode selects the supervised or unsupervised variant.
type Mode string

const (
	ModeSupervised   Mode = "supervised"
	ModeUnsupervised Mode = "unsupervised"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSupervised, ModeUnsupervised:
		return Mode(s), nil
	}
	return "", errors.NewValidationError("mode", "want supervised or unsupervised", s)
}

// Prediction is the decision for one applicant.
type Prediction struct {
	Mode Mode `json:"mode"`
	// Probability is the default probability. It is omitted from the
	// JSON of unsupervised predictions and always present otherwise, 0
	// included.
	Probability float64 `json:"probability"`
	// Score is the raw model output: the default probability for the
	// classifier, the isolation forest decision function for the detector
	// (higher is more normal).
	Score float64 `json:"score"`
	// Risk is a normalized risk in [0, 1].
	Risk float64 `json:"risk"`
	// Label is 1 for default/anomalous, 0 otherwise.
	Label int `json:"label"`
}

// MarshalJSON writes probability only for supervised predictions.
func (p Prediction) MarshalJSON() ([]byte, error) {
	out := struct {
		Mode        Mode     `json:"mode"`
		Probability *float64 `json:"probability,omitempty"`
		Score       float64  `json:"score"`
		Risk        float64  `json:"risk"`
		Label       int      `json:"label"`
	}{Mode: p.Mode, Score: p.Score, Risk: p.Risk, Label: p.Label}
	if p.Mode == ModeSupervised {
		out.Probability = &p.Probability
	}
	return json.Marshal(out)
}

// LabelName renders Label for humans.
func (p Prediction) LabelName() string {
	switch {
	case p.Mode == ModeUnsupervised && p.Label == 1:
		return "anomalous"
	case p.Mode == ModeUnsupervised:
		return "normal"
	case p.Label == 1:
		return "default"
	default:
		return "no_default"
	}
}

// Model is the uniform surface of both variants.
type Model interface {
	// Fit trains on the encoded matrix X. y is (n, 1) with 0/1 labels for
	// the classifier and ignored (may be nil) by the detector.
	Fit(X, y mat.Matrix) error
	// Score returns the raw model output per row.
	Score(X mat.Matrix) ([]float64, error)
	// Decide returns labelled predictions per row.
	Decide(X mat.Matrix) ([]Prediction, error)
	// Mode reports the variant.
	Mode() Mode
	// IsFitted reports whether Fit has succeeded.
	IsFitted() bool
}

func init() {
	gob.Register(&RiskClassifier{})
	gob.Register(&AnomalyDetector{})
}
