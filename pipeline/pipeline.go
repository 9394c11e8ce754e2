// Package pipeline composes schema validation, preprocessing, resampling and
// a scoring model into an immutable Artifact.
//
// Fit is the only place a resampler runs. Predict, PredictOne and every
// evaluation path go through Artifact.Decide, which validates, transforms and
// scores without touching the resampler.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/preprocessing"
	"github.com/YuminosukeSato/creditrisk/scoring"
	"github.com/YuminosukeSato/creditrisk/sklearn/over_sampling"
)

// Artifact is a fitted pipeline. It is read-only after Fit returns and safe
// for concurrent Decide calls.
type Artifact struct {
	ID           string
	CreatedAt    time.Time
	Config       Config
	Schema       *dataset.Schema
	Preprocessor *preprocessing.Preprocessor
	// Resampler records the SMOTE configuration used at fit time, nil when
	// training ran without SMOTE or with an injected resampler.
	Resampler     *over_sampling.SMOTE
	Model         scoring.Model
	NTrainSamples int
}

// Option customizes Fit.
type Option func(*fitOptions)

type fitOptions struct {
	resampler model.Resampler
	now       func() time.Time
}

// WithResampler replaces the SMOTE resampler built from Config. It only takes
// effect for supervised fits with UseSMOTE set.
func WithResampler(r model.Resampler) Option {
	return func(o *fitOptions) { o.resampler = r }
}

// WithClock overrides the artifact creation time source.
func WithClock(now func() time.Time) Option {
	return func(o *fitOptions) { o.now = now }
}

// Fit validates t against schema, fits the preprocessor, resamples when
// configured and fits the model. Any failure aborts without an artifact.
func Fit(ctx context.Context, t *dataset.Table, schema *dataset.Schema, cfg Config, opts ...Option) (*Artifact, error) {
	o := fitOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if schema == nil {
		return nil, errors.NewSchemaErrorf("pipeline.Fit", "schema is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := log.GetLoggerWithName("pipeline").With(
		log.OperationKey, log.OperationFit,
		log.ModeKey, string(cfg.Mode),
		log.RandomSeedKey, cfg.RandomState,
	)

	supervised := cfg.Mode == scoring.ModeSupervised
	frame, err := schema.Validate(t, supervised)
	if err != nil {
		logger.Warn("training table rejected", log.ErrAttrKey, err)
		return nil, err
	}
	if n := frame.NRows(); n < scoring.MinTrainingSamples {
		return nil, errors.NewTrainingError("pipeline.Fit", n,
			fmt.Sprintf("need at least %d samples", scoring.MinTrainingSamples))
	}

	pre := preprocessing.NewPreprocessor(schema)
	if err := pre.FitFrame(frame); err != nil {
		return nil, err
	}
	X, err := pre.TransformFrame(frame)
	if err != nil {
		return nil, err
	}
	nRows, nFeatures := X.Dims()
	logger.Info("preprocessed training table",
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, nRows,
		log.FeaturesKey, nFeatures,
	)

	a := &Artifact{
		ID:            uuid.NewString(),
		Config:        cfg,
		Schema:        schema,
		Preprocessor:  pre,
		NTrainSamples: nRows,
	}

	if supervised {
		y := mat.NewDense(nRows, 1, frame.Labels)
		if cfg.UseSMOTE {
			resampler := o.resampler
			if resampler == nil {
				smote := over_sampling.NewSMOTE(over_sampling.WithRandomState(cfg.RandomState))
				a.Resampler = smote
				resampler = smote
			}
			rx, ry, err := resampler.Resample(X, y)
			if err != nil {
				return nil, err
			}
			rows, _ := rx.Dims()
			logger.Info("resampled training set",
				log.OperationKey, log.OperationResample,
				log.SamplesKey, nRows,
				log.SyntheticKey, rows-nRows,
			)
			X, y = rx, ry
		}

		clf, err := scoring.NewRiskClassifier(cfg.ModelType, scoring.ClassifierOptions{
			RandomState: cfg.RandomState,
			Workers:     cfg.Workers,
		})
		if err != nil {
			return nil, err
		}
		if err := clf.FitContext(ctx, X, y); err != nil {
			return nil, err
		}
		a.Model = clf
	} else {
		det, err := scoring.NewAnomalyDetector(scoring.DetectorOptions{
			Contamination: cfg.Contamination,
			RandomState:   cfg.RandomState,
			Workers:       cfg.Workers,
		})
		if err != nil {
			return nil, err
		}
		if err := det.FitContext(ctx, X); err != nil {
			return nil, err
		}
		a.Model = det
	}

	a.CreatedAt = o.now().UTC()
	attrs := []any{
		log.PhaseKey, log.PhaseTraining,
		log.ArtifactIDKey, a.ID,
		log.ModelNameKey, a.ModelName(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	}
	if pg, ok := a.Model.(model.ParameterGetter); ok {
		attrs = append(attrs, log.HyperParamsKey, pg.GetParams())
	}
	logger.Info("pipeline fitted", attrs...)
	return a, nil
}

// Mode reports the model variant.
func (a *Artifact) Mode() scoring.Mode { return a.Model.Mode() }

// ModelName is the configured model type, or "isolation_forest" for the
// unsupervised variant.
func (a *Artifact) ModelName() string {
	if a.Config.Mode == scoring.ModeUnsupervised {
		return "isolation_forest"
	}
	return a.Config.ModelType
}

// Transform validates t and encodes it with the fitted preprocessor.
func (a *Artifact) Transform(t *dataset.Table) (*mat.Dense, error) {
	if a == nil || a.Preprocessor == nil || a.Model == nil || !a.Model.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Transform")
	}
	frame, err := a.Schema.Validate(t, false)
	if err != nil {
		return nil, err
	}
	return a.Preprocessor.TransformFrame(frame)
}

// Decide scores every row of t.
func (a *Artifact) Decide(t *dataset.Table) ([]scoring.Prediction, error) {
	X, err := a.Transform(t)
	if err != nil {
		return nil, err
	}
	return a.Model.Decide(X)
}

// Scores returns the raw model output for every row of t.
func (a *Artifact) Scores(t *dataset.Table) ([]float64, error) {
	X, err := a.Transform(t)
	if err != nil {
		return nil, err
	}
	return a.Model.Score(X)
}

// Predict scores every row of t with a.
func Predict(a *Artifact, t *dataset.Table) ([]scoring.Prediction, error) {
	start := time.Now()
	preds, err := a.Decide(t)
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("pipeline").Debug("predicted",
		log.OperationKey, log.OperationPredict,
		log.PhaseKey, log.PhaseInference,
		log.ArtifactIDKey, a.ID,
		log.PredsKey, len(preds),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return preds, nil
}

// PredictOne scores a single-row table.
func PredictOne(a *Artifact, t *dataset.Table) (scoring.Prediction, error) {
	if t == nil || t.NRows() != 1 {
		n := 0
		if t != nil {
			n = t.NRows()
		}
		return scoring.Prediction{}, errors.NewSchemaErrorf("pipeline.PredictOne", "expected exactly one row, got %d", n)
	}
	preds, err := Predict(a, t)
	if err != nil {
		return scoring.Prediction{}, err
	}
	return preds[0], nil
}

// PredictRecord scores one applicant given as column → value. Feature
// columns left out take the form defaults ("0" numeric, "unknown"
// categorical); columns outside the schema are ignored.
func PredictRecord(a *Artifact, record map[string]string) (scoring.Prediction, error) {
	t, err := a.RecordTable(record)
	if err != nil {
		return scoring.Prediction{}, err
	}
	return PredictOne(a, t)
}

// PredictRecords scores several applicants given as column → value maps,
// with the same defaults as PredictRecord.
func PredictRecords(a *Artifact, records []map[string]string) ([]scoring.Prediction, error) {
	if len(records) == 0 {
		return nil, errors.NewSchemaErrorf("pipeline.PredictRecords", "no records")
	}
	t, err := a.RecordsTable(records)
	if err != nil {
		return nil, err
	}
	return Predict(a, t)
}

// RecordTable builds the one-row table PredictRecord scores.
func (a *Artifact) RecordTable(record map[string]string) (*dataset.Table, error) {
	return a.RecordsTable([]map[string]string{record})
}

// RecordsTable builds a table with one row per record, filling absent
// feature columns with the form defaults.
func (a *Artifact) RecordsTable(records []map[string]string) (*dataset.Table, error) {
	if a == nil || a.Schema == nil {
		return nil, errors.NewNotFittedError("Pipeline", "PredictRecord")
	}
	defaults := a.Schema.FormDefaults()
	rows := make([]map[string]string, len(records))
	for i, record := range records {
		values := make(map[string]string, len(defaults))
		for k, v := range defaults {
			values[k] = v
		}
		for k, v := range record {
			if _, ok := values[k]; ok {
				values[k] = v
			}
		}
		rows[i] = values
	}
	return dataset.TableFromRecords(rows)
}
