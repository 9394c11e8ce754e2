// Package creditrisk scores loan applicants for default risk.
//
// It trains a pipeline on German-credit-shaped tabular data in one of two
// modes and serves the fitted artifact to a CLI, an HTTP API or library
// callers.
//
// # Features
//
//   - Supervised scoring: logistic regression or random forest with
//     balanced class weights, trained on SMOTE-resampled data
//   - Unsupervised scoring: isolation forest anomaly detection with a
//     min-max normalized risk in [0, 1]
//   - Explicit feature schema with typed errors for missing columns
//   - Versioned binary artifacts, JSON/Markdown/HTML evaluation reports
//   - Optional run registry on SQLite or PostgreSQL
//
// # Installation
//
//	go install github.com/YuminosukeSato/creditrisk/cmd/creditrisk@latest
//
// # Quick Start
//
//	creditrisk train --data data/raw/german_credit.csv
//	creditrisk evaluate
//	creditrisk predict --set Age=35 --set "Credit amount=2500"
//	creditrisk serve --addr :8080
//
// As a library:
//
//	schema := dataset.GermanCreditSchema("Risk")
//	artifact, err := pipeline.Fit(ctx, table, schema, pipeline.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p, err := pipeline.PredictRecord(artifact, map[string]string{"Age": "35"})
//
// # Packages
//
//   - dataset: tables, CSV/XLSX input, schema validation, splits
//   - preprocessing: standard scaling and one-hot encoding
//   - sklearn/over_sampling: SMOTE
//   - sklearn/linear_model, sklearn/tree, sklearn/ensemble: estimators
//   - scoring: the two risk model variants
//   - pipeline: Fit, Predict, artifact encoding
//   - evaluation, report: metrics and report files
//   - registry: artifact and evaluation history
//   - config: YAML and CREDITRISK_* environment configuration
//   - core/model, core/parallel: estimator state and worker pools
//   - pkg/errors, pkg/log: error taxonomy and structured logging
package creditrisk
