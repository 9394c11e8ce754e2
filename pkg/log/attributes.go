// Standard attribute keys for credit-risk pipeline logging.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so that log records from training, scoring and the
// scoring service can be filtered the same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the model or transformer type.
	// Examples: "RiskClassifier", "AnomalyDetector", "Preprocessor"
	ModelNameKey = "model.name"

	// ModeKey records the pipeline mode ("supervised" or "unsupervised").
	ModeKey = "model.mode"

	// ArtifactIDKey identifies a fitted pipeline artifact.
	ArtifactIDKey = "artifact.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "evaluate", "resample"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the lifecycle phase.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of rows being processed.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of encoded feature columns.
	FeaturesKey = "data.features"

	// ColumnsKey lists raw column names, e.g. the missing ones in a schema mismatch.
	ColumnsKey = "data.columns"

	// MinorityKey and MajorityKey count class members around resampling.
	MinorityKey = "data.minority"
	MajorityKey = "data.majority"

	// SyntheticKey is the number of synthetic rows produced by a resampler.
	SyntheticKey = "data.synthetic"

	// PathKey is a file path being read or written.
	PathKey = "data.path"
)

// Performance and Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey is the number of goroutines used for tree construction.
	WorkersKey = "perf.workers"

	// ROCAUCKey and F1Key are supervised evaluation metrics.
	ROCAUCKey = "metrics.roc_auc"
	F1Key     = "metrics.f1"

	// AnomalyRateKey is the fraction of rows labeled anomalous.
	AnomalyRateKey = "metrics.anomaly_rate"

	// LossKey records a loss value during training.
	LossKey = "metrics.loss"

	// IterationKey records the current iteration number of an iterative solver.
	IterationKey = "training.iteration"
)

// Prediction Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"

	// ThresholdKey records the decision threshold or anomaly offset.
	ThresholdKey = "preds.threshold"
)

// Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// ConfigFileKey records the configuration file that was loaded.
	ConfigFileKey = "config.file"
)

// HTTP service
const (
	RequestIDKey = "http.request_id"
	StatusKey    = "http.status"
	RouteKey     = "http.route"
)

// Standard attribute values.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationEvaluate = "evaluate"
	OperationResample = "resample"
	OperationSave     = "save"
	OperationLoad     = "load"

	PhaseTraining      = "training"
	PhaseEvaluation    = "evaluation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
