// Package ensemble provides tree ensembles compatible with scikit-learn's
// sklearn.ensemble: RandomForestClassifier for supervised risk scoring and
// IsolationForest for unsupervised anomaly detection.
//
// Both ensembles build their trees concurrently through core/parallel. Each
// tree draws from its own random source seeded with RandomState plus the
// tree index, so a fitted forest does not depend on the worker count.
package ensemble
