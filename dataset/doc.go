// Package dataset holds the tabular input side of the credit-risk pipeline:
// the validated feature Schema, immutable string-celled Tables, the numeric
// Frame produced by validation, CSV/XLSX loading and deterministic
// train/test splits.
package dataset
