// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 信用リスクパイプラインの各段階 (スキーマ検証、学習、推論、評価、永続化) が
// 返すエラーを型で区別できるようにし、呼び出し側が再試行・致命的エラーを判断できるようにします。
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// 警告は学習を止めずに呼び出し側へ知らせるためのもの。pkg/log が import
// されていれば sink (zerolog) に流れ、そうでなければ handler に渡る。
var warnings = struct {
	sync.RWMutex
	handler func(error)
	sink    func(error)
}{
	handler: func(w error) { log.Printf("creditrisk-warning: %v", w) },
}

// SetWarningHandler replaces the fallback used when no zerolog sink is set.
//
//	errors.SetWarningHandler(func(error) {}) // 警告を捨てる
func SetWarningHandler(handler func(w error)) {
	warnings.Lock()
	warnings.handler = handler
	warnings.Unlock()
}

// SetZerologWarnFunc は pkg/log の init から呼ばれる。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warnings.Lock()
	warnings.sink = warnFunc
	warnings.Unlock()
}

// Warn reports w without failing the current operation. The callback runs
// outside the lock, so it may itself call Warn.
func Warn(w error) {
	warnings.RLock()
	sink, handler := warnings.sink, warnings.handler
	warnings.RUnlock()
	switch {
	case sink != nil:
		sink(w)
	case handler != nil:
		handler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning は最適化アルゴリズムが収束しなかった場合に発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、適合率(precision)を計算する際に、陽性クラスの予測が一つもなかった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	パイプラインのエラー分類
//
// ===========================================================================

// SchemaError は入力テーブルの形状がFeatureSchemaと一致しない場合のエラーです。
// 列の欠落・列名の誤り・数値列のパース失敗・特徴量数の不一致を含みます。
type SchemaError struct {
	Op      string
	Missing []string // 欠落している列 (schema順)
	Reason  string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "creditrisk: %s: schema mismatch", e.Op)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing column(s) %s", quoteJoin(e.Missing))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Strs("missing", e.Missing).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError は欠落列を列挙したSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaError(op string, missing []string) error {
	cp := make([]string, len(missing))
	copy(cp, missing)
	return errors.WithStack(&SchemaError{Op: op, Missing: cp})
}

// NewSchemaErrorf は理由付きのSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaErrorf(op, format string, args ...interface{}) error {
	return errors.WithStack(&SchemaError{Op: op, Reason: fmt.Sprintf(format, args...)})
}

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("creditrisk: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// TrainingError は学習データが不十分または退化している場合のエラーです。
// 例: サンプル数が最小数未満、ラベルが単一クラスのみ。
type TrainingError struct {
	Op       string
	Reason   string
	NSamples int
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("creditrisk: %s: cannot train on %d sample(s): %s", e.Op, e.NSamples, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TrainingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Int("n_samples", e.NSamples).
		Str("type", "TrainingError")
}

// NewTrainingError は新しいTrainingErrorを作成し、スタックトレースを付与します。
func NewTrainingError(op string, nSamples int, reason string) error {
	return errors.WithStack(&TrainingError{Op: op, Reason: reason, NSamples: nSamples})
}

// MissingLabelsError は教師あり評価がラベルなしで要求された場合のエラーです。
type MissingLabelsError struct {
	Op string
}

func (e *MissingLabelsError) Error() string {
	return fmt.Sprintf("creditrisk: %s: supervised evaluation requires ground-truth labels", e.Op)
}

// NewMissingLabelsError は新しいMissingLabelsErrorを作成し、スタックトレースを付与します。
func NewMissingLabelsError(op string) error {
	return errors.WithStack(&MissingLabelsError{Op: op})
}

// SerializationError はアーティファクトのバイト列が破損している、
// またはバージョン互換性がない場合のエラーです。
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("creditrisk: %s: artifact serialization failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("creditrisk: %s: artifact serialization failed", e.Op)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// NewSerializationError は新しいSerializationErrorを作成し、スタックトレースを付与します。
func NewSerializationError(op string, err error) error {
	return errors.WithStack(&SerializationError{Op: op, Err: err})
}

// ===========================================================================
//
//	汎用エラー型
//
// ===========================================================================

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("creditrisk: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("creditrisk: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("creditrisk: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("creditrisk: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("creditrisk: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors の薄いラッパー
//
// ===========================================================================

func Is(err, target error) bool             { return errors.Is(err, target) }
func As(err error, target interface{}) bool { return errors.As(err, target) }
func New(message string) error              { return errors.New(message) }
func WithStack(err error) error             { return errors.WithStack(err) }
func Wrap(err error, message string) error  { return errors.Wrap(err, message) }

func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// has reports whether err's chain contains a *T.
func has[T any](err error) bool {
	var target *T
	return errors.As(err, &target)
}

// IsSchemaError: 入力テーブルと FeatureSchema の不一致 (HTTP 422)。
func IsSchemaError(err error) bool { return has[SchemaError](err) }

// IsNotFitted: 未学習モデルの利用 (HTTP 503)。
func IsNotFitted(err error) bool { return has[NotFittedError](err) }

func IsTrainingError(err error) bool      { return has[TrainingError](err) }
func IsMissingLabels(err error) bool      { return has[MissingLabelsError](err) }
func IsSerializationError(err error) bool { return has[SerializationError](err) }

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

// ErrEmptyData は行または列が0の行列を渡された場合に使う。
var ErrEmptyData = New("empty data")
