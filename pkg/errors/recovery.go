package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// PanicError は学習・復元処理中の panic を error に変換したものです。
// 木の分割や gob の復元で起きた範囲外アクセスがサーバーを落とさないよう、
// 呼び出し側はこの型で 500 を返します。
type PanicError struct {
	Stage string
	Value interface{}
	cause error
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Stage, e.Value)
}

// Unwrap は panic 値が error だった場合にそれを返し、
// そうでなければスタック付きの内部エラーを返します。
func (e *PanicError) Unwrap() error { return e.cause }

// Stack は panic 発生地点のスタックトレースを整形して返します。
func (e *PanicError) Stack() string {
	return fmt.Sprintf("%+v", e.cause)
}

// NewPanicError は recover() の戻り値から PanicError を作ります。
func NewPanicError(stage string, value interface{}) *PanicError {
	cause, ok := value.(error)
	if !ok {
		cause = errors.Newf("%v", value)
	}
	return &PanicError{Stage: stage, Value: value, cause: errors.WithStackDepth(cause, 2)}
}

// Recover は defer で呼び出し、panic を *err に書き戻します。
//
//	func (f *IsolationForest) Fit(X mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "IsolationForest.Fit")
//	    ...
//	}
//
// 既にエラーが設定されていれば、それを保持したまま panic 情報を付与します。
func Recover(err *error, stage string) {
	r := recover()
	if r == nil {
		return
	}
	pe := NewPanicError(stage, r)
	if *err != nil {
		*err = errors.WithSecondaryError(*err, pe)
		*err = errors.Wrapf(*err, "panic in %s: %v", stage, r)
		return
	}
	*err = pe
}

// SafeExecute は fn を実行し、panic を PanicError として返します。
func SafeExecute(stage string, fn func() error) (err error) {
	defer Recover(&err, stage)
	return fn()
}
