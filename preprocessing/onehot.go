package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// HandleUnknown の取りうる値
const (
	HandleUnknownIgnore = "ignore"
	HandleUnknownError  = "error"
)

// OneHotEncoder はscikit-learn互換のワンホットエンコーダー
// 学習時に観測したカテゴリ (列ごとに辞書順) を指示ベクトルに展開する。
//
// HandleUnknown が "ignore" (デフォルト) の場合、未知のカテゴリは
// その列の全要素が0のベクトルになる。
type OneHotEncoder struct {
	State *model.FitState

	// Categories は列ごとの既知カテゴリ (辞書順)
	Categories [][]string

	// Offsets は各列の出力開始位置
	Offsets []int

	// HandleUnknown は "ignore" または "error"
	HandleUnknown string
}

// NewOneHotEncoder は新しいOneHotEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewOneHotEncoder(preprocessing.HandleUnknownIgnore)
//	err := enc.Fit(rows)
//	X, err := enc.Transform(rows)
func NewOneHotEncoder(handleUnknown string) *OneHotEncoder {
	if handleUnknown == "" {
		handleUnknown = HandleUnknownIgnore
	}
	return &OneHotEncoder{
		State:         model.NewFitState(),
		HandleUnknown: handleUnknown,
	}
}

// Fit は各列のカテゴリを学習する。rows は [行][列] の文字列
func (e *OneHotEncoder) Fit(rows [][]string) error {
	if len(rows) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	nCols := len(rows[0])
	for _, r := range rows {
		if len(r) != nCols {
			return errors.NewDimensionError("OneHotEncoder.Fit", nCols, len(r), 1)
		}
	}

	e.Categories = make([][]string, nCols)
	e.Offsets = make([]int, nCols)
	offset := 0
	for j := 0; j < nCols; j++ {
		seen := make(map[string]struct{})
		for _, r := range rows {
			seen[r[j]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for c := range seen {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
		e.Offsets[j] = offset
		offset += len(cats)
	}

	if e.State == nil {
		e.State = model.NewFitState()
	}
	e.State.SetDimensions(nCols, len(rows))
	e.State.SetFitted()
	return nil
}

// NOutputs returns the width of the encoded matrix.
func (e *OneHotEncoder) NOutputs() int {
	n := 0
	for _, c := range e.Categories {
		n += len(c)
	}
	return n
}

// Transform はカテゴリ値をワンホット行列に変換する
// 出力幅が0 (カテゴリ列なし) の場合は nil を返す。
func (e *OneHotEncoder) Transform(rows [][]string) (*mat.Dense, error) {
	if err := e.State.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	width := e.NOutputs()
	if width == 0 || len(rows) == 0 {
		return nil, nil
	}
	lookup := e.lookup()

	out := mat.NewDense(len(rows), width, nil)
	for i, r := range rows {
		if len(r) != len(e.Categories) {
			return nil, errors.NewDimensionError("OneHotEncoder.Transform", len(e.Categories), len(r), 1)
		}
		for j, v := range r {
			k, ok := lookup[j][v]
			if !ok {
				if e.HandleUnknown == HandleUnknownError {
					return nil, errors.NewSchemaErrorf("OneHotEncoder.Transform", "unknown category %q in column %d", v, j)
				}
				continue
			}
			out.Set(i, e.Offsets[j]+k, 1)
		}
	}
	return out, nil
}

// lookup builds the category → position maps for one Transform call so
// that a fitted encoder is never written to after Fit.
func (e *OneHotEncoder) lookup() []map[string]int {
	idx := make([]map[string]int, len(e.Categories))
	for j, cats := range e.Categories {
		m := make(map[string]int, len(cats))
		for k, c := range cats {
			m[c] = k
		}
		idx[j] = m
	}
	return idx
}

// GetParams はエンコーダーのパラメータを取得する
func (e *OneHotEncoder) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"handle_unknown": e.HandleUnknown,
	}
}
