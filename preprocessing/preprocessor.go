package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

// Preprocessor はscikit-learnのColumnTransformer相当
// 数値列を StandardScaler で標準化し、カテゴリ列を OneHotEncoder で展開して
// [数値列 (スキーマ順) | ワンホット列 (スキーマ順、カテゴリ辞書順)] の行列を作る。
//
// 学習済み状態はすべて公開フィールドに保持され、gob でそのまま永続化できる。
type Preprocessor struct {
	State   *model.FitState
	Schema  *dataset.Schema
	Scaler  *StandardScaler
	Encoder *OneHotEncoder
}

// NewPreprocessor は未学習のPreprocessorを作成する
func NewPreprocessor(schema *dataset.Schema) *Preprocessor {
	return &Preprocessor{
		State:  model.NewFitState(),
		Schema: schema,
	}
}

// Fit はテーブルを検証し、スケーラーとエンコーダーを新しく学習する。
// 既存の学習済み状態は丸ごと置き換えられる。
func (p *Preprocessor) Fit(t *dataset.Table) error {
	frame, err := p.Schema.Validate(t, false)
	if err != nil {
		return err
	}
	return p.FitFrame(frame)
}

// FitFrame は検証済みの Frame から学習する
func (p *Preprocessor) FitFrame(frame *dataset.Frame) error {
	logger := log.GetLoggerWithName("preprocessing")

	var scaler *StandardScaler
	if frame.Numeric != nil {
		scaler = NewStandardScalerDefault()
		if err := scaler.Fit(frame.Numeric); err != nil {
			return errors.Wrap(err, "fit numeric scaler")
		}
	}

	var encoder *OneHotEncoder
	if len(p.Schema.Categorical) > 0 {
		encoder = NewOneHotEncoder(HandleUnknownIgnore)
		if err := encoder.Fit(frame.Categorical); err != nil {
			return errors.Wrap(err, "fit one-hot encoder")
		}
	}

	p.Scaler = scaler
	p.Encoder = encoder
	if p.State == nil {
		p.State = model.NewFitState()
	}
	p.State.SetDimensions(p.NFeatures(), frame.NRows())
	p.State.SetFitted()

	logger.Debug("Preprocessor fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, frame.NRows(),
		log.FeaturesKey, p.NFeatures(),
	)
	return nil
}

// Transform はテーブルを検証し、学習済み状態で特徴量行列に変換する。
// 返り値は常に新しく確保された行列で、入力とメモリを共有しない。
func (p *Preprocessor) Transform(t *dataset.Table) (*mat.Dense, error) {
	if err := p.State.RequireFitted("Preprocessor", "Transform"); err != nil {
		return nil, err
	}
	frame, err := p.Schema.Validate(t, false)
	if err != nil {
		return nil, err
	}
	return p.TransformFrame(frame)
}

// TransformFrame は検証済みの Frame を変換する
func (p *Preprocessor) TransformFrame(frame *dataset.Frame) (*mat.Dense, error) {
	if err := p.State.RequireFitted("Preprocessor", "Transform"); err != nil {
		return nil, err
	}

	n := frame.NRows()
	out := mat.NewDense(n, p.NFeatures(), nil)
	col := 0

	if p.Scaler != nil {
		if frame.Numeric == nil {
			return nil, errors.NewSchemaErrorf("Preprocessor.Transform", "numeric block missing")
		}
		scaled, err := p.Scaler.Transform(frame.Numeric)
		if err != nil {
			return nil, err
		}
		_, c := scaled.Dims()
		out.Slice(0, n, 0, c).(*mat.Dense).Copy(scaled)
		col = c
	}

	if p.Encoder != nil {
		encoded, err := p.Encoder.Transform(frame.Categorical)
		if err != nil {
			return nil, err
		}
		if encoded != nil {
			_, c := encoded.Dims()
			out.Slice(0, n, col, col+c).(*mat.Dense).Copy(encoded)
		}
	}
	return out, nil
}

// FitTransform は Fit と Transform を同じテーブルに対して行う
func (p *Preprocessor) FitTransform(t *dataset.Table) (*mat.Dense, error) {
	frame, err := p.Schema.Validate(t, false)
	if err != nil {
		return nil, err
	}
	if err := p.FitFrame(frame); err != nil {
		return nil, err
	}
	return p.TransformFrame(frame)
}

// NFeatures returns the width of the transformed matrix.
func (p *Preprocessor) NFeatures() int {
	n := 0
	if p.Scaler != nil {
		n += p.Scaler.NFeatures
	}
	if p.Encoder != nil {
		n += p.Encoder.NOutputs()
	}
	return n
}

// FeatureNames returns output column names: "num__<col>" for numeric columns
// and "cat__<col>_<category>" for one-hot columns, in output order.
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.NFeatures())
	if p.Scaler != nil {
		for _, c := range p.Schema.Numeric {
			names = append(names, "num__"+c)
		}
	}
	if p.Encoder != nil {
		for j, c := range p.Schema.Categorical {
			for _, cat := range p.Encoder.Categories[j] {
				names = append(names, fmt.Sprintf("cat__%s_%s", c, cat))
			}
		}
	}
	return names
}

// IsFitted reports whether Fit has completed.
func (p *Preprocessor) IsFitted() bool {
	return p.State.IsFitted()
}
