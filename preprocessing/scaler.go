package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

var (
	_ model.Transformer = (*StandardScaler)(nil)
	_ model.Transformer = (*MinMaxScaler)(nil)
)

// zeroScaleTol 未満の標準偏差は0として扱う
const zeroScaleTol = 1e-8

// StandardScaler は数値列を平均0・母標準偏差1に揃える。
// 学習時に分散0だった列は、推論時の値にかかわらず常に0を出力する。
type StandardScaler struct {
	State *model.FitState

	Mean  []float64
	Scale []float64 // 0 は定数列

	NFeatures int
	WithMean  bool
	WithStd   bool
}

func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{State: model.NewFitState(), WithMean: withMean, WithStd: withStd}
}

// NewStandardScalerDefault centers and scales.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit records the per-column mean and population standard deviation.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := range s.Mean {
		mat.Col(col, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)
		if err := errors.CheckScalar("StandardScaler.Fit", mean, j); err != nil {
			return err
		}
		std := math.Sqrt(variance)
		if s.WithMean {
			s.Mean[j] = mean
		}
		switch {
		case std < zeroScaleTol:
			s.Scale[j] = 0
		case s.WithStd:
			s.Scale[j] = std
		default:
			s.Scale[j] = 1
		}
	}

	s.NFeatures = c
	if s.State == nil {
		s.State = model.NewFitState()
	}
	s.State.SetDimensions(c, r)
	s.State.SetFitted()
	return nil
}

// Transform returns a standardized copy of X.
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.State.Check("StandardScaler", "Transform", X); err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(X)
	out.Apply(func(_, j int, v float64) float64 {
		if s.Scale[j] == 0 {
			return 0
		}
		return (v - s.Mean[j]) / s.Scale[j]
	}, out)
	return out, nil
}

func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{"with_mean": s.WithMean, "with_std": s.WithStd}
}

// MinMaxScaler maps each column's training [min, max] onto FeatureRange.
//
// With Epsilon > 0 every denominator is (max - min + Epsilon), so a constant
// column never divides by zero. Clip clamps values outside the training range.
type MinMaxScaler struct {
	State *model.FitState

	DataMin []float64
	DataMax []float64
	Scale   []float64 // 分母

	NFeatures    int
	FeatureRange [2]float64
	Epsilon      float64
	Clip         bool
}

// MinMaxOption configures a MinMaxScaler.
type MinMaxOption func(*MinMaxScaler)

// WithEpsilon adds eps to every denominator.
func WithEpsilon(eps float64) MinMaxOption {
	return func(m *MinMaxScaler) { m.Epsilon = eps }
}

// WithClip clamps transformed values into the feature range.
func WithClip(clip bool) MinMaxOption {
	return func(m *MinMaxScaler) { m.Clip = clip }
}

// NewMinMaxScaler は featureRange へ写すスケーラーを作る。
//
//	risk := preprocessing.NewMinMaxScaler([2]float64{0, 1}, preprocessing.WithClip(true))
func NewMinMaxScaler(featureRange [2]float64, opts ...MinMaxOption) *MinMaxScaler {
	m := &MinMaxScaler{State: model.NewFitState(), FeatureRange: featureRange}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0, 1})
}

// Fit records the per-column extremes.
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	m.DataMin = make([]float64, c)
	m.DataMax = make([]float64, c)
	m.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := range m.Scale {
		mat.Col(col, j, X)
		lo, hi := floats.Min(col), floats.Max(col)
		m.DataMin[j], m.DataMax[j] = lo, hi
		switch span := hi - lo; {
		case m.Epsilon > 0:
			m.Scale[j] = span + m.Epsilon
		case span < zeroScaleTol:
			m.Scale[j] = 1 // 定数列は下限に写る
		default:
			m.Scale[j] = span
		}
	}

	m.NFeatures = c
	if m.State == nil {
		m.State = model.NewFitState()
	}
	m.State.SetDimensions(c, r)
	m.State.SetFitted()
	return nil
}

// Transform returns a rescaled copy of X.
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.State.Check("MinMaxScaler", "Transform", X); err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(X)
	out.Apply(func(_, j int, v float64) float64 { return m.scale(v, j) }, out)
	return out, nil
}

// TransformValues rescales a single score column given as a slice.
func (m *MinMaxScaler) TransformValues(values []float64) ([]float64, error) {
	if err := m.State.RequireFitted("MinMaxScaler", "TransformValues"); err != nil {
		return nil, err
	}
	if m.NFeatures != 1 {
		return nil, errors.NewDimensionError("MinMaxScaler.TransformValues", m.NFeatures, 1, 1)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = m.scale(v, 0)
	}
	return out, nil
}

func (m *MinMaxScaler) scale(v float64, j int) float64 {
	lo, hi := m.FeatureRange[0], m.FeatureRange[1]
	out := lo + (v-m.DataMin[j])/m.Scale[j]*(hi-lo)
	if m.Clip {
		return errors.ClipValue(out, lo, hi)
	}
	return out
}

func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.FeatureRange,
		"epsilon":       m.Epsilon,
		"clip":          m.Clip,
	}
}
