package metrics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// Percentile は numpy.percentile の既定 (linear) と同じ補間で p パーセンタイルを返す。
// p は [0, 100]。
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.NewValueError("Percentile", "empty input")
	}
	if p < 0 || p > 100 || math.IsNaN(p) {
		return 0, errors.NewValueError("Percentile", "p must be in [0, 100]")
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo]), nil
}

// Summary はスコア分布の要約統計量
type Summary struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P10  float64 `json:"p10"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
}

// Summarize は values の平均・標準偏差 (母集団)・最小・最大と 10/50/90 パーセンタイルを計算する
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, errors.NewValueError("Summarize", "empty input")
	}
	data := stats.Float64Data(values)
	s := Summary{N: len(values)}
	var err error
	if s.Mean, err = data.Mean(); err != nil {
		return Summary{}, errors.Wrap(err, "Summarize")
	}
	if s.Std, err = data.StandardDeviationPopulation(); err != nil {
		return Summary{}, errors.Wrap(err, "Summarize")
	}
	if s.Min, err = data.Min(); err != nil {
		return Summary{}, errors.Wrap(err, "Summarize")
	}
	if s.Max, err = data.Max(); err != nil {
		return Summary{}, errors.Wrap(err, "Summarize")
	}
	for _, q := range []struct {
		p   float64
		dst *float64
	}{{10, &s.P10}, {50, &s.P50}, {90, &s.P90}} {
		if *q.dst, err = Percentile(values, q.p); err != nil {
			return Summary{}, err
		}
	}
	return s, nil
}
