// Package over_sampling provides resamplers for imbalanced classification,
// compatible with imbalanced-learn's over_sampling module.
package over_sampling

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

var _ model.Resampler = (*SMOTE)(nil)

// SMOTE synthesizes new minority rows by interpolating between a minority
// sample and one of its k nearest same-class neighbours.
//
// The zero value is not usable; create instances with NewSMOTE. A SMOTE holds
// configuration only, so one instance may be shared between pipelines.
type SMOTE struct {
	// KNeighbors is the number of neighbours considered (default 5). It is
	// reduced to n_minority-1 when a class is smaller.
	KNeighbors int
	// SamplingRatio is the target size of every non-majority class as a
	// fraction of the majority class (default 1.0, exact balance).
	SamplingRatio float64
	RandomState   int64
}

// Option configures SMOTE.
type Option func(*SMOTE)

// WithKNeighbors sets the neighbourhood size.
func WithKNeighbors(k int) Option {
	return func(s *SMOTE) { s.KNeighbors = k }
}

// WithSamplingRatio sets minority/majority after resampling.
func WithSamplingRatio(r float64) Option {
	return func(s *SMOTE) { s.SamplingRatio = r }
}

// WithRandomState sets the seed.
func WithRandomState(seed int64) Option {
	return func(s *SMOTE) { s.RandomState = seed }
}

// NewSMOTE creates a SMOTE resampler.
func NewSMOTE(opts ...Option) *SMOTE {
	s := &SMOTE{KNeighbors: 5, SamplingRatio: 1.0}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resample returns the original rows followed by the synthetic rows.
// X and y are not modified.
func (s *SMOTE) Resample(X, y mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	n, d := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 {
		return nil, nil, errors.NewTrainingError("SMOTE.Resample", 0, "no samples to resample")
	}
	if n != yRows {
		return nil, nil, errors.NewDimensionError("SMOTE.Resample", n, yRows, 0)
	}
	if yCols != 1 {
		return nil, nil, errors.NewValueError("SMOTE.Resample", fmt.Sprintf("y must be a column vector, got %d columns", yCols))
	}
	if s.KNeighbors < 1 {
		return nil, nil, errors.NewValidationError("k_neighbors", "must be at least 1", s.KNeighbors)
	}
	if s.SamplingRatio <= 0 || s.SamplingRatio > 1 {
		return nil, nil, errors.NewValidationError("sampling_ratio", "must be in (0, 1]", s.SamplingRatio)
	}

	byClass := make(map[float64][]int)
	for i := 0; i < n; i++ {
		c := y.At(i, 0)
		byClass[c] = append(byClass[c], i)
	}
	classes := make([]float64, 0, len(byClass))
	majority, minority := 0, n
	for c, idx := range byClass {
		classes = append(classes, c)
		majority = max(majority, len(idx))
		minority = min(minority, len(idx))
	}
	sort.Float64s(classes)
	target := int(math.Round(s.SamplingRatio * float64(majority)))

	rng := rand.New(rand.NewSource(s.RandomState))
	var synthX [][]float64
	var synthY []float64

	for _, c := range classes {
		members := byClass[c]
		need := target - len(members)
		if need <= 0 {
			continue
		}
		if len(members) < 2 {
			return nil, nil, errors.NewTrainingError("SMOTE.Resample", n,
				fmt.Sprintf("class %v has %d sample(s); SMOTE needs at least 2", c, len(members)))
		}
		k := min(s.KNeighbors, len(members)-1)

		rows := make([][]float64, len(members))
		for i, idx := range members {
			rows[i] = mat.Row(nil, idx, X)
		}
		neighbors := nearestNeighbors(rows, k)

		for j := 0; j < need; j++ {
			pick := rng.Intn(len(rows) * k)
			base := rows[pick/k]
			nn := rows[neighbors[pick/k][pick%k]]
			step := rng.Float64()

			row := make([]float64, d)
			floats.SubTo(row, nn, base)
			floats.Scale(step, row)
			floats.Add(row, base)
			synthX = append(synthX, row)
			synthY = append(synthY, c)
		}
	}

	outX := mat.NewDense(n+len(synthX), d, nil)
	outY := mat.NewDense(n+len(synthX), 1, nil)
	outX.Slice(0, n, 0, d).(*mat.Dense).Copy(X)
	outY.Slice(0, n, 0, 1).(*mat.Dense).Copy(y)
	for j, row := range synthX {
		outX.SetRow(n+j, row)
		outY.Set(n+j, 0, synthY[j])
	}

	log.GetLoggerWithName("over_sampling").Debug("smote resampled",
		log.OperationKey, log.OperationResample,
		log.SamplesKey, n,
		log.SyntheticKey, len(synthX),
		log.MajorityKey, majority,
		log.MinorityKey, minority,
		log.RandomSeedKey, s.RandomState,
	)
	return outX, outY, nil
}

// nearestNeighbors returns, for every row, the indices of its k nearest other
// rows by Euclidean distance. Ties keep the lower index.
func nearestNeighbors(rows [][]float64, k int) [][]int {
	out := make([][]int, len(rows))
	order := make([]int, 0, len(rows)-1)
	dist := make([]float64, len(rows))
	for i, a := range rows {
		order = order[:0]
		for j, b := range rows {
			if j == i {
				continue
			}
			dist[j] = floats.Distance(a, b, 2)
			order = append(order, j)
		}
		sort.SliceStable(order, func(p, q int) bool { return dist[order[p]] < dist[order[q]] })
		out[i] = append([]int(nil), order[:k]...)
	}
	return out
}

// GetParams returns the configuration.
func (s *SMOTE) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"k_neighbors":    s.KNeighbors,
		"sampling_ratio": s.SamplingRatio,
		"random_state":   s.RandomState,
	}
}
