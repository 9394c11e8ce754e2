package dataset

import (
	"math"
	"math/rand"
	"sort"

	crerrors "github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// TestCount returns the number of held-out rows for n rows and a fractional
// test size: ceil(n*testSize), kept within [1, n-1].
func TestCount(n int, testSize float64) (int, error) {
	if testSize <= 0 || testSize >= 1 {
		return 0, crerrors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	if n < 2 {
		return 0, crerrors.NewTrainingError("Split", n, "need at least 2 rows to split")
	}
	nTest := int(math.Ceil(float64(n)*testSize - 1e-9))
	return min(max(nTest, 1), n-1), nil
}

// ShuffleSplit returns sorted train and test row indices of a seeded random
// split of n rows.
func ShuffleSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	nTest, err := TestCount(n, testSize)
	if err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedSplit returns sorted train and test indices whose class
// proportions follow labels. Each class contributes its share of the test
// rows; leftover rows go to the classes with the largest remainders.
func StratifiedSplit(labels []float64, testSize float64, seed int64) (train, test []int, err error) {
	n := len(labels)
	nTest, err := TestCount(n, testSize)
	if err != nil {
		return nil, nil, err
	}

	byClass := make(map[float64][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	type share struct {
		class float64
		take  int
		frac  float64
	}
	shares := make([]share, len(classes))
	allocated := 0
	for k, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		take := int(math.Floor(exact))
		shares[k] = share{class: c, take: take, frac: exact - float64(take)}
		allocated += take
	}
	order := make([]int, len(shares))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return shares[order[a]].frac > shares[order[b]].frac })
	for k := 0; allocated < nTest; k = (k + 1) % len(order) {
		s := &shares[order[k]]
		if s.take < len(byClass[s.class]) {
			s.take++
			allocated++
		}
	}

	rng := rand.New(rand.NewSource(seed))
	for _, s := range shares {
		idx := append([]int(nil), byClass[s.class]...)
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		test = append(test, idx[:s.take]...)
		train = append(train, idx[s.take:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// Split is a table divided into train and held-out parts.
type Split struct {
	Train, Test             *Table
	TrainLabels, TestLabels []float64
}

// SplitTable splits t. When labels is non-nil the split is stratified on it;
// otherwise it is a plain seeded shuffle split.
func SplitTable(t *Table, labels []float64, testSize float64, seed int64) (*Split, error) {
	var (
		train, test []int
		err         error
	)
	if labels != nil {
		if len(labels) != t.NRows() {
			return nil, crerrors.NewDimensionError("SplitTable", t.NRows(), len(labels), 0)
		}
		train, test, err = StratifiedSplit(labels, testSize, seed)
	} else {
		train, test, err = ShuffleSplit(t.NRows(), testSize, seed)
	}
	if err != nil {
		return nil, err
	}

	s := &Split{Train: t.Select(train), Test: t.Select(test)}
	if labels != nil {
		s.TrainLabels = pick(labels, train)
		s.TestLabels = pick(labels, test)
	}
	return s, nil
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = v[i]
	}
	return out
}
