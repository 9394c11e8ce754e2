package dataset

import (
	"math"
	"math/rand"
	"strconv"
)

// SyntheticTarget is the target column written by Synthetic.
const SyntheticTarget = "Risk"

// Synthetic generates a German-credit-shaped table with n rows, of which
// round(n*badRate) carry Risk="bad". Defaulters skew toward longer durations,
// larger amounts and thin checking accounts. The id column DefaultIDColumn is
// included so loaders exercise dropping it.
func Synthetic(n int, badRate float64, seed int64) *Table {
	rng := rand.New(rand.NewSource(seed))
	nBad := int(math.Round(float64(n) * badRate))
	bad := make([]bool, n)
	for i := 0; i < nBad; i++ {
		bad[i] = true
	}
	rng.Shuffle(n, func(a, b int) { bad[a], bad[b] = bad[b], bad[a] })

	columns := []string{
		DefaultIDColumn, "Age", "Sex", "Job", "Housing", "Saving accounts",
		"Checking account", "Credit amount", "Duration", "Purpose", SyntheticTarget,
	}
	purposes := []string{"car", "radio/TV", "furniture/equipment", "business", "education", "repairs", "domestic appliances", "vacation/others"}

	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		age := clampRound(rng.NormFloat64()*10+37, 19, 75)
		amount := clampRound(rng.NormFloat64()*1500+2800, 250, 18000)
		duration := clampRound(rng.NormFloat64()*8+18, 4, 72)
		checking := weighted(rng, []string{"little", "moderate", "rich", ""}, []float64{0.25, 0.25, 0.1, 0.4})
		saving := weighted(rng, []string{"little", "moderate", "quite rich", "rich", ""}, []float64{0.55, 0.12, 0.07, 0.06, 0.2})
		risk := "good"
		if bad[i] {
			age = clampRound(rng.NormFloat64()*8+31, 19, 75)
			amount = clampRound(rng.NormFloat64()*2200+4800, 250, 18000)
			duration = clampRound(rng.NormFloat64()*10+30, 4, 72)
			checking = weighted(rng, []string{"little", "moderate", "rich", ""}, []float64{0.5, 0.3, 0.05, 0.15})
			saving = weighted(rng, []string{"little", "moderate", "quite rich", "rich", ""}, []float64{0.75, 0.1, 0.03, 0.02, 0.1})
			risk = "bad"
		}
		rows[i] = []string{
			strconv.Itoa(i),
			strconv.Itoa(age),
			weighted(rng, []string{"male", "female"}, []float64{0.69, 0.31}),
			strconv.Itoa(weightedInt(rng, []float64{0.02, 0.2, 0.63, 0.15})),
			weighted(rng, []string{"own", "rent", "free"}, []float64{0.71, 0.18, 0.11}),
			saving,
			checking,
			strconv.Itoa(amount),
			strconv.Itoa(duration),
			purposes[rng.Intn(len(purposes))],
			risk,
		}
	}

	t, err := NewTable(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

func clampRound(v, lo, hi float64) int {
	return int(math.Round(math.Min(math.Max(v, lo), hi)))
}

func weighted(rng *rand.Rand, values []string, weights []float64) string {
	return values[weightedInt(rng, weights)]
}

func weightedInt(rng *rand.Rand, weights []float64) int {
	r := rng.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}
