package dataset

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	crerrors "github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// DefaultIDColumn is the unnamed index column pandas writes into the German
// credit CSV. Loaders drop it.
const DefaultIDColumn = "Unnamed: 0"

// Form defaults used when a serving request leaves a column out.
const (
	UnknownCategory = "unknown"
	ZeroNumeric     = "0"
)

// Schema declares which columns are numeric, which are categorical and,
// optionally, which column holds the binary target.
//
// Fields are exported for gob encoding only; construct with NewSchema.
type Schema struct {
	Numeric     []string
	Categorical []string
	Target      string
}

// NewSchema validates and builds a Schema. Column names must be non-empty and
// unique across numeric, categorical and target.
func NewSchema(numeric, categorical []string, target string) (*Schema, error) {
	if len(numeric)+len(categorical) == 0 {
		return nil, crerrors.NewSchemaErrorf("NewSchema", "no feature columns declared")
	}

	seen := make(map[string]string)
	check := func(name, kind string) error {
		if strings.TrimSpace(name) == "" {
			return crerrors.NewSchemaErrorf("NewSchema", "empty %s column name", kind)
		}
		if prev, dup := seen[name]; dup {
			return crerrors.NewSchemaErrorf("NewSchema", "column %q declared as both %s and %s", name, prev, kind)
		}
		seen[name] = kind
		return nil
	}
	for _, c := range numeric {
		if err := check(c, "numeric"); err != nil {
			return nil, err
		}
	}
	for _, c := range categorical {
		if err := check(c, "categorical"); err != nil {
			return nil, err
		}
	}
	if target != "" {
		if err := check(target, "target"); err != nil {
			return nil, err
		}
	}

	return &Schema{
		Numeric:     slices.Clone(numeric),
		Categorical: slices.Clone(categorical),
		Target:      target,
	}, nil
}

// GermanCreditSchema returns the schema of the German credit dataset.
// target may be empty for unsupervised use.
func GermanCreditSchema(target string) *Schema {
	s, err := NewSchema(
		[]string{"Age", "Credit amount", "Duration"},
		[]string{"Sex", "Job", "Housing", "Saving accounts", "Checking account", "Purpose"},
		target,
	)
	if err != nil {
		panic(err)
	}
	return s
}

// NumericColumns returns the numeric columns in schema order.
func (s *Schema) NumericColumns() []string { return slices.Clone(s.Numeric) }

// CategoricalColumns returns the categorical columns in schema order.
func (s *Schema) CategoricalColumns() []string { return slices.Clone(s.Categorical) }

// TargetColumn returns the target column name, or "".
func (s *Schema) TargetColumn() string { return s.Target }

// HasTarget reports whether a target column is declared.
func (s *Schema) HasTarget() bool { return s.Target != "" }

// FeatureColumns returns numeric then categorical columns.
func (s *Schema) FeatureColumns() []string {
	return append(s.NumericColumns(), s.Categorical...)
}

// Equal reports whether two schemas declare the same columns in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	return slices.Equal(s.Numeric, o.Numeric) &&
		slices.Equal(s.Categorical, o.Categorical) &&
		s.Target == o.Target
}

// FormDefaults returns the placeholder record a blank serving form submits:
// every numeric column "0", every categorical column "unknown".
func (s *Schema) FormDefaults() map[string]string {
	out := make(map[string]string, len(s.Numeric)+len(s.Categorical))
	for _, c := range s.Numeric {
		out[c] = ZeroNumeric
	}
	for _, c := range s.Categorical {
		out[c] = UnknownCategory
	}
	return out
}

// Frame is a table that passed validation: numeric cells parsed into a
// matrix, categorical cells kept as strings, labels parsed when requested.
type Frame struct {
	// Numeric is (rows, len(schema.Numeric)); nil when the schema has no numeric columns.
	Numeric *mat.Dense
	// Categorical is indexed [row][categorical column].
	Categorical [][]string
	// Labels holds 0/1 targets, nil when the target was not required.
	Labels []float64

	rows int
}

// NRows returns the number of validated rows.
func (f *Frame) NRows() int { return f.rows }

// Validate checks that t carries every declared column (and the target when
// requireTarget is set) and parses it into a Frame. Every missing column is
// named in the returned SchemaError.
func (s *Schema) Validate(t *Table, requireTarget bool) (*Frame, error) {
	if requireTarget && !s.HasTarget() {
		return nil, crerrors.NewSchemaErrorf("Schema.Validate", "labels requested but schema declares no target column")
	}

	var missing []string
	for _, c := range s.FeatureColumns() {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if requireTarget && !t.Has(s.Target) {
		missing = append(missing, s.Target)
	}
	if len(missing) > 0 {
		return nil, crerrors.NewSchemaError("Schema.Validate", missing)
	}
	if t.NRows() == 0 {
		return nil, crerrors.NewSchemaErrorf("Schema.Validate", "table has no rows")
	}

	n := t.NRows()
	f := &Frame{rows: n}

	if len(s.Numeric) > 0 {
		f.Numeric = mat.NewDense(n, len(s.Numeric), nil)
		for j, c := range s.Numeric {
			for i := 0; i < n; i++ {
				cell, _ := t.Cell(i, c)
				v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
				if err != nil {
					return nil, crerrors.NewSchemaErrorf("Schema.Validate", "column %q row %d: %q is not numeric", c, i, cell)
				}
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, crerrors.NewSchemaErrorf("Schema.Validate", "column %q row %d: %q is not a finite number", c, i, cell)
				}
				f.Numeric.Set(i, j, v)
			}
		}
	}

	f.Categorical = make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(s.Categorical))
		for j, c := range s.Categorical {
			cell, _ := t.Cell(i, c)
			row[j] = strings.TrimSpace(cell)
		}
		f.Categorical[i] = row
	}

	if requireTarget {
		raw, _ := t.Column(s.Target)
		labels, err := ParseLabels(raw)
		if err != nil {
			return nil, err
		}
		f.Labels = labels
	}
	return f, nil
}

// ParseLabel maps a target cell to 0 (no default) or 1 (default).
// Accepted spellings are good/bad, no/yes and 0/1, case-insensitive.
func ParseLabel(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good", "no", "0", "0.0":
		return 0, nil
	case "bad", "yes", "1", "1.0":
		return 1, nil
	default:
		return 0, crerrors.NewSchemaErrorf("ParseLabel", "unrecognized label %q", s)
	}
}

// ParseLabels applies ParseLabel to every cell.
func ParseLabels(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := ParseLabel(c)
		if err != nil {
			return nil, crerrors.Wrapf(err, "row %d", i)
		}
		out[i] = v
	}
	return out, nil
}
