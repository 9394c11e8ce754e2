package dataset

import (
	"sort"

	crerrors "github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// Table is an immutable row-oriented table of named string columns.
// Every accessor returns copies; no method mutates the receiver.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewTable builds a table from a header and rows. Rows shorter than the header
// are padded with empty cells; longer rows are rejected.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, crerrors.NewSchemaErrorf("NewTable", "duplicate column %q", c)
		}
		index[c] = i
	}

	cp := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) > len(columns) {
			return nil, crerrors.NewSchemaErrorf("NewTable", "row %d has %d cells, header has %d", i, len(r), len(columns))
		}
		row := make([]string, len(columns))
		copy(row, r)
		cp[i] = row
	}

	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    cp,
	}, nil
}

// TableFromRecords builds a table from column → value maps, e.g. decoded JSON
// request bodies. The column set is the sorted union of all record keys; a key
// absent from one record becomes an empty cell.
func TableFromRecords(records []map[string]string) (*Table, error) {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = rec[c]
		}
		rows[i] = row
	}
	return NewTable(columns, rows)
}

// Columns returns the column names in table order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// NRows returns the number of rows.
func (t *Table) NRows() int {
	return len(t.rows)
}

// Has reports whether the table has a column named col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Column returns a copy of the cells of col.
func (t *Table) Column(col string) ([]string, bool) {
	j, ok := t.index[col]
	if !ok {
		return nil, false
	}
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, true
}

// Cell returns the value at row i, column col.
func (t *Table) Cell(i int, col string) (string, bool) {
	j, ok := t.index[col]
	if !ok || i < 0 || i >= len(t.rows) {
		return "", false
	}
	return t.rows[i][j], true
}

// Row returns a copy of row i in column order.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Select returns a new table with the rows at the given indices, in that order.
func (t *Table) Select(indices []int) *Table {
	rows := make([][]string, len(indices))
	for k, i := range indices {
		rows[k] = append([]string(nil), t.rows[i]...)
	}
	return &Table{columns: t.Columns(), index: copyIndex(t.index), rows: rows}
}

// Drop returns a new table without the named columns. Unknown names are ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		drop[c] = struct{}{}
	}

	var keep []int
	var columns []string
	for j, c := range t.columns {
		if _, ok := drop[c]; ok {
			continue
		}
		keep = append(keep, j)
		columns = append(columns, c)
	}

	rows := make([][]string, len(t.rows))
	for i, r := range t.rows {
		row := make([]string, len(keep))
		for k, j := range keep {
			row[k] = r[j]
		}
		rows[i] = row
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &Table{columns: columns, index: index, rows: rows}
}

// Project returns a new table holding only cols, in that order.
func (t *Table) Project(cols ...string) (*Table, error) {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, crerrors.NewSchemaError("Table.Project", missing)
	}

	rows := make([][]string, len(t.rows))
	for i, r := range t.rows {
		row := make([]string, len(cols))
		for k, c := range cols {
			row[k] = r[t.index[c]]
		}
		rows[i] = row
	}
	return NewTable(cols, rows)
}

func copyIndex(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
