package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	crerrors "github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

// ReadCSV reads a headered CSV stream into a Table. Header names and cells
// are whitespace-trimmed.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, crerrors.Wrap(err, "failed to read CSV")
	}
	return fromRecords("ReadCSV", records)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, crerrors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadXLSX reads the first sheet of an Excel workbook. The first row is the header.
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, crerrors.Wrapf(err, "failed to open Excel file %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, crerrors.NewSchemaErrorf("ReadXLSX", "workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, crerrors.Wrapf(err, "failed to read sheet %s", sheets[0])
	}
	return fromRecords("ReadXLSX", rows)
}

// LoadFile reads a CSV or XLSX file chosen by extension and drops idColumn
// when present. Pass "" to keep every column.
func LoadFile(path, idColumn string) (*Table, error) {
	logger := log.GetLoggerWithName("dataset")

	var (
		t   *Table
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		t, err = ReadXLSX(path)
	case ".csv", ".txt", "":
		t, err = ReadCSVFile(path)
	default:
		return nil, crerrors.NewValueError("LoadFile", "unsupported file type "+ext)
	}
	if err != nil {
		return nil, err
	}
	if idColumn != "" && t.Has(idColumn) {
		t = t.Drop(idColumn)
	}

	logger.Debug("Loaded table",
		log.PathKey, path,
		log.SamplesKey, t.NRows(),
		log.ColumnsKey, t.Columns(),
	)
	return t, nil
}

// WriteCSV writes t with a header row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return crerrors.Wrap(err, "failed to write CSV header")
	}
	for i := 0; i < t.NRows(); i++ {
		if err := cw.Write(t.Row(i)); err != nil {
			return crerrors.Wrapf(err, "failed to write CSV row %d", i)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes t to path, creating parent directories.
func WriteCSVFile(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return crerrors.Wrapf(err, "failed to create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return crerrors.Wrapf(err, "failed to create %s", path)
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func fromRecords(op string, records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, crerrors.NewSchemaErrorf(op, "input has no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(header) > 1 {
			continue
		}
		row := make([]string, len(rec))
		for j, cell := range rec {
			row[j] = strings.TrimSpace(cell)
		}
		rows = append(rows, row)
	}
	return NewTable(header, rows)
}
