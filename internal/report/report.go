package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

// IdentityColumns lead every scores CSV.
var IdentityColumns = []string{
	"run_id",
	"model",
	"condition",
	"task",
	"task_complexity",
	"rep",
	"duration_ms",
}

// Columnar is anything that names its own CSV columns.
type Columnar interface {
	Columns() []string
}

// BuildCSVSchema returns the ordered header for a domain: identity, token usage, then the domain's own columns.
func BuildCSVSchema(c Columnar) []string {
	cols := make([]string, 0, len(IdentityColumns)+len(types.TokenColumns)+len(c.Columns()))
	cols = append(cols, IdentityColumns...)
	cols = append(cols, types.TokenColumns...)
	return append(cols, c.Columns()...)
}

// DuplicateColumns returns the names that appear more than once in header.
func DuplicateColumns(header []string) []string {
	seen := map[string]int{}
	var dups []string
	for _, col := range header {
		seen[col]++
		if seen[col] == 2 {
			dups = append(dups, col)
		}
	}
	return dups
}

// WriteCSV writes header and one record per row. Columns a row lacks are written empty.
func WriteCSV(w io.Writer, header []string, rows []rules.Fields) error {
	if w == nil {
		return errors.New("writer is nil")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the CSV to path, creating its directory. The file is replaced only after the full sheet is written.
func WriteFile(path string, header []string, rows []rules.Fields) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, header, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Sheet is a scores CSV read back into memory.
type Sheet struct {
	Header []string
	Rows   []map[string]string
}

// Has reports whether col is in the header.
func (s *Sheet) Has(col string) bool {
	for _, h := range s.Header {
		if h == col {
			return true
		}
	}
	return false
}

// ReadFile loads a scores CSV.
func ReadFile(path string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return &Sheet{}, nil
	}
	sheet := &Sheet{Header: records[0]}
	for _, rec := range records[1:] {
		row := make(map[string]string, len(sheet.Header))
		for i, col := range sheet.Header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}
