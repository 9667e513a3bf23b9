// Package roster loads the ordered list of identifiers a roll call is taken against.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

// DefaultColumn is the header of the identifier column.
const DefaultColumn = "Roll Number"

// MissingColumnError is returned when the roster file has no identifier column.
type MissingColumnError struct {
	Path   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: roster must contain a %q column", e.Path, e.Column)
}

// Roster is an ordered list of unique identifiers.
type Roster struct {
	Path       string
	IDs        []string
	Duplicates []string // identifiers seen more than once, later rows were dropped
}

// Len returns the number of identifiers.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.IDs)
}

// NormalizeID trims whitespace and converts the identifier to NFC so that
// file names produced on different systems resolve to the same roster entry.
func NormalizeID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// Load reads a roster from a .csv or .xlsx file.
func Load(path, column string) (*Roster, error) {
	if column == "" {
		column = DefaultColumn
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}

	r, err := FromRows(rows, column)
	if err != nil {
		var mc *MissingColumnError
		if errors.As(err, &mc) {
			mc.Path = path
		}
		return nil, err
	}
	r.Path = path
	return r, nil
}

// FromRows builds a roster from tabular data whose first row is the header.
// Blank identifiers are skipped.
func FromRows(rows [][]string, column string) (*Roster, error) {
	col := -1
	if len(rows) > 0 {
		for i, h := range rows[0] {
			// Spreadsheet exports often prefix the first header with a BOM.
			if strings.TrimPrefix(h, "\ufeff") == column {
				col = i
				break
			}
		}
	}
	if col < 0 {
		return nil, &MissingColumnError{Column: column}
	}

	r := &Roster{}
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		id := NormalizeID(row[col])
		if id == "" {
			continue
		}
		if seen[id] {
			r.Duplicates = append(r.Duplicates, id)
			continue
		}
		seen[id] = true
		r.IDs = append(r.IDs, id)
	}
	return r, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster: %w", err)
	}
	defer f.Close()

	return parseCSV(f)
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing roster CSV: %w", err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("roster workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading roster sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
