package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Column headers of export files.
const (
	HeaderID     = "Roll Number"
	HeaderStatus = "Attendance"
)

const sheetName = "Attendance"

// Format of an export file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat converts a config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown attendance format %q (want csv or xlsx)", s)
	}
}

// WriteError is returned when an export file cannot be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing attendance file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FileName returns attendance_<YYYY-MM-DD>.<ext> for the calendar date of day.
func FileName(day time.Time, format Format) string {
	return fmt.Sprintf("attendance_%s.%s", day.Format(time.DateOnly), format)
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{HeaderID, HeaderStatus}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.ID, r.Code}); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV reads rows written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse attendance csv: %w", err)
	}
	return fromRecords(records)
}

// WriteXLSX writes rows to a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeHeader(f, sheetName); err != nil {
		return err
	}

	for i, r := range rows {
		line := i + 2
		// Identifiers are text even when they look like numbers.
		if err := f.SetCellStr(sheetName, fmt.Sprintf("A%d", line), r.ID); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
		if err := f.SetCellStr(sheetName, fmt.Sprintf("B%d", line), r.Code); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeHeader writes the bold header row and sizes the columns of sheet.
func writeHeader(f *excelize.File, sheet string) error {
	if err := f.SetColWidth(sheet, "A", "A", 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "B", 12); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &[]any{HeaderID, HeaderStatus}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "B1", style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	return nil
}

// ReadXLSX reads rows written by WriteXLSX.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open attendance workbook: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read attendance sheet: %w", err)
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 || len(records[0]) < 2 || records[0][0] != HeaderID || records[0][1] != HeaderStatus {
		return nil, fmt.Errorf("attendance file must start with %q,%q header", HeaderID, HeaderStatus)
	}
	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", i+2, len(rec))
		}
		rows = append(rows, Row{ID: rec[0], Code: rec[1]})
	}
	return rows, nil
}

// Save writes rows to dir/attendance_<date>.<format>, replacing a file from
// the same day. A failed save leaves any existing file untouched.
func Save(dir string, day time.Time, format Format, rows []Row) (string, error) {
	path := filepath.Join(dir, FileName(day, format))

	tmp, err := os.CreateTemp(dir, ".attendance-*.tmp")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	switch format {
	case FormatXLSX:
		err = WriteXLSX(tmp, rows)
	default:
		err = WriteCSV(tmp, rows)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	return path, nil
}

// Load reads an export file, choosing the format from its extension.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attendance file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(f)
	}
	return ReadCSV(f)
}
