// Package attendance holds the present/absent table of a roll call and its file formats.
package attendance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// Status of a roster identifier.
type Status string

const (
	Present Status = "Present"
	Absent  Status = "Absent"
)

// Status codes written to export files.
const (
	CodePresent = "P"
	CodeAbsent  = "A"
)

// ErrUnknownIdentifier is returned when an identifier is not on the roster.
var ErrUnknownIdentifier = errors.New("identifier not on roster")

// Code returns the single character export code.
func (s Status) Code() string {
	if s == Present {
		return CodePresent
	}
	return CodeAbsent
}

// ParseStatus accepts export codes and full names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case CodePresent, "PRESENT":
		return Present, nil
	case CodeAbsent, "ABSENT":
		return Absent, nil
	default:
		return "", fmt.Errorf("invalid attendance status %q", s)
	}
}

// Record is the status of one identifier.
type Record struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Row is a record in export form.
type Row struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Table holds exactly one record per roster identifier in roster order.
type Table struct {
	records []Record
	index   map[string]int
}

// NewTable returns a table with every identifier Absent.
func NewTable(ids []string) *Table {
	t := &Table{}
	t.RebuildFromRoster(ids)
	return t
}

// RebuildFromRoster resets the table to one Absent record per identifier.
func (t *Table) RebuildFromRoster(ids []string) {
	t.records = make([]Record, 0, len(ids))
	t.index = make(map[string]int, len(ids))
	for _, id := range ids {
		if _, dup := t.index[id]; dup {
			continue
		}
		t.index[id] = len(t.records)
		t.records = append(t.records, Record{ID: id, Status: Absent})
	}
}

// ApplyPresentSet overwrites every record: Present if in present, Absent otherwise.
// Manual overrides made with Set are discarded.
func (t *Table) ApplyPresentSet(present facematch.PresentSet) {
	for i := range t.records {
		if present.Has(t.records[i].ID) {
			t.records[i].Status = Present
		} else {
			t.records[i].Status = Absent
		}
	}
}

// Set changes the status of a single identifier.
func (t *Table) Set(id string, status Status) error {
	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentifier, id)
	}
	t.records[i].Status = status
	return nil
}

// Status returns the status of id.
func (t *Table) Status(id string) (Status, bool) {
	i, ok := t.index[id]
	if !ok {
		return "", false
	}
	return t.records[i].Status, true
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Records returns a copy of the records in roster order.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Export returns (identifier, code) rows in roster order.
func (t *Table) Export() []Row {
	rows := make([]Row, len(t.records))
	for i, r := range t.records {
		rows[i] = Row{ID: r.ID, Code: r.Status.Code()}
	}
	return rows
}

// Counts returns the number of present and absent records.
func (t *Table) Counts() (present, absent int) {
	for _, r := range t.records {
		if r.Status == Present {
			present++
		} else {
			absent++
		}
	}
	return present, absent
}

// Clone returns an independent copy.
func (t *Table) Clone() *Table {
	c := &Table{
		records: t.Records(),
		index:   make(map[string]int, len(t.index)),
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}
