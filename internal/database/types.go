package database

import (
	"time"
)

// StoredReference is a reference descriptor cached for one roster identifier.
// ImageHash is the SHA-256 of the portrait file so edited portraits are re-encoded.
type StoredReference struct {
	Identifier string
	ImageHash  string
	Model      string
	Descriptor []float32
	CreatedAt  time.Time
}

// AttendanceRow is one (identifier, status code) pair of a saved roll.
type AttendanceRow struct {
	Identifier string `json:"id"`
	Status     string `json:"status"` // "P" or "A"
}

// AttendanceRun is a saved roll call.
type AttendanceRun struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"` // YYYY-MM-DD, the same date used in the export file name
	File      string          `json:"file"` // export path written for this run
	Tolerance float64         `json:"tolerance"`
	Present   int             `json:"present"`
	Absent    int             `json:"absent"`
	Rows      []AttendanceRow `json:"rows,omitempty"` // empty when listed without rows
	CreatedAt time.Time       `json:"created_at"`
}
