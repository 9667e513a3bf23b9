// Package database defines the optional persistence used by rollcall:
// a cache of reference descriptors and a history of saved rolls.
package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReferenceCache stores descriptors computed from reference portraits.
type ReferenceCache interface {
	// GetReference returns the cached descriptor or ErrNotFound.
	GetReference(ctx context.Context, identifier, imageHash, model string) (*StoredReference, error)
	// SaveReference inserts or replaces the descriptor for (identifier, model).
	SaveReference(ctx context.Context, ref StoredReference) error
	// Count returns the number of cached descriptors across all models.
	Count(ctx context.Context) (int, error)
}

// AttendanceHistory records every saved roll.
type AttendanceHistory interface {
	SaveRun(ctx context.Context, run AttendanceRun) error
	// ListRuns returns the newest runs first, without rows.
	ListRuns(ctx context.Context, limit int) ([]AttendanceRun, error)
	// GetRun returns a run with its rows or ErrNotFound.
	GetRun(ctx context.Context, id string) (*AttendanceRun, error)
}
