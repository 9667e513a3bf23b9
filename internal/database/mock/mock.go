// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/rollcall/internal/database"
)

// MockReferenceCache is a mock implementation of database.ReferenceCache
type MockReferenceCache struct {
	mu   sync.RWMutex
	refs map[string]database.StoredReference

	// Error injection
	GetError  error
	SaveError error

	// Call counters
	Gets  int
	Saves int
}

// NewMockReferenceCache creates a new mock reference cache
func NewMockReferenceCache() *MockReferenceCache {
	return &MockReferenceCache{refs: make(map[string]database.StoredReference)}
}

func refKey(identifier, model string) string {
	return identifier + "\x00" + model
}

// GetReference returns the cached reference when the image hash still matches
func (m *MockReferenceCache) GetReference(ctx context.Context, identifier, imageHash, model string) (*database.StoredReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.GetError != nil {
		return nil, m.GetError
	}
	ref, ok := m.refs[refKey(identifier, model)]
	if !ok || ref.ImageHash != imageHash {
		return nil, database.ErrNotFound
	}
	return &ref, nil
}

// SaveReference stores a reference, replacing any previous one for the identifier and model
func (m *MockReferenceCache) SaveReference(ctx context.Context, ref database.StoredReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.refs[refKey(ref.Identifier, ref.Model)] = ref
	return nil
}

func (m *MockReferenceCache) Count(ctx context.Context) (int, error) {
	return m.Len(), nil
}

// Len returns the number of cached references
func (m *MockReferenceCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}

// MockAttendanceHistory is a mock implementation of database.AttendanceHistory
type MockAttendanceHistory struct {
	mu   sync.RWMutex
	runs []database.AttendanceRun

	SaveError error
	ListError error
	GetError  error
}

// NewMockAttendanceHistory creates a new mock attendance history
func NewMockAttendanceHistory() *MockAttendanceHistory {
	return &MockAttendanceHistory{}
}

// SaveRun appends a run
func (m *MockAttendanceHistory) SaveRun(ctx context.Context, run database.AttendanceRun) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// ListRuns returns runs newest first without rows
func (m *MockAttendanceHistory) ListRuns(ctx context.Context, limit int) ([]database.AttendanceRun, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.AttendanceRun, len(m.runs))
	copy(out, m.runs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rows = nil
	}
	return out, nil
}

// GetRun returns a run by ID
func (m *MockAttendanceHistory) GetRun(ctx context.Context, id string) (*database.AttendanceRun, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.runs {
		if m.runs[i].ID == id {
			run := m.runs[i]
			return &run, nil
		}
	}
	return nil, database.ErrNotFound
}

// Runs returns all saved runs in insertion order
func (m *MockAttendanceHistory) Runs() []database.AttendanceRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AttendanceRun, len(m.runs))
	copy(out, m.runs)
	return out
}
