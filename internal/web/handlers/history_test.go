package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
)

func seededHistory(t *testing.T) *mock.MockAttendanceHistory {
	t.Helper()
	history := mock.NewMockAttendanceHistory()
	base := time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		err := history.SaveRun(t.Context(), database.AttendanceRun{
			ID:        id,
			Date:      base.AddDate(0, 0, i).Format(time.DateOnly),
			Present:   i,
			Rows:      []database.AttendanceRow{{Identifier: "101", Status: "P"}},
			CreatedAt: base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return history
}

func TestHistoryHandler_List(t *testing.T) {
	handler := NewHistoryHandler(seededHistory(t))

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/history?limit=2", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	var runs []database.AttendanceRun
	if err := json.Unmarshal(recorder.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Errorf("unexpected runs %+v", runs)
	}
	if len(runs[0].Rows) != 0 {
		t.Error("listed runs must not carry rows")
	}
}

func TestHistoryHandler_ListEmpty(t *testing.T) {
	handler := NewHistoryHandler(mock.NewMockAttendanceHistory())

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/history", nil))

	if body := recorder.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestHistoryHandler_Get(t *testing.T) {
	handler := NewHistoryHandler(seededHistory(t))

	recorder := httptest.NewRecorder()
	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/history/run-2", nil), map[string]string{"id": "run-2"})
	handler.Get(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	var run database.AttendanceRun
	if err := json.Unmarshal(recorder.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.ID != "run-2" || len(run.Rows) != 1 {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestHistoryHandler_Errors(t *testing.T) {
	failing := mock.NewMockAttendanceHistory()
	failing.ListError = errors.New("db down")

	tests := []struct {
		name     string
		handler  *HistoryHandler
		list     bool
		target   string
		params   map[string]string
		status   int
		contains string
	}{
		{"not configured list", NewHistoryHandler(nil), true, "/api/v1/history", nil, http.StatusServiceUnavailable, "not configured"},
		{"not configured get", NewHistoryHandler(nil), false, "/api/v1/history/x", map[string]string{"id": "x"}, http.StatusServiceUnavailable, "not configured"},
		{"bad limit", NewHistoryHandler(seededHistory(t)), true, "/api/v1/history?limit=abc", nil, http.StatusBadRequest, "invalid limit"},
		{"list failure", NewHistoryHandler(failing), true, "/api/v1/history", nil, http.StatusInternalServerError, "failed"},
		{"unknown run", NewHistoryHandler(seededHistory(t)), false, "/api/v1/history/x", map[string]string{"id": "x"}, http.StatusNotFound, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.params != nil {
				req = requestWithChiParams(req, tt.params)
			}
			recorder := httptest.NewRecorder()
			if tt.list {
				tt.handler.List(recorder, req)
			} else {
				tt.handler.Get(recorder, req)
			}
			assertJSONError(t, recorder, tt.status, tt.contains)
		})
	}
}
