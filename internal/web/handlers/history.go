package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/database"
)

const defaultHistoryLimit = 50

// HistoryHandler serves saved rolls.
type HistoryHandler struct {
	history database.AttendanceHistory
}

// NewHistoryHandler creates a new history handler. history may be nil.
func NewHistoryHandler(history database.AttendanceHistory) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns the newest saved rolls.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "attendance history is not configured")
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.history.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance history")
		return
	}
	if runs == nil {
		runs = []database.AttendanceRun{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// Get returns one saved roll with its rows.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "attendance history is not configured")
		return
	}

	run, err := h.history.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "attendance run not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load attendance run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}
