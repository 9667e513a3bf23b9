package handlers

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/faceapi"
	"github.com/kozaktomas/rollcall/internal/reference"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/session"
)

// AttendanceHandler exposes the roll call controller over HTTP.
type AttendanceHandler struct {
	controller *session.Controller
	now        func() time.Time
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(controller *session.Controller) *AttendanceHandler {
	return &AttendanceHandler{controller: controller, now: time.Now}
}

// PathRequest names a file or directory on the server.
type PathRequest struct {
	Path string `json:"path"`
}

// DirRequest names the reference directory.
type DirRequest struct {
	Dir string `json:"dir"`
}

// UpdateRequest optionally changes the tolerance before matching again.
type UpdateRequest struct {
	Tolerance *float64 `json:"tolerance,omitempty"`
}

// StatusRequest overrides one identifier.
type StatusRequest struct {
	Status string `json:"status"`
}

// ActionResponse is returned by every action endpoint.
type ActionResponse struct {
	session.Result
	Error      string           `json:"error,omitempty"`
	Attendance session.Snapshot `json:"attendance"`
}

// respondResult writes the action result with the current snapshot.
func (h *AttendanceHandler) respondResult(w http.ResponseWriter, res session.Result) {
	resp := ActionResponse{Result: res, Attendance: h.controller.Snapshot()}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Message
		status = statusFor(res.Err)
	}
	respondJSON(w, status, resp)
}

// statusFor maps controller errors to HTTP status codes.
func statusFor(err error) int {
	var missing *roster.MissingColumnError
	var decode *faceapi.DecodeError
	var write *attendance.WriteError
	switch {
	case errors.Is(err, session.ErrNoRoster), errors.Is(err, session.ErrNoImage), errors.Is(err, session.ErrEmptyRoster):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrUnknownIdentifier), errors.Is(err, reference.ErrImageNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &missing), errors.As(err, &decode), errors.Is(err, session.ErrBadTolerance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoFaceDetector):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &write):
		return http.StatusInternalServerError
	default:
		// Face service failures.
		return http.StatusBadGateway
	}
}

// Get returns the current attendance.
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Snapshot())
}

// LoadRoster loads a roster file.
func (h *AttendanceHandler) LoadRoster(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	path, ok := requirePath(req.Path)
	if !ok {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	h.respondResult(w, h.controller.LoadRoster(path))
}

// LoadReferences encodes the reference directory.
func (h *AttendanceHandler) LoadReferences(w http.ResponseWriter, r *http.Request) {
	var req DirRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	dir, ok := requirePath(req.Dir)
	if !ok {
		respondError(w, http.StatusBadRequest, "dir is required")
		return
	}
	h.respondResult(w, h.controller.LoadReferences(r.Context(), dir))
}

// ProcessImage detects faces in a group image.
func (h *AttendanceHandler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	path, ok := requirePath(req.Path)
	if !ok {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	h.respondResult(w, h.controller.ProcessImage(r.Context(), path))
}

// Update re-runs matching, optionally with a new tolerance.
func (h *AttendanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Tolerance != nil {
		h.respondResult(w, h.controller.UpdateAttendanceWithTolerance(*req.Tolerance))
		return
	}
	h.respondResult(w, h.controller.UpdateAttendance())
}

// SetStatus overrides one identifier.
func (h *AttendanceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing identifier")
		return
	}

	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondResult(w, h.controller.SetStatus(id, status))
}

// Save writes today's attendance file.
func (h *AttendanceHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.respondResult(w, h.controller.Save(r.Context(), h.now()))
}
