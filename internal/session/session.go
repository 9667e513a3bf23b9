// Package session drives a roll call: roster, references, group image, attendance, export.
// Every action returns a Result describing the outcome; failed actions leave the
// previous state untouched.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/faceapi"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/reference"
	"github.com/kozaktomas/rollcall/internal/roster"
)

// State of a roll call.
type State int

const (
	StateEmpty State = iota
	StateRosterLoaded
	StateReferencesLoaded
	StateImageProcessed
)

func (s State) String() string {
	switch s {
	case StateRosterLoaded:
		return "roster_loaded"
	case StateReferencesLoaded:
		return "references_loaded"
	case StateImageProcessed:
		return "image_processed"
	default:
		return "empty"
	}
}

// Action names reported in results and logs.
const (
	ActionLoadRoster     = "load_roster"
	ActionLoadReferences = "load_references"
	ActionProcessImage   = "process_image"
	ActionUpdate         = "update_attendance"
	ActionSetTolerance   = "set_tolerance"
	ActionSetStatus      = "set_status"
	ActionSave           = "save_attendance"
)

// Precondition errors.
var (
	ErrNoRoster       = errors.New("load a roster first")
	ErrEmptyRoster    = errors.New("roster has no identifiers")
	ErrNoImage        = errors.New("process a group image first")
	ErrBadTolerance   = errors.New("tolerance must be greater than zero")
	ErrNoFaceDetector = errors.New("no face detector configured")
)

// Result is the outcome of one action.
type Result struct {
	Action  string   `json:"action"`
	State   string   `json:"state"`
	Message string   `json:"message"`
	Notes   []string `json:"notes,omitempty"`
	Err     error    `json:"-"`
}

// OK reports whether the action succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Options configures a Controller. Zero values fall back to defaults.
type Options struct {
	Detector      faceapi.Detector
	RosterColumn  string
	Extensions    []string
	MaxImageSize  int
	Tolerance     float64
	Metric        facematch.Metric
	AttendanceDir string
	Format        attendance.Format
	Cache         database.ReferenceCache    // optional
	History       database.AttendanceHistory // optional
	Progress      reference.ProgressFunc     // optional
	Logger        *zap.Logger
}

// Controller holds the state of one roll call. Actions are serialized.
type Controller struct {
	mu   sync.Mutex
	opts Options
	log  *zap.Logger

	state        State
	roster       *roster.Roster
	referenceDir string
	refs         *facematch.ReferenceSet
	imagePath    string
	faces        []faceapi.Face
	matches      []facematch.FaceMatch
	table        *attendance.Table
	matcher      facematch.Matcher
	lastSaved    string
}

// New returns a controller in the Empty state.
func New(opts Options) *Controller {
	if opts.RosterColumn == "" {
		opts.RosterColumn = roster.DefaultColumn
	}
	if opts.AttendanceDir == "" {
		opts.AttendanceDir = "."
	}
	if opts.Format == "" {
		opts.Format = attendance.FormatCSV
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		opts:    opts,
		log:     log,
		table:   attendance.NewTable(nil),
		matcher: facematch.NewMatcher(opts.Tolerance, opts.Metric),
	}
}

func (c *Controller) result(action, message string, notes []string, err error) Result {
	r := Result{Action: action, State: c.state.String(), Message: message, Notes: notes, Err: err}
	if err != nil {
		r.Message = describe(err)
		c.log.Warn("action failed", zap.String("action", action), zap.String("state", r.State), zap.Error(err))
	} else {
		c.log.Info(message, zap.String("action", action), zap.String("state", r.State))
	}
	return r
}

// describe turns an error into a status line for the user.
func describe(err error) string {
	var missing *roster.MissingColumnError
	var decode *faceapi.DecodeError
	var write *attendance.WriteError
	switch {
	case errors.As(err, &missing):
		return fmt.Sprintf("Roster %s has no %q column", missing.Path, missing.Column)
	case errors.As(err, &decode):
		return fmt.Sprintf("Could not read image: %v", decode.Err)
	case errors.As(err, &write):
		return fmt.Sprintf("Could not save attendance to %s: %v", write.Path, write.Err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Sprintf("File not found: %v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	default:
		s := err.Error()
		if s == "" {
			return "Error"
		}
		return "Error: " + s
	}
}

// LoadRoster reads a roster file and resets references, detections and attendance.
func (c *Controller) LoadRoster(path string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := roster.Load(path, c.opts.RosterColumn)
	if err != nil {
		return c.result(ActionLoadRoster, "", nil, err)
	}

	var notes []string
	for _, dup := range r.Duplicates {
		notes = append(notes, fmt.Sprintf("duplicate identifier %s ignored", dup))
	}

	c.roster = r
	c.referenceDir = ""
	c.refs = nil
	c.imagePath = ""
	c.faces = nil
	c.matches = nil
	c.table = attendance.NewTable(r.IDs)
	c.state = StateRosterLoaded

	return c.result(ActionLoadRoster, fmt.Sprintf("Roster loaded: %d identifiers", r.Len()), notes, nil)
}

// LoadReferences encodes the portraits in dir and replaces the reference set.
// Detections of a previous image are discarded and attendance resets to Absent.
func (c *Controller) LoadReferences(ctx context.Context, dir string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roster == nil {
		return c.result(ActionLoadReferences, "", nil, ErrNoRoster)
	}
	if c.opts.Detector == nil {
		return c.result(ActionLoadReferences, "", nil, ErrNoFaceDetector)
	}

	enc := &reference.Encoder{
		Detector:     c.opts.Detector,
		Extensions:   c.opts.Extensions,
		MaxImageSize: c.opts.MaxImageSize,
		Cache:        c.opts.Cache,
		Progress:     c.opts.Progress,
		Logger:       c.log,
	}
	set, report, err := enc.Encode(ctx, c.roster.IDs, dir)
	if err != nil {
		return c.result(ActionLoadReferences, "", nil, err)
	}

	notes := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		notes = append(notes, fmt.Sprintf("%s: %s", f.ID, failureReason(f.Err)))
	}

	c.referenceDir = dir
	c.refs = set
	c.imagePath = ""
	c.faces = nil
	c.matches = nil
	c.table = attendance.NewTable(c.roster.IDs)
	c.state = StateReferencesLoaded

	msg := fmt.Sprintf("References loaded: %d of %d identifiers", set.Len(), c.roster.Len())
	return c.result(ActionLoadReferences, msg, notes, nil)
}

func failureReason(err error) string {
	var de *faceapi.DecodeError
	switch {
	case errors.Is(err, reference.ErrImageNotFound):
		return "no image"
	case errors.Is(err, faceapi.ErrNoFace):
		return "no face detected"
	case errors.As(err, &de):
		return "unreadable image"
	default:
		return err.Error()
	}
}

// ProcessImage detects faces in a group image and recomputes attendance.
// Without references every identifier stays Absent.
func (c *Controller) ProcessImage(ctx context.Context, path string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roster == nil {
		return c.result(ActionProcessImage, "", nil, ErrNoRoster)
	}
	if c.opts.Detector == nil {
		return c.result(ActionProcessImage, "", nil, ErrNoFaceDetector)
	}

	faces, err := faceapi.DetectFile(ctx, c.opts.Detector, path, c.opts.MaxImageSize)
	if err != nil {
		return c.result(ActionProcessImage, "", nil, err)
	}

	matches, table := c.rematch(faces, c.matcher)

	c.imagePath = path
	c.faces = faces
	c.matches = matches
	c.table = table
	c.state = StateImageProcessed

	present, _ := table.Counts()
	var notes []string
	if c.refs.Len() == 0 {
		notes = append(notes, "no references loaded, everyone is absent")
	}
	msg := fmt.Sprintf("Detected %d faces, %d present", len(faces), present)
	return c.result(ActionProcessImage, msg, notes, nil)
}

// rematch matches faces against the current references and returns a new table.
func (c *Controller) rematch(faces []faceapi.Face, m facematch.Matcher) ([]facematch.FaceMatch, *attendance.Table) {
	matches := m.Match(c.refs, faceapi.Descriptors(faces))
	table := c.table.Clone()
	table.ApplyPresentSet(facematch.PresentFromMatches(matches))
	return matches, table
}

// UpdateAttendance re-runs matching on the stored detections without detecting again.
// Manual overrides are replaced.
func (c *Controller) UpdateAttendance() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.update(c.matcher)
}

// UpdateAttendanceWithTolerance is UpdateAttendance with a new match threshold.
// The threshold is kept only when the update succeeds.
func (c *Controller) UpdateAttendanceWithTolerance(tolerance float64) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.matcher
	m.Tolerance = tolerance
	return c.update(m)
}

func (c *Controller) update(m facematch.Matcher) Result {
	if c.state != StateImageProcessed {
		return c.result(ActionUpdate, "", nil, ErrNoImage)
	}
	if !(m.Tolerance > 0) {
		return c.result(ActionUpdate, "", nil, fmt.Errorf("%w: %v", ErrBadTolerance, m.Tolerance))
	}

	c.matches, c.table = c.rematch(c.faces, m)
	c.matcher = m

	present, absent := c.table.Counts()
	msg := fmt.Sprintf("Attendance updated: %d present, %d absent (tolerance %g)", present, absent, m.Tolerance)
	return c.result(ActionUpdate, msg, nil, nil)
}

// SetTolerance changes the match threshold and re-runs matching when an image is processed.
func (c *Controller) SetTolerance(tolerance float64) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !(tolerance > 0) {
		return c.result(ActionSetTolerance, "", nil, fmt.Errorf("%w: %v", ErrBadTolerance, tolerance))
	}

	m := c.matcher
	m.Tolerance = tolerance
	if c.state == StateImageProcessed {
		c.matches, c.table = c.rematch(c.faces, m)
	}
	c.matcher = m

	return c.result(ActionSetTolerance, fmt.Sprintf("Tolerance set to %g", tolerance), nil, nil)
}

// SetStatus overrides the status of one identifier until the next match pass.
func (c *Controller) SetStatus(id string, status attendance.Status) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roster == nil {
		return c.result(ActionSetStatus, "", nil, ErrNoRoster)
	}

	id = roster.NormalizeID(id)
	table := c.table.Clone()
	if err := table.Set(id, status); err != nil {
		return c.result(ActionSetStatus, "", nil, err)
	}
	c.table = table

	return c.result(ActionSetStatus, fmt.Sprintf("%s marked %s", id, status), nil, nil)
}

// Save writes the attendance file for the date of now, replacing a file from the
// same day, and records the run in the history when one is configured.
func (c *Controller) Save(ctx context.Context, now time.Time) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roster == nil {
		return c.result(ActionSave, "", nil, ErrNoRoster)
	}
	if c.table.Len() == 0 {
		return c.result(ActionSave, "", nil, ErrEmptyRoster)
	}

	rows := c.table.Export()
	path, err := attendance.Save(c.opts.AttendanceDir, now, c.opts.Format, rows)
	if err != nil {
		return c.result(ActionSave, "", nil, err)
	}
	c.lastSaved = path

	var notes []string
	if c.opts.History != nil {
		if err := c.recordRun(ctx, now, path, rows); err != nil {
			c.log.Error("failed to record attendance run", zap.Error(err))
			notes = append(notes, "attendance history not updated: "+err.Error())
		}
	}

	return c.result(ActionSave, "Attendance saved to "+path, notes, nil)
}

func (c *Controller) recordRun(ctx context.Context, now time.Time, path string, rows []attendance.Row) error {
	present, absent := c.table.Counts()
	run := database.AttendanceRun{
		ID:        uuid.NewString(),
		Date:      now.Format(time.DateOnly),
		File:      path,
		Tolerance: c.matcher.Tolerance,
		Present:   present,
		Absent:    absent,
		Rows:      make([]database.AttendanceRow, len(rows)),
		CreatedAt: now,
	}
	for i, r := range rows {
		run.Rows[i] = database.AttendanceRow{Identifier: r.ID, Status: r.Code}
	}
	return c.opts.History.SaveRun(ctx, run)
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State        string                `json:"state"`
	RosterPath   string                `json:"roster_path,omitempty"`
	ReferenceDir string                `json:"reference_dir,omitempty"`
	ImagePath    string                `json:"image_path,omitempty"`
	Tolerance    float64               `json:"tolerance"`
	Metric       facematch.Metric      `json:"metric"`
	References   int                   `json:"references"`
	Faces        int                   `json:"faces"`
	Matches      []facematch.FaceMatch `json:"matches"`
	Records      []attendance.Record   `json:"records"`
	Present      int                   `json:"present"`
	Absent       int                   `json:"absent"`
	LastSaved    string                `json:"last_saved,omitempty"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:        c.state.String(),
		ReferenceDir: c.referenceDir,
		ImagePath:    c.imagePath,
		Tolerance:    c.matcher.Tolerance,
		Metric:       c.matcher.Metric,
		References:   c.refs.Len(),
		Faces:        len(c.faces),
		Matches:      append([]facematch.FaceMatch(nil), c.matches...),
		Records:      c.table.Records(),
		LastSaved:    c.lastSaved,
	}
	if c.roster != nil {
		s.RosterPath = c.roster.Path
	}
	s.Present, s.Absent = c.table.Counts()
	return s
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
