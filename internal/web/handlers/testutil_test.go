package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/faceapi"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/session"
)

// widthDetector returns the faces registered for the width of the image.
type widthDetector struct {
	faces map[int][]facematch.Descriptor
}

func (d *widthDetector) Detect(ctx context.Context, jpegData []byte) ([]faceapi.Face, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(jpegData))
	if err != nil {
		return nil, err
	}
	var out []faceapi.Face
	for i, desc := range d.faces[cfg.Width] {
		out = append(out, faceapi.Face{Index: i, Descriptor: desc})
	}
	return out, nil
}

func (d *widthDetector) Model() string { return "width" }

// rollCallFiles creates a roster of 101 and 102, their portraits and a group
// photo in which only 101 is close enough to match.
type rollCallFiles struct {
	dir    string
	roster string
	refs   string
	group  string
}

func setupRollCall(t *testing.T) (*session.Controller, rollCallFiles) {
	t.Helper()
	dir := t.TempDir()
	files := rollCallFiles{
		dir:    dir,
		roster: filepath.Join(dir, "roster.csv"),
		refs:   filepath.Join(dir, "refs"),
		group:  filepath.Join(dir, "group.png"),
	}
	if err := os.WriteFile(files.roster, []byte("Roll Number\n101\n102\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(files.refs, 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(files.refs, "101.png"), 11)
	writePNG(t, filepath.Join(files.refs, "102.png"), 12)
	writePNG(t, files.group, 20)

	det := &widthDetector{faces: map[int][]facematch.Descriptor{
		11: {{0}},
		12: {{1.1}},
		20: {{0.2}},
	}}
	c := session.New(session.Options{Detector: det, AttendanceDir: dir})
	return c, files
}

func writePNG(t *testing.T, path string, width int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, 2))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeAction decodes an ActionResponse from a recorder
func decodeAction(t *testing.T, recorder *httptest.ResponseRecorder) ActionResponse {
	t.Helper()
	var resp ActionResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return resp
}

// assertJSONError checks the status code and error message of an error response
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, status int, contains string) {
	t.Helper()
	if recorder.Code != status {
		t.Errorf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal error body: %v", err)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, contains) {
		t.Errorf("expected error containing %q, got %q", contains, msg)
	}
}
