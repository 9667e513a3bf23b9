package reference

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/faceapi"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

// widthDetector returns one face per image whose descriptor is the image width,
// except for widths listed in noFace.
type widthDetector struct {
	noFace map[int]bool
	err    error
	calls  int
}

func (d *widthDetector) Detect(ctx context.Context, jpegData []byte) ([]faceapi.Face, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(jpegData))
	if err != nil {
		return nil, err
	}
	if d.noFace[cfg.Width] {
		return nil, nil
	}
	return []faceapi.Face{
		{Index: 0, Descriptor: facematch.Descriptor{float32(cfg.Width)}},
		{Index: 1, Descriptor: facematch.Descriptor{-1}},
	}, nil
}

func (d *widthDetector) Model() string { return "width" }

func writePNG(t *testing.T, path string, width int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, 4))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestResolveImage_ExtensionOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 8)
	writePNG(t, filepath.Join(dir, "101.jpeg"), 8)

	got, err := ResolveImage(dir, "101", DefaultExtensions)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "101.jpeg" {
		t.Errorf("ResolveImage() = %s, want 101.jpeg", got)
	}

	if _, err := ResolveImage(dir, "999", DefaultExtensions); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected ErrImageNotFound, got %v", err)
	}
}

func TestEncode(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 10)
	writePNG(t, filepath.Join(dir, "102.jpg"), 20) // PNG bytes under a .jpg name still decode
	writePNG(t, filepath.Join(dir, "103.png"), 30)
	if err := os.WriteFile(filepath.Join(dir, "104.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	det := &widthDetector{noFace: map[int]bool{30: true}}
	var progress []string
	enc := &Encoder{
		Detector: det,
		Progress: func(done, total int, id string) {
			if total != 5 {
				t.Errorf("total = %d, want 5", total)
			}
			progress = append(progress, id)
		},
	}

	ids := []string{"101", "102", "103", "104", "105"}
	set, report, err := enc.Encode(context.Background(), ids, dir)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !reflect.DeepEqual(set.IDs(), []string{"101", "102"}) {
		t.Errorf("set IDs = %v", set.IDs())
	}
	if ref, d, _ := facematch.NewMatcher(1, facematch.MetricEuclidean).Best(set, facematch.Descriptor{20}); ref.ID != "102" || d != 0 {
		t.Errorf("closest to the first face of 102 = %s at %v", ref.ID, d)
	}
	if !reflect.DeepEqual(progress, ids) {
		t.Errorf("progress = %v, want %v", progress, ids)
	}
	if !reflect.DeepEqual(report.Skipped(), []string{"103", "104", "105"}) {
		t.Fatalf("skipped = %v", report.Skipped())
	}

	if !errors.Is(report.Failures[0].Err, faceapi.ErrNoFace) {
		t.Errorf("103: expected ErrNoFace, got %v", report.Failures[0].Err)
	}
	var de *faceapi.DecodeError
	if !errors.As(report.Failures[1].Err, &de) || de.Path != filepath.Join(dir, "104.png") {
		t.Errorf("104: expected DecodeError with path, got %v", report.Failures[1].Err)
	}
	if !errors.Is(report.Failures[2].Err, ErrImageNotFound) {
		t.Errorf("105: expected ErrImageNotFound, got %v", report.Failures[2].Err)
	}
}

func TestEncode_DetectorFailureAborts(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 10)

	enc := &Encoder{Detector: &widthDetector{err: errors.New("connection refused")}}
	set, report, err := enc.Encode(context.Background(), []string{"101"}, dir)
	if err == nil {
		t.Fatal("expected error")
	}
	if set != nil || report != nil {
		t.Error("no partial result expected on abort")
	}
}

func TestEncode_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enc := &Encoder{Detector: &widthDetector{}}
	if _, _, err := enc.Encode(ctx, []string{"101"}, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEncode_MissingDirectory(t *testing.T) {
	enc := &Encoder{Detector: &widthDetector{}}
	_, _, err := enc.Encode(context.Background(), []string{"101"}, filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestEncode_UsesCache(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 10)
	writePNG(t, filepath.Join(dir, "102.png"), 20)

	cache := mock.NewMockReferenceCache()
	det := &widthDetector{}
	enc := &Encoder{Detector: det, Cache: cache}
	ids := []string{"101", "102"}

	if _, _, err := enc.Encode(context.Background(), ids, dir); err != nil {
		t.Fatal(err)
	}
	if det.calls != 2 || cache.Len() != 2 {
		t.Fatalf("first pass: calls=%d cached=%d", det.calls, cache.Len())
	}

	// Changing a portrait invalidates only its entry.
	writePNG(t, filepath.Join(dir, "102.png"), 25)

	set, report, err := enc.Encode(context.Background(), ids, dir)
	if err != nil {
		t.Fatal(err)
	}
	if det.calls != 3 {
		t.Errorf("second pass detector calls = %d, want 3", det.calls)
	}
	if report.Cached != 1 {
		t.Errorf("Cached = %d, want 1", report.Cached)
	}
	if report.CacheSize != 2 {
		t.Errorf("CacheSize = %d, want 2", report.CacheSize)
	}
	if ref, d, _ := facematch.NewMatcher(1, facematch.MetricEuclidean).Best(set, facematch.Descriptor{25}); ref.ID != "102" || d != 0 {
		t.Errorf("closest to the re-encoded 102 = %s at %v", ref.ID, d)
	}
}

func TestEncode_CacheErrorsAreNotFatal(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 10)

	cache := mock.NewMockReferenceCache()
	cache.GetError = errors.New("db down")
	cache.SaveError = errors.New("db down")

	enc := &Encoder{Detector: &widthDetector{}, Cache: cache}
	set, _, err := enc.Encode(context.Background(), []string{"101"}, dir)
	if err != nil {
		t.Fatalf("cache errors must not abort: %v", err)
	}
	if set.Len() != 1 {
		t.Errorf("set.Len() = %d, want 1", set.Len())
	}
}

func TestResolveImage_InvalidIdentifier(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "refs")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(parent, "secret.png"), 8)

	for _, id := range []string{"../secret", "a/b", `a\b`, ".", ".."} {
		if _, err := ResolveImage(dir, id, DefaultExtensions); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("ResolveImage(%q): expected ErrInvalidIdentifier, got %v", id, err)
		}
	}
}

func TestEncode_UnreadableImageIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 10)
	writePNG(t, filepath.Join(dir, "102.png"), 20)
	writePNG(t, filepath.Join(dir, "103.png"), 30)

	denied := filepath.Join(dir, "102.png")
	enc := &Encoder{
		Detector: &widthDetector{},
		readImage: func(path string) ([]byte, error) {
			if path == denied {
				return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrPermission}
			}
			return faceapi.ReadImage(path)
		},
	}

	set, report, err := enc.Encode(context.Background(), []string{"101", "102", "103", "../103"}, dir)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !reflect.DeepEqual(set.IDs(), []string{"101", "103"}) {
		t.Errorf("set IDs = %v", set.IDs())
	}
	if !reflect.DeepEqual(report.Skipped(), []string{"102", "../103"}) {
		t.Fatalf("skipped = %v", report.Skipped())
	}
	f := report.Failures[0]
	if !errors.Is(f.Err, ErrImageUnreadable) || !errors.Is(f.Err, os.ErrPermission) || f.Path != denied {
		t.Errorf("102 failure = %+v", f)
	}
	if !errors.Is(report.Failures[1].Err, ErrInvalidIdentifier) {
		t.Errorf("../103: expected ErrInvalidIdentifier, got %v", report.Failures[1].Err)
	}
}

type unnamedDetector struct{ widthDetector }

func (d *unnamedDetector) Model() string { return "" }

func TestEncode_UnknownModelBypassesCache(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "101.png"), 10)

	cache := mock.NewMockReferenceCache()
	det := &unnamedDetector{}
	enc := &Encoder{Detector: det, Cache: cache}

	var report *Report
	for range 2 {
		var err error
		if _, report, err = enc.Encode(context.Background(), []string{"101"}, dir); err != nil {
			t.Fatal(err)
		}
	}
	if cache.Len() != 0 {
		t.Errorf("cache.Len() = %d, want 0", cache.Len())
	}
	if report.CacheSize != -1 {
		t.Errorf("CacheSize = %d, want -1", report.CacheSize)
	}
	if det.calls != 2 {
		t.Errorf("detector calls = %d, want 2", det.calls)
	}
}
