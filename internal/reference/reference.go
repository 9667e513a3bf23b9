// Package reference turns a directory of portraits into the reference set used for matching.
package reference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/faceapi"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

// DefaultExtensions are tried in order when looking for <identifier>.<ext>.
var DefaultExtensions = []string{"jpg", "jpeg", "png"}

// Per-identifier failures recorded in a Report.
var (
	ErrImageNotFound     = errors.New("reference image not found")
	ErrImageUnreadable   = errors.New("reference image unreadable")
	ErrInvalidIdentifier = errors.New("identifier cannot name a file")
)

// Failure is a per-identifier problem that did not stop the batch.
type Failure struct {
	ID   string
	Path string // empty when no image was found
	Err  error
}

// Report summarizes an encoding pass.
type Report struct {
	Encoded  []string // identifiers with a reference, roster order
	Cached   int      // how many of Encoded came from the cache
	Failures []Failure

	// CacheSize is the number of descriptors in the cache after the pass,
	// -1 when no cache is in use.
	CacheSize int
}

// Skipped returns the identifiers that have no reference.
func (r *Report) Skipped() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.ID
	}
	return out
}

// ProgressFunc is called once per identifier after it has been processed.
type ProgressFunc func(done, total int, id string)

// Encoder computes one descriptor per roster identifier.
type Encoder struct {
	Detector     faceapi.Detector
	Extensions   []string
	MaxImageSize int
	Cache        database.ReferenceCache // optional
	Progress     ProgressFunc            // optional
	Logger       *zap.Logger             // optional

	readImage func(path string) ([]byte, error)
}

func (e *Encoder) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Encoder) extensions() []string {
	if len(e.Extensions) == 0 {
		return DefaultExtensions
	}
	return e.Extensions
}

func (e *Encoder) read(path string) ([]byte, error) {
	if e.readImage != nil {
		return e.readImage(path)
	}
	return faceapi.ReadImage(path)
}

// ResolveImage returns the first existing dir/<id>.<ext> in extension order.
// Identifiers that would leave dir are rejected.
func ResolveImage(dir, id string, extensions []string) (string, error) {
	if !isFileName(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	for _, ext := range extensions {
		path := filepath.Join(dir, id+"."+strings.TrimPrefix(ext, "."))
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w for %s in %s", ErrImageNotFound, id, dir)
}

// Encode builds a reference set for ids from portraits in dir.
// Invalid identifiers, missing or unreadable portraits, portraits without a
// face and undecodable files are recorded in the report. Any other error
// aborts the pass and no set is returned.
func (e *Encoder) Encode(ctx context.Context, ids []string, dir string) (*facematch.ReferenceSet, *Report, error) {
	if e.Detector == nil {
		return nil, nil, errors.New("reference encoder has no face detector")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reference directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("reference directory: %s is not a directory", dir)
	}

	log := e.logger()
	set := facematch.NewReferenceSet()
	report := &Report{}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		path, descriptor, cached, err := e.encodeOne(ctx, dir, id)
		switch {
		case err == nil:
			if set.Add(id, descriptor) {
				report.Encoded = append(report.Encoded, id)
				if cached {
					report.Cached++
				}
			}
		case isPerImage(err):
			log.Warn("skipping reference", zap.String("id", id), zap.String("path", path), zap.Error(err))
			report.Failures = append(report.Failures, Failure{ID: id, Path: path, Err: err})
		default:
			return nil, nil, fmt.Errorf("encoding reference %s: %w", id, err)
		}

		if e.Progress != nil {
			e.Progress(i+1, len(ids), id)
		}
	}

	report.CacheSize = e.cacheSize(ctx)
	log.Info("references encoded",
		zap.Int("encoded", len(report.Encoded)),
		zap.Int("cached", report.Cached),
		zap.Strings("skipped", report.Skipped()))
	return set, report, nil
}

// isFileName reports whether id is a single path element.
func isFileName(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

func isPerImage(err error) bool {
	var de *faceapi.DecodeError
	return errors.Is(err, ErrImageNotFound) ||
		errors.Is(err, ErrImageUnreadable) ||
		errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, faceapi.ErrNoFace) ||
		errors.As(err, &de)
}

func (e *Encoder) encodeOne(ctx context.Context, dir, id string) (string, facematch.Descriptor, bool, error) {
	path, err := ResolveImage(dir, id, e.extensions())
	if err != nil {
		return "", nil, false, err
	}
	data, err := e.read(path)
	if err != nil {
		return path, nil, false, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}

	hash := imageHash(data)
	if d, ok := e.cached(ctx, id, hash); ok {
		return path, d, true, nil
	}

	faces, err := faceapi.DetectImage(ctx, e.Detector, data, e.MaxImageSize)
	if err != nil {
		var de *faceapi.DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return path, nil, false, err
	}
	if len(faces) == 0 {
		return path, nil, false, fmt.Errorf("%s: %w", path, faceapi.ErrNoFace)
	}
	if len(faces) > 1 {
		e.logger().Debug("multiple faces in reference, using the first",
			zap.String("id", id), zap.Int("faces", len(faces)))
	}

	d := faces[0].Descriptor
	e.store(ctx, id, hash, d)
	return path, d, false, nil
}

// useCache reports whether descriptors can be cached. Entries are keyed by
// model, so an unknown model disables the cache.
func (e *Encoder) useCache() bool {
	return e.Cache != nil && e.Detector.Model() != ""
}

func (e *Encoder) cacheSize(ctx context.Context) int {
	if !e.useCache() {
		return -1
	}
	n, err := e.Cache.Count(ctx)
	if err != nil {
		e.logger().Warn("reference cache count failed", zap.Error(err))
		return -1
	}
	return n
}

func (e *Encoder) cached(ctx context.Context, id, hash string) (facematch.Descriptor, bool) {
	if !e.useCache() {
		return nil, false
	}
	ref, err := e.Cache.GetReference(ctx, id, hash, e.Detector.Model())
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			e.logger().Warn("reference cache lookup failed", zap.String("id", id), zap.Error(err))
		}
		return nil, false
	}
	return facematch.Descriptor(ref.Descriptor), true
}

func (e *Encoder) store(ctx context.Context, id, hash string, d facematch.Descriptor) {
	if !e.useCache() {
		return
	}
	err := e.Cache.SaveReference(ctx, database.StoredReference{
		Identifier: id,
		ImageHash:  hash,
		Model:      e.Detector.Model(),
		Descriptor: d,
	})
	if err != nil {
		e.logger().Warn("failed to cache reference", zap.String("id", id), zap.Error(err))
	}
}

func imageHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
