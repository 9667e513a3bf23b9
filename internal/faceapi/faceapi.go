// Package faceapi detects faces in images and computes their descriptors.
// Detection itself is delegated to a face service: either the HTTP embedding
// server or a local dlib recognizer (build tag "dlib").
package faceapi

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

// ErrNoFace is returned where one face was expected but none was detected.
var ErrNoFace = errors.New("no face detected")

// DecodeError is returned when image bytes cannot be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Face is a single detected face.
type Face struct {
	Index      int
	Descriptor facematch.Descriptor
	BBox       []float64 // [x1, y1, x2, y2] in pixels of the prepared image
	Score      float64   // detection confidence, 0 when the backend does not report it
}

// Detector finds all faces in a JPEG image and computes one descriptor per face.
type Detector interface {
	Detect(ctx context.Context, jpegData []byte) ([]Face, error)
	// Model names the embedding model so cached descriptors are not mixed across models.
	Model() string
}

// New builds the detector selected by cfg.Backend.
func New(cfg config.FaceConfig) (Detector, error) {
	switch cfg.Backend {
	case "", "http":
		return NewHTTPDetector(cfg.ServiceURL, cfg.Model), nil
	case "dlib":
		return NewDlibDetector(cfg.ModelsDir)
	default:
		return nil, fmt.Errorf("unknown face backend %q (want http or dlib)", cfg.Backend)
	}
}

// ReadImage reads an image file. Missing files keep fs.ErrNotExist in the chain.
func ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// DetectImage decodes raw image bytes, prepares them for the detector and runs detection.
// Decoding failures are returned as *DecodeError.
func DetectImage(ctx context.Context, d Detector, data []byte, maxSize int) ([]Face, error) {
	prepared, err := PrepareImage(data, maxSize)
	if err != nil {
		return nil, err
	}
	faces, err := d.Detect(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	return faces, nil
}

// DetectFile is ReadImage followed by DetectImage, with the path recorded in decode errors.
func DetectFile(ctx context.Context, d Detector, path string, maxSize int) ([]Face, error) {
	data, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	faces, err := DetectImage(ctx, d, data, maxSize)
	var de *DecodeError
	if errors.As(err, &de) {
		de.Path = path
	}
	return faces, err
}

// Descriptors extracts the descriptors of faces in detection order.
func Descriptors(faces []Face) []facematch.Descriptor {
	out := make([]facematch.Descriptor, len(faces))
	for i, f := range faces {
		out[i] = f.Descriptor
	}
	return out
}
