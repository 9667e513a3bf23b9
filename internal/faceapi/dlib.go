//go:build dlib

package faceapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// DlibDetector runs dlib's face detector and ResNet embedding locally.
// It produces 128-d descriptors compared with Euclidean distance.
type DlibDetector struct {
	rec *face.Recognizer
	mu  sync.Mutex // the recognizer is not safe for concurrent use
}

// NewDlibDetector loads the dlib models from modelsDir.
func NewDlibDetector(modelsDir string) (Detector, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load recognizer: %w", err)
	}
	return &DlibDetector{rec: rec}, nil
}

// Detect finds faces in the JPEG data. The context is only checked before the
// call because the recognizer cannot be interrupted.
func (d *DlibDetector) Detect(ctx context.Context, jpegData []byte) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	found, err := d.rec.Recognize(jpegData)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to recognize image: %w", err)
	}

	faces := make([]Face, len(found))
	for i, f := range found {
		desc := make(facematch.Descriptor, len(f.Descriptor))
		copy(desc, f.Descriptor[:])
		r := f.Rectangle
		faces[i] = Face{
			Index:      i,
			Descriptor: desc,
			BBox:       []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)},
		}
	}
	return faces, nil
}

// Model returns the dlib model name.
func (d *DlibDetector) Model() string {
	return "dlib_face_recognition_resnet_model_v1"
}

// Close frees the native recognizer.
func (d *DlibDetector) Close() {
	d.rec.Close()
}
