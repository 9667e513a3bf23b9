//go:build !dlib

package faceapi

import "errors"

// NewDlibDetector is unavailable unless the binary is built with -tags dlib.
func NewDlibDetector(modelsDir string) (Detector, error) {
	return nil, errors.New("dlib backend not compiled in: rebuild with -tags dlib")
}
