//go:build !gocv

package capture

import (
	"context"
	"errors"

	"github.com/kozaktomas/facechain/internal/detector"
)

// CameraSupported reports whether Webcam can open devices
const CameraSupported = false

// ErrNoCameraSupport is returned when the binary was built without OpenCV
var ErrNoCameraSupport = errors.New("camera support not compiled in (build with -tags gocv)")

// Webcam is unavailable without the gocv build tag
type Webcam struct {
	device int
}

// NewWebcam creates a source that fails to open.
func NewWebcam(device int) *Webcam {
	return &Webcam{device: device}
}

func (w *Webcam) Open(_ context.Context) error {
	return ErrNoCameraSupport
}

func (w *Webcam) Read() (detector.Frame, error) {
	return detector.Frame{}, ErrClosed
}

func (w *Webcam) Close() error {
	return nil
}
