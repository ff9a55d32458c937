//go:build gocv

package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facechain/internal/detector"
)

// CameraSupported reports whether Webcam can open devices
const CameraSupported = true

// Webcam reads frames from a local video device through OpenCV
type Webcam struct {
	device int

	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
	seq uint64
}

// NewWebcam creates a source for the given device index. Nothing is opened yet.
func NewWebcam(device int) *Webcam {
	return &Webcam{device: device}
}

func (w *Webcam) Open(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(w.device)
	if err != nil {
		return fmt.Errorf("error opening video capture device %d: %w", w.device, err)
	}
	w.cap = vc
	w.mat = gocv.NewMat()
	return nil
}

func (w *Webcam) Read() (detector.Frame, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap == nil {
		return detector.Frame{}, ErrClosed
	}

	if ok := w.cap.Read(&w.mat); !ok {
		return detector.Frame{}, fmt.Errorf("cannot read device %d: %w", w.device, ErrClosed)
	}
	if w.mat.Empty() {
		return detector.Frame{}, emptyFrame(detector.Frame{})
	}

	img, err := w.mat.ToImage()
	if err != nil {
		return detector.Frame{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	w.seq++
	return detector.Frame{Image: img, Seq: w.seq, CapturedAt: time.Now()}, nil
}

func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap == nil {
		return nil
	}
	err := w.cap.Close()
	w.mat.Close()
	w.cap = nil
	if err != nil {
		return fmt.Errorf("failed to close video device %d: %w", w.device, err)
	}
	return nil
}
