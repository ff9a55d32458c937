// Package capture runs face detection over a camera stream at a fixed interval,
// or once over a still image.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
)

// ErrClosed is returned by Read on a source that has been closed or was never opened
var ErrClosed = errors.New("source is closed")

// Source is an exclusively owned media stream. Open acquires the device,
// Close releases it and must be safe to call more than once.
type Source interface {
	Open(ctx context.Context) error
	Read() (detector.Frame, error)
	Close() error
}

// StillImage is a Source that yields the same decoded image on every read
type StillImage struct {
	frame detector.Frame

	mu   sync.Mutex
	open bool
}

// NewStillImage decodes JPEG, PNG, GIF, BMP or WebP data.
func NewStillImage(data []byte) (*StillImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &StillImage{frame: detector.Frame{Image: img, Raw: data, CapturedAt: time.Now()}}, nil
}

// LoadStillImage reads and decodes an image file.
func LoadStillImage(path string) (*StillImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return NewStillImage(data)
}

// Frame returns the decoded image without opening the source.
func (s *StillImage) Frame() detector.Frame {
	return s.frame
}

func (s *StillImage) Open(_ context.Context) error {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return nil
}

func (s *StillImage) Read() (detector.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return detector.Frame{}, ErrClosed
	}
	return s.frame, nil
}

func (s *StillImage) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

// emptyFrame reports a frame without pixels, as cameras deliver while warming up.
func emptyFrame(f detector.Frame) error {
	if f.Image == nil || f.Image.Bounds().Empty() {
		return fmt.Errorf("empty frame: %w", faceerr.ErrNotReady)
	}
	return nil
}
