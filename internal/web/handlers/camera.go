package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
)

// Camera lends the single capture device to one owner at a time. Ownership is
// taken when a source opens and returned when it closes.
type Camera struct {
	newSource func() capture.Source

	mu    sync.Mutex
	owner string
}

// NewCamera creates a camera around a source factory, e.g. a webcam device.
func NewCamera(newSource func() capture.Source) *Camera {
	return &Camera{newSource: newSource}
}

// Owner returns who holds the camera, empty when free.
func (c *Camera) Owner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Source returns a source that claims the camera for owner when opened.
func (c *Camera) Source(owner string) capture.Source {
	return &cameraSource{camera: c, owner: owner}
}

func (c *Camera) acquire(owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner != "" {
		return fmt.Errorf("held by %s: %w", c.owner, faceerr.ErrCameraBusy)
	}
	c.owner = owner
	return nil
}

func (c *Camera) release(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == owner {
		c.owner = ""
	}
}

type cameraSource struct {
	camera *Camera
	owner  string
	src    capture.Source
}

func (s *cameraSource) Open(ctx context.Context) error {
	if err := s.camera.acquire(s.owner); err != nil {
		return err
	}
	s.src = s.camera.newSource()
	if err := s.src.Open(ctx); err != nil {
		s.camera.release(s.owner)
		return err //nolint:wrapcheck // capture.Session adds context
	}
	return nil
}

func (s *cameraSource) Read() (detector.Frame, error) {
	if s.src == nil {
		return detector.Frame{}, capture.ErrClosed
	}
	return s.src.Read() //nolint:wrapcheck // source errors carry their own context
}

func (s *cameraSource) Close() error {
	if s.src == nil {
		return nil
	}
	defer s.camera.release(s.owner)
	return s.src.Close() //nolint:wrapcheck // source errors carry their own context
}
