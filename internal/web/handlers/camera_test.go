package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/faceerr"
)

func TestCamera_SingleOwner(t *testing.T) {
	camera := NewCamera(func() capture.Source { return &fakeSource{} })
	ctx := context.Background()

	live := camera.Source("live")
	reg := camera.Source("register")

	if err := live.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if camera.Owner() != "live" {
		t.Errorf("owner = %q, want live", camera.Owner())
	}
	if err := reg.Open(ctx); !errors.Is(err, faceerr.ErrCameraBusy) {
		t.Fatalf("second Open() error = %v, want ErrCameraBusy", err)
	}

	if err := live.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if camera.Owner() != "" {
		t.Errorf("owner after close = %q", camera.Owner())
	}
	if err := reg.Open(ctx); err != nil {
		t.Fatalf("Open() after release error = %v", err)
	}
	_ = reg.Close()
}

func TestCamera_OpenFailureReleases(t *testing.T) {
	openErr := errors.New("no device")
	camera := NewCamera(func() capture.Source { return &fakeSource{openErr: openErr} })

	if err := camera.Source("live").Open(context.Background()); !errors.Is(err, openErr) {
		t.Fatalf("Open() error = %v", err)
	}
	if camera.Owner() != "" {
		t.Errorf("owner = %q after failed open", camera.Owner())
	}
}

func TestCamera_UnopenedSource(t *testing.T) {
	camera := NewCamera(func() capture.Source { return &fakeSource{} })
	src := camera.Source("live")

	if _, err := src.Read(); !errors.Is(err, capture.ErrClosed) {
		t.Errorf("Read() error = %v, want ErrClosed", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
