// Package register captures one face from the live camera and stores it under a label.
package register

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/logging"
)

// State is the registration step
type State string

const (
	StateIdle       State = "idle"       // label accepted, camera not started
	StatePreview    State = "preview"    // camera running with continuous detection
	StateSubmitting State = "submitting" // single-face capture and upload in progress
	StateRegistered State = "registered" // face stored, camera released
	StateClosed     State = "closed"     // abandoned, camera released
)

// Preview is the live camera the flow captures from. *capture.Session implements it.
type Preview interface {
	Start(ctx context.Context) error
	Stop() error
	PauseDetection()
	ResumeDetection()
	Capture() (detector.Frame, error)
}

// Registrar stores a labeled descriptor on the backend
type Registrar interface {
	RegisterFace(ctx context.Context, label string, descriptor []float32) error
}

// Result describes a completed registration
type Result struct {
	Label        string    `json:"label"`
	Score        float64   `json:"score"`
	RegisteredAt time.Time `json:"registered_at"`
	Duplicate    bool      `json:"duplicate"`
}

// Status is a snapshot of the flow for status endpoints
type Status struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	State     State   `json:"state"`
	Duplicate bool    `json:"duplicate"`
	Error     string  `json:"error,omitempty"`
	Result    *Result `json:"result,omitempty"`
}

// Flow is one registration attempt. It starts the camera only after the label
// is known, and allows one submission at a time.
type Flow struct {
	id         string
	label      string
	duplicate  bool
	det        detector.Detector
	registrar  Registrar
	newPreview func() Preview
	onDone     func(ctx context.Context, r Result)
	log        *logrus.Entry

	submitting atomic.Bool

	mu      sync.Mutex
	state   State
	preview Preview
	result  *Result
	lastErr error
}

// Option configures a Flow
type Option func(*Flow)

// WithExistingLabels marks the flow as a duplicate when the label matches one of these
// after normalization. Duplicates are allowed; the flag is informational.
func WithExistingLabels(labels []string) Option {
	return func(f *Flow) {
		f.duplicate = facematch.ContainsLabel(labels, f.label)
	}
}

// WithOnRegistered runs after a successful registration, e.g. to rebuild the matcher.
func WithOnRegistered(fn func(ctx context.Context, r Result)) Option {
	return func(f *Flow) { f.onDone = fn }
}

// New validates the label and prepares a flow. The preview factory is not called
// until Begin, so an empty label never touches the camera.
func New(label string, det detector.Detector, registrar Registrar, newPreview func() Preview, opts ...Option) (*Flow, error) {
	label = facematch.CleanLabel(label)
	if label == "" {
		return nil, faceerr.ErrEmptyLabel
	}

	f := &Flow{
		id:         uuid.NewString(),
		label:      label,
		det:        det,
		registrar:  registrar,
		newPreview: newPreview,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = logging.WithComponent("register").WithField("flow", f.id).WithField("label", label)
	if f.duplicate {
		f.log.Warn("Label already registered, adding another descriptor")
	}
	return f, nil
}

// ID returns the flow identifier.
func (f *Flow) ID() string {
	return f.id
}

// Label returns the cleaned label.
func (f *Flow) Label() string {
	return f.label
}

// State returns the current step.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Status returns a snapshot for reporting.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Status{ID: f.id, Label: f.label, State: f.state, Duplicate: f.duplicate, Result: f.result}
	if f.lastErr != nil {
		s.Error = f.lastErr.Error()
	}
	return s
}

// Preview returns the running camera, or nil outside the preview state.
func (f *Flow) Preview() Preview {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.preview
}

// Begin starts the camera with continuous preview detection.
func (f *Flow) Begin(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle {
		return fmt.Errorf("registration is %s: %w", f.state, faceerr.ErrNotReady)
	}

	p := f.newPreview()
	if err := p.Start(ctx); err != nil {
		f.lastErr = err
		return fmt.Errorf("could not start camera: %w", err)
	}
	f.preview = p
	f.state = StatePreview
	f.log.Debug("Preview started")
	return nil
}

// Submit captures a single face from the current frame and registers it.
// A missing face returns ErrNoFace and resumes the preview for another attempt.
func (f *Flow) Submit(ctx context.Context) (*Result, error) {
	if !f.submitting.CompareAndSwap(false, true) {
		return nil, faceerr.ErrSubmissionInFlight
	}
	defer f.submitting.Store(false)

	f.mu.Lock()
	if f.state != StatePreview {
		state := f.state
		f.mu.Unlock()
		return nil, fmt.Errorf("registration is %s: %w", state, faceerr.ErrNotReady)
	}
	p := f.preview
	f.state = StateSubmitting
	f.lastErr = nil
	f.mu.Unlock()

	p.PauseDetection()

	result, err := f.capture(ctx, p)
	if err != nil {
		f.mu.Lock()
		f.lastErr = err
		if f.state == StateSubmitting {
			f.state = StatePreview
		}
		f.mu.Unlock()
		p.ResumeDetection()

		if errors.Is(err, faceerr.ErrNoFace) {
			f.log.Info("No face detected, preview resumed")
		} else {
			f.log.WithError(err).Error("Registration failed")
		}
		return nil, err
	}

	f.mu.Lock()
	f.result = result
	f.state = StateRegistered
	f.preview = nil
	f.mu.Unlock()

	if err := p.Stop(); err != nil {
		f.log.WithError(err).Warn("Failed to release camera")
	}
	f.log.WithField("score", result.Score).Info("Registered face")

	if f.onDone != nil {
		f.onDone(ctx, *result)
	}
	return result, nil
}

func (f *Flow) capture(ctx context.Context, p Preview) (*Result, error) {
	frame, err := p.Capture()
	if err != nil {
		return nil, err //nolint:wrapcheck // preview errors carry their own context
	}

	det, err := f.det.DetectSingle(ctx, frame)
	if err != nil {
		return nil, err //nolint:wrapcheck // detector errors carry their own context
	}
	if det == nil || len(det.Descriptor) == 0 {
		return nil, faceerr.ErrNoFace
	}

	if err := f.registrar.RegisterFace(ctx, f.label, []float32(det.Descriptor)); err != nil {
		return nil, err //nolint:wrapcheck // backend errors carry their own context
	}

	return &Result{
		Label:        f.label,
		Score:        det.Score,
		RegisteredAt: time.Now(),
		Duplicate:    f.duplicate,
	}, nil
}

// Close abandons the flow and releases the camera. Safe to call in any state and repeatedly.
func (f *Flow) Close() error {
	f.mu.Lock()
	p := f.preview
	f.preview = nil
	if f.state != StateRegistered {
		f.state = StateClosed
	}
	f.mu.Unlock()

	if p == nil {
		return nil
	}
	if err := p.Stop(); err != nil {
		return fmt.Errorf("could not release camera: %w", err)
	}
	return nil
}
