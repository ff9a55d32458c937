package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facechain/internal/constants"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/logging"
)

// State is the lifecycle state of a Session
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Sink receives every processed tick
type Sink interface {
	Publish(t Tick)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(t Tick)

func (f SinkFunc) Publish(t Tick) { f(t) }

// Stats counts what the loop did
type Stats struct {
	Ticks   uint64 `json:"ticks"`
	Skipped uint64 `json:"skipped"`
	Errors  uint64 `json:"errors"`
}

// Session owns one media source and polls it at a fixed interval.
// The source is opened before the first tick; on every exit path the ticker
// is stopped first, in-flight work drains, and only then the source is closed.
type Session struct {
	id        string
	src       Source
	det       detector.Detector
	matcher   MatcherFunc
	sink      Sink
	interval  time.Duration
	newTicker TickerFactory
	log       *logrus.Entry

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	readMu   sync.Mutex // serializes Source.Read between ticks and Capture
	inFlight atomic.Bool
	detect   atomic.Bool
	display  atomic.Pointer[facematch.Size]
	latest   atomic.Pointer[Tick]
	closeErr error

	ticks, skipped, errs atomic.Uint64
}

// Option configures a Session
type Option func(*Session)

// WithInterval sets the polling interval
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTicker replaces the ticker factory
func WithTicker(f TickerFactory) Option {
	return func(s *Session) { s.newTicker = f }
}

// WithMatcher sets the matcher provider; without one faces are not labeled
func WithMatcher(f MatcherFunc) Option {
	return func(s *Session) { s.matcher = f }
}

// WithSink sets where tick results go
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithDetectionPaused starts the session with detection disabled (camera preview only)
func WithDetectionPaused() Option {
	return func(s *Session) { s.detect.Store(false) }
}

// NewSession creates an idle session. Nothing is acquired until Start.
func NewSession(src Source, det detector.Detector, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		src:       src,
		det:       det,
		interval:  constants.DefaultCaptureInterval,
		newTicker: NewTimeTicker,
		state:     StateIdle,
	}
	s.detect.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.WithComponent("capture").WithField("session", s.id)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the source and begins polling. A session can be started once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("capture session is %s", s.state)
	}

	if err := s.src.Open(ctx); err != nil {
		s.state = StateStopped
		return fmt.Errorf("could not open media source: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	ticker := s.newTicker(s.interval)
	s.state = StateRunning

	go s.run(loopCtx, ticker)

	s.log.WithField("interval", s.interval).Debug("Capture started")
	return nil
}

// Stop ends the loop and releases the source. It is safe to call repeatedly
// and after the loop has already exited on its own.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return s.closeErr
}

// Done is closed once the loop has exited and the source is released.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

func (s *Session) run(ctx context.Context, ticker Ticker) {
	var work sync.WaitGroup

	defer func() {
		ticker.Stop()
		work.Wait()
		s.closeErr = s.src.Close()

		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		close(s.done)

		s.log.WithField("ticks", s.ticks.Load()).WithField("skipped", s.skipped.Load()).Debug("Capture stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.detect.Load() {
				continue
			}
			if !s.inFlight.CompareAndSwap(false, true) {
				s.skipped.Add(1)
				continue
			}
			work.Add(1)
			go func() {
				defer work.Done()
				defer s.inFlight.Store(false)
				if fatal := s.tick(ctx); fatal {
					s.cancel()
				}
			}()
		}
	}
}

// tick processes one frame. It reports true when the source is gone and the loop must end.
func (s *Session) tick(ctx context.Context) bool {
	s.ticks.Add(1)

	s.readMu.Lock()
	frame, err := s.src.Read()
	s.readMu.Unlock()

	if err != nil {
		if errors.Is(err, faceerr.ErrNotReady) {
			return false
		}
		s.errs.Add(1)
		s.publish(Tick{At: time.Now(), Err: err, Error: err.Error()})
		return errors.Is(err, ErrClosed)
	}

	var matcher *facematch.Matcher
	if s.matcher != nil {
		matcher = s.matcher()
	}

	t, err := Analyze(ctx, s.det, matcher, frame, s.DisplaySize())
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.errs.Add(1)
		s.log.WithError(err).Warn("Detection failed")
		s.publish(Tick{Seq: frame.Seq, At: time.Now(), Frame: frame, Err: err, Error: err.Error()})
		return false
	}

	s.latest.Store(t)
	s.publish(*t)
	return false
}

func (s *Session) publish(t Tick) {
	t.SessionID = s.id
	if s.sink != nil {
		s.sink.Publish(t)
	}
}

// PauseDetection stops running detection on ticks while keeping the source open.
func (s *Session) PauseDetection() {
	s.detect.Store(false)
}

// ResumeDetection re-enables detection on ticks.
func (s *Session) ResumeDetection() {
	s.detect.Store(true)
}

// Detecting reports whether ticks currently run detection.
func (s *Session) Detecting() bool {
	return s.detect.Load()
}

// SetDisplaySize records the size the media is displayed at; subsequent ticks resize
// detections to it. An empty size means natural size.
func (s *Session) SetDisplaySize(size facematch.Size) {
	s.display.Store(&size)
}

// DisplaySize returns the current display size, empty when unset.
func (s *Session) DisplaySize() facematch.Size {
	if p := s.display.Load(); p != nil {
		return *p
	}
	return facematch.Size{}
}

// Latest returns the most recent successful tick, or nil.
func (s *Session) Latest() *Tick {
	return s.latest.Load()
}

// Capture reads a fresh frame from the running source.
func (s *Session) Capture() (detector.Frame, error) {
	if s.State() != StateRunning {
		return detector.Frame{}, fmt.Errorf("capture session is not running: %w", faceerr.ErrNotReady)
	}
	s.readMu.Lock()
	defer s.readMu.Unlock()
	frame, err := s.src.Read()
	if err != nil {
		return detector.Frame{}, err //nolint:wrapcheck // source errors carry their own context
	}
	if err := emptyFrame(frame); err != nil {
		return detector.Frame{}, err
	}
	return frame, nil
}

// Stats returns loop counters.
func (s *Session) Stats() Stats {
	return Stats{Ticks: s.ticks.Load(), Skipped: s.skipped.Load(), Errors: s.errs.Load()}
}
