package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facechain/internal/backend"
	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/constants"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/facestore"
)

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func descriptorAt(v float64) []float64 {
	d := make([]float64, constants.DescriptorDim)
	d[0] = v
	return d
}

func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeLister serves a mutable face list to the store
type fakeLister struct {
	mu    sync.Mutex
	faces []backend.Face
	err   error
	calls atomic.Int32
}

func (l *fakeLister) ListFaces(_ context.Context) ([]backend.Face, error) {
	l.calls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return append([]backend.Face(nil), l.faces...), nil
}

func (l *fakeLister) set(faces ...backend.Face) {
	l.mu.Lock()
	l.faces = faces
	l.mu.Unlock()
}

func newTestStore(t *testing.T, faces ...backend.Face) (*facestore.Store, *fakeLister) {
	t.Helper()
	lister := &fakeLister{faces: faces}
	store := facestore.New(lister, constants.DefaultDistanceThreshold)
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh store: %v", err)
	}
	return store, lister
}

// fakeDetector finds one face whose descriptor sits at position 0 = value
type fakeDetector struct {
	value  float32
	noFace bool
	err    error
}

func (d *fakeDetector) face() facematch.Detection {
	desc := make(facematch.Descriptor, constants.DescriptorDim)
	desc[0] = d.value
	return facematch.Detection{
		Box:         facematch.Box{X: 2, Y: 2, Width: 4, Height: 4},
		Score:       0.97,
		Descriptor:  desc,
		Expressions: map[string]float64{"happy": 0.9},
	}
}

func (d *fakeDetector) DetectAll(_ context.Context, frame detector.Frame) (*detector.Result, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.noFace {
		return &detector.Result{Size: frame.Size()}, nil
	}
	return &detector.Result{Faces: []facematch.Detection{d.face()}, Size: frame.Size()}, nil
}

func (d *fakeDetector) DetectSingle(_ context.Context, _ detector.Frame) (*facematch.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.noFace {
		return nil, faceerr.ErrNoFace
	}
	f := d.face()
	return &f, nil
}

// fakeSource is an always-available camera
type fakeSource struct {
	openErr error
	opened  atomic.Int32
	closed  atomic.Int32
	seq     atomic.Uint64
}

func (s *fakeSource) Open(_ context.Context) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened.Add(1)
	return nil
}

func (s *fakeSource) Read() (detector.Frame, error) {
	return detector.Frame{Image: testImage(16, 12), Seq: s.seq.Add(1), CapturedAt: time.Now()}, nil
}

func (s *fakeSource) Close() error {
	s.closed.Add(1)
	return nil
}

// manualTicker only ticks when fired
type manualTicker struct {
	c chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               {}

// fire sends a tick, giving up if the loop no longer listens.
func (t *manualTicker) fire() bool {
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}

func manualTickerOption(t *manualTicker) capture.Option {
	return capture.WithTicker(func(time.Duration) capture.Ticker { return t })
}

// fakeRegistrar records registrations
type fakeRegistrar struct {
	mu     sync.Mutex
	labels []string
	err    error
	onCall func(label string, descriptor []float32)
}

func (r *fakeRegistrar) RegisterFace(_ context.Context, label string, descriptor []float32) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.labels = append(r.labels, label)
	r.mu.Unlock()
	if r.onCall != nil {
		r.onCall(label, descriptor)
	}
	return nil
}

func (r *fakeRegistrar) registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.labels...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newUnsyncedStore(lister *fakeLister) *facestore.Store {
	return facestore.New(lister, constants.DefaultDistanceThreshold)
}
