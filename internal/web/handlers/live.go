package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/facestore"
	"github.com/kozaktomas/facechain/internal/overlay"
)

const liveOwner = "live"

// LiveHandler runs the continuous recognition session on the camera
type LiveHandler struct {
	camera   *Camera
	det      detector.Detector
	store    *facestore.Store
	events   *EventBroadcaster
	renderer *overlay.Renderer
	opts     []capture.Option

	mu      sync.Mutex
	session *capture.Session
}

// NewLiveHandler creates a new live handler. opts apply to every capture session.
func NewLiveHandler(camera *Camera, det detector.Detector, store *facestore.Store, events *EventBroadcaster, style overlay.Style, opts ...capture.Option) *LiveHandler {
	return &LiveHandler{
		camera:   camera,
		det:      det,
		store:    store,
		events:   events,
		renderer: overlay.NewRenderer(style),
		opts:     opts,
	}
}

type sizeRequest struct {
	Width  int `json:"display_width"`
	Height int `json:"display_height"`
}

func (s sizeRequest) size() facematch.Size {
	if s.Width <= 0 || s.Height <= 0 {
		return facematch.Size{}
	}
	return facematch.Size{Width: s.Width, Height: s.Height}
}

// LiveStatus describes the live session
type LiveStatus struct {
	Running     bool           `json:"running"`
	SessionID   string         `json:"session_id,omitempty"`
	Detecting   bool           `json:"detecting"`
	DisplaySize facematch.Size `json:"display_size"`
	Stats       capture.Stats  `json:"stats"`
	LastSeq     uint64         `json:"last_seq,omitempty"`
	CameraOwner string         `json:"camera_owner,omitempty"`
}

func (h *LiveHandler) current() *capture.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil && h.session.State() == capture.StateRunning {
		return h.session
	}
	return nil
}

func (h *LiveHandler) status() LiveStatus {
	st := LiveStatus{CameraOwner: h.camera.Owner()}
	s := h.current()
	if s == nil {
		return st
	}
	st.Running = true
	st.SessionID = s.ID()
	st.Detecting = s.Detecting()
	st.DisplaySize = s.DisplaySize()
	st.Stats = s.Stats()
	if latest := s.Latest(); latest != nil {
		st.LastSeq = latest.Seq
	}
	return st
}

// Status returns the live session state
func (h *LiveHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// Start opens the camera and begins recognition. Starting a running session
// only updates its display size.
func (h *LiveHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	h.mu.Lock()
	if h.session != nil && h.session.State() == capture.StateRunning {
		h.session.SetDisplaySize(req.size())
		h.mu.Unlock()
		respondJSON(w, http.StatusOK, h.status())
		return
	}

	opts := append([]capture.Option{
		capture.WithMatcher(h.store.Matcher),
		capture.WithSink(h.events),
	}, h.opts...)
	s := capture.NewSession(h.camera.Source(liveOwner), h.det, opts...)
	s.SetDisplaySize(req.size())

	// The loop outlives this request.
	if err := s.Start(context.WithoutCancel(r.Context())); err != nil {
		h.mu.Unlock()
		respondErr(w, r, err)
		return
	}
	h.session = s
	h.mu.Unlock()

	go h.watch(s)

	log.WithField("session", s.ID()).Info("Live recognition started")
	respondJSON(w, http.StatusCreated, h.status())
}

// watch announces the end of a session, whether stopped or failed.
func (h *LiveHandler) watch(s *capture.Session) {
	<-s.Done()
	h.mu.Lock()
	if h.session == s {
		h.session = nil
	}
	h.mu.Unlock()
	h.events.SendEvent(Event{Type: EventStopped, Data: map[string]any{"session_id": s.ID(), "stats": s.Stats()}})
}

// Stop ends the live session and releases the camera
func (h *LiveHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	s := h.session
	h.session = nil
	h.mu.Unlock()

	if s != nil {
		if err := s.Stop(); err != nil {
			log.WithError(err).Warn("Camera did not close cleanly")
		}
		log.WithField("session", s.ID()).Info("Live recognition stopped")
	}
	respondJSON(w, http.StatusOK, h.status())
}

// Detection pauses or resumes detection while the camera keeps running.
// Body: {"enabled": bool}
func (h *LiveHandler) Detection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	s := h.current()
	if s == nil {
		respondErr(w, r, fmt.Errorf("live session is not running: %w", faceerr.ErrNotReady))
		return
	}
	if *req.Enabled {
		s.ResumeDetection()
	} else {
		s.PauseDetection()
	}
	respondJSON(w, http.StatusOK, h.status())
}

// Display updates the size the video is shown at; later ticks are resized to it.
func (h *LiveHandler) Display(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	s := h.current()
	if s == nil {
		respondErr(w, r, fmt.Errorf("live session is not running: %w", faceerr.ErrNotReady))
		return
	}
	s.SetDisplaySize(req.size())
	respondJSON(w, http.StatusOK, h.status())
}

// Events streams tick results as server-sent events
func (h *LiveHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.events, h.status())
}

// Overlay renders the latest tick of the live session.
func (h *LiveHandler) Overlay(w http.ResponseWriter, r *http.Request) {
	s := h.current()
	if s == nil {
		respondErr(w, r, fmt.Errorf("live session is not running: %w", faceerr.ErrNotReady))
		return
	}
	latest := s.Latest()
	if latest == nil {
		respondErr(w, r, fmt.Errorf("no frame analyzed yet: %w", faceerr.ErrNotReady))
		return
	}

	writeOverlay(w, r, h.renderer, latest)
}

// writeOverlay renders a tick as a PNG sized to its own display size. ?composite=true
// draws the overlay over the captured frame.
func writeOverlay(w http.ResponseWriter, r *http.Request, renderer *overlay.Renderer, tick *capture.Tick) {
	layer, err := renderer.RenderOn(overlay.Layout(tick.DisplaySize, facematch.Size{}), tick.Faces)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	out := layer
	if r.URL.Query().Get("composite") == "true" && tick.Frame.Image != nil {
		out = overlay.Composite(tick.Frame.Image, layer)
	}

	var buf bytes.Buffer
	if err := overlay.EncodePNG(&buf, out); err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// Shutdown stops a running session, e.g. when the server exits.
func (h *LiveHandler) Shutdown() error {
	h.mu.Lock()
	s := h.session
	h.session = nil
	h.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.Stop(); err != nil && !errors.Is(err, capture.ErrClosed) {
		return fmt.Errorf("stopping live session: %w", err)
	}
	return nil
}
