package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facestore"
	"github.com/kozaktomas/facechain/internal/overlay"
	"github.com/kozaktomas/facechain/internal/register"
)

const registerOwner = "register"

// RegisterHandler drives one registration flow at a time
type RegisterHandler struct {
	camera    *Camera
	det       detector.Detector
	registrar register.Registrar
	store     *facestore.Store
	events    *EventBroadcaster
	opts      []capture.Option

	renderer *overlay.Renderer

	mu   sync.Mutex
	flow *register.Flow
}

// NewRegisterHandler creates a new register handler. opts apply to the preview session.
func NewRegisterHandler(camera *Camera, det detector.Detector, registrar register.Registrar, store *facestore.Store, events *EventBroadcaster, style overlay.Style, opts ...capture.Option) *RegisterHandler {
	return &RegisterHandler{
		renderer:  overlay.NewRenderer(style),
		camera:    camera,
		det:       det,
		registrar: registrar,
		store:     store,
		events:    events,
		opts:      opts,
	}
}

var errNoRegistration = errors.New("no registration in progress")

func (h *RegisterHandler) newPreview() register.Preview {
	opts := append([]capture.Option{
		capture.WithMatcher(h.store.Matcher),
		capture.WithSink(h.events),
	}, h.opts...)
	return capture.NewSession(h.camera.Source(registerOwner), h.det, opts...)
}

// onRegistered rebuilds the matcher so the new face is recognized right away.
func (h *RegisterHandler) onRegistered(ctx context.Context, res register.Result) {
	if _, err := h.store.Refresh(ctx); err != nil {
		log.WithError(err).Warn("Face registered but matcher refresh failed")
	}
	h.events.SendEvent(Event{Type: EventRegistered, Data: res})
}

// Start validates the label and opens the camera preview. Body: {"label": "..."}.
// A flow that is still open is abandoned first.
func (h *RegisterHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	flow, err := register.New(req.Label, h.det, h.registrar, h.newPreview,
		register.WithExistingLabels(h.store.Labels()),
		register.WithOnRegistered(h.onRegistered),
	)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.flow != nil {
		if err := h.flow.Close(); err != nil {
			log.WithError(err).Warn("Previous registration did not release the camera")
		}
		h.flow = nil
	}

	// The preview outlives this request.
	if err := flow.Begin(context.WithoutCancel(r.Context())); err != nil {
		respondErr(w, r, err)
		return
	}
	h.flow = flow

	log.WithField("label", sanitizeForLog(flow.Label())).Info("Registration started")
	respondJSON(w, http.StatusCreated, flow.Status())
}

func (h *RegisterHandler) current() *register.Flow {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flow
}

// Status returns the current flow
func (h *RegisterHandler) Status(w http.ResponseWriter, r *http.Request) {
	flow := h.current()
	if flow == nil {
		respondError(w, http.StatusNotFound, errNoRegistration.Error())
		return
	}
	respondJSON(w, http.StatusOK, flow.Status())
}

// Preview renders the latest preview frame with its detections
func (h *RegisterHandler) Preview(w http.ResponseWriter, r *http.Request) {
	flow := h.current()
	if flow == nil {
		respondError(w, http.StatusNotFound, errNoRegistration.Error())
		return
	}
	session, ok := flow.Preview().(*capture.Session)
	if !ok {
		respondErr(w, r, fmt.Errorf("registration is %s: %w", flow.State(), faceerr.ErrNotReady))
		return
	}
	latest := session.Latest()
	if latest == nil {
		respondErr(w, r, fmt.Errorf("no frame analyzed yet: %w", faceerr.ErrNotReady))
		return
	}
	writeOverlay(w, r, h.renderer, latest)
}

// Submit captures one face and stores it under the flow's label
func (h *RegisterHandler) Submit(w http.ResponseWriter, r *http.Request) {
	flow := h.current()
	if flow == nil {
		respondError(w, http.StatusNotFound, errNoRegistration.Error())
		return
	}

	result, err := flow.Submit(r.Context())
	if err != nil {
		if !errors.Is(err, faceerr.ErrNoFace) && !errors.Is(err, faceerr.ErrSubmissionInFlight) {
			log.WithError(err).Warn("Registration submit failed")
		}
		respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// Cancel abandons the flow and releases the camera
func (h *RegisterHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	flow := h.flow
	h.flow = nil
	h.mu.Unlock()

	if flow == nil {
		respondJSON(w, http.StatusOK, map[string]bool{"cancelled": false})
		return
	}
	if err := flow.Close(); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// Shutdown releases the camera held by an open flow.
func (h *RegisterHandler) Shutdown() error {
	h.mu.Lock()
	flow := h.flow
	h.flow = nil
	h.mu.Unlock()
	if flow == nil {
		return nil
	}
	return flow.Close() //nolint:wrapcheck // flow errors carry their own context
}
