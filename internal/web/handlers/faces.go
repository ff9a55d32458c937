package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facechain/internal/backend"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/facestore"
)

// FaceDeleter removes a stored face on the backend
type FaceDeleter interface {
	DeleteFace(ctx context.Context, id backend.ID) error
}

// FacesHandler serves the stored face list and keeps the matcher in sync with it
type FacesHandler struct {
	store   *facestore.Store
	deleter FaceDeleter
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(store *facestore.Store, deleter FaceDeleter) *FacesHandler {
	return &FacesHandler{store: store, deleter: deleter}
}

// FaceResponse is a stored face without its descriptor
type FaceResponse struct {
	ID    backend.ID `json:"id"`
	Label string     `json:"label"`
}

// FacesListResponse lists the faces of the last sync
type FacesListResponse struct {
	Faces    []FaceResponse `json:"faces"`
	Labels   []string       `json:"labels"`
	Indexed  bool           `json:"indexed"`
	SyncedAt *time.Time     `json:"synced_at,omitempty"`
}

// List returns the synced faces. ?label= filters by normalized label,
// ?refresh=true syncs with the backend first.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" || h.store.SyncedAt().IsZero() {
		if _, err := h.store.Refresh(r.Context()); err != nil {
			respondErr(w, r, err)
			return
		}
	}

	filter := facematch.NormalizeLabel(r.URL.Query().Get("label"))
	faces := h.store.Faces()
	resp := FacesListResponse{
		Faces:   make([]FaceResponse, 0, len(faces)),
		Labels:  distinctLabels(h.store.Labels()),
		Indexed: h.store.Matcher().Indexed(),
	}
	for _, f := range faces {
		if filter != "" && facematch.NormalizeLabel(f.Label) != filter {
			continue
		}
		resp.Faces = append(resp.Faces, FaceResponse{ID: f.ID, Label: f.Label})
	}
	if synced := h.store.SyncedAt(); !synced.IsZero() {
		resp.SyncedAt = &synced
	}

	respondJSON(w, http.StatusOK, resp)
}

// Delete removes a face on the backend and rebuilds the matcher
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing face ID")
		return
	}

	if err := h.deleter.DeleteFace(r.Context(), backend.ID(id)); err != nil {
		if faceerr.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondErr(w, r, err)
		return
	}

	if _, err := h.store.Refresh(r.Context()); err != nil {
		log.WithError(err).Warn("Face deleted but matcher refresh failed")
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// Refresh re-syncs the matcher with the backend
func (h *FacesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	matcher, err := h.store.Refresh(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"faces":   matcher.Len(),
		"labels":  len(distinctLabels(h.store.Labels())),
		"indexed": matcher.Indexed(),
	})
}

// distinctLabels keeps the first spelling of every normalized label, in order.
func distinctLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		key := facematch.NormalizeLabel(l)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
