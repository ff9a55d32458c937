package handlers

import (
	"net/http"

	"github.com/kozaktomas/facechain/internal/models"
)

// ModelsHandler reports model bundle readiness
type ModelsHandler struct {
	loader *models.Loader
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(loader *models.Loader) *ModelsHandler {
	return &ModelsHandler{loader: loader}
}

// ModelsStatus is the readiness snapshot
type ModelsStatus struct {
	Ready bool                `json:"ready"`
	Dir   string              `json:"dir,omitempty"`
	Files map[string][]string `json:"files,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Status returns whether the model bundles are loaded
func (h *ModelsHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := ModelsStatus{Ready: h.loader.Ready()}
	if set := h.loader.Set(); set != nil {
		status.Dir = set.Dir
		status.Files = set.Files
	}
	if err := h.loader.Err(); err != nil {
		status.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, status)
}
