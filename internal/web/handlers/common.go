package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/logging"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

const timeFormat = time.RFC3339

var log = logging.WithComponent("web")

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a pipeline error to its status code. Server-side failures are
// logged; the client gets the error text either way.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := faceerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", sanitizeForLog(r.URL.Path)).Error("Request failed")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON decodes an optional JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err //nolint:wrapcheck // callers answer with errInvalidRequestBody
}

// displaySize reads width/height values, falling back to zero (natural size).
func displaySize(width, height string) facematch.Size {
	w, _ := strconv.Atoi(width)
	h, _ := strconv.Atoi(height)
	if w <= 0 || h <= 0 {
		return facematch.Size{}
	}
	return facematch.Size{Width: w, Height: h}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
