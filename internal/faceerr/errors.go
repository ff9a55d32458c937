// Package faceerr defines the error taxonomy shared by the face recognition pipeline.
// Components wrap these sentinels with context; callers match with errors.Is.
package faceerr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means no credential is available or a login was refused.
	// A backend that rejects a sent token answers with a StatusError wrapping ErrNetwork.
	ErrAuth = errors.New("authentication token is missing")

	// ErrNetwork means a backend request failed in transport or with a non-2xx status
	ErrNetwork = errors.New("network request failed")

	// ErrNoFace means a single-face detection found nothing
	ErrNoFace = errors.New("no face detected")

	// ErrModelLoad means at least one model bundle could not be loaded
	ErrModelLoad = errors.New("failed to load models")

	// ErrModelsNotReady means detection was requested before the models were loaded
	ErrModelsNotReady = errors.New("models are not loaded")

	// ErrEmptyLabel rejects a registration without a name
	ErrEmptyLabel = errors.New("label must not be empty")

	// ErrSubmissionInFlight rejects a second registration submit while one is running
	ErrSubmissionInFlight = errors.New("registration already in progress")

	// ErrCameraBusy means another live or registration session owns the camera
	ErrCameraBusy = errors.New("camera is in use")

	// ErrNotReady means an operation needs a frame or stream that is not available yet
	ErrNotReady = errors.New("not ready")
)

// StatusError carries the HTTP status of a failed backend call. It unwraps to ErrNetwork.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrNetwork
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// HTTPStatus maps a pipeline error to the status code the web API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmptyLabel):
		return http.StatusBadRequest
	case errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrCameraBusy):
		return http.StatusConflict
	case errors.Is(err, ErrNoFace):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrModelLoad), errors.Is(err, ErrModelsNotReady), errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
