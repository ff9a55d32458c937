package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
)

func TestRespondErr(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"auth", fmt.Errorf("list faces: %w", faceerr.ErrAuth), http.StatusUnauthorized},
		{"backend status", &faceerr.StatusError{StatusCode: 500}, http.StatusBadGateway},
		{"no face", faceerr.ErrNoFace, http.StatusUnprocessableEntity},
		{"models", faceerr.ErrModelsNotReady, http.StatusServiceUnavailable},
		{"empty label", faceerr.ErrEmptyLabel, http.StatusBadRequest},
		{"camera busy", faceerr.ErrCameraBusy, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondErr(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body["error"] != tt.err.Error() {
				t.Errorf("error = %q, want %q", body["error"], tt.err.Error())
			}
		})
	}
}

func TestDisplaySize(t *testing.T) {
	tests := []struct {
		w, h string
		want facematch.Size
	}{
		{"640", "480", facematch.Size{Width: 640, Height: 480}},
		{"", "", facematch.Size{}},
		{"640", "0", facematch.Size{}},
		{"abc", "480", facematch.Size{}},
	}

	for _, tt := range tests {
		if got := displaySize(tt.w, tt.h); got != tt.want {
			t.Errorf("displaySize(%q, %q) = %+v, want %+v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\r\nlevel=error"); got != "alicelevel=error" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	HealthCheck(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
