package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/session"
)

func loadTestData(t *testing.T, filename string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filename))
	if err != nil {
		t.Fatalf("failed to load test data %s: %v", filename, err)
	}
	return data
}

func requireBearer(t *testing.T, w http.ResponseWriter, r *http.Request) bool {
	t.Helper()
	if r.Header.Get("Authorization") != "Bearer jwt-abc" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func setupMockServer(t *testing.T) *httptest.Server {
	t.Helper()

	facesData := loadTestData(t, "faces.json")
	loginData := loadTestData(t, "login.json")

	mux := http.NewServeMux()

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret" {
			http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(loginData)
	})

	mux.HandleFunc("/auth/current", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(t, w, r) {
			return
		}
		w.Write([]byte(`{"id":"u42","username":"alice"}`))
	})

	mux.HandleFunc("GET /faces", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(t, w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(facesData)
	})

	mux.HandleFunc("DELETE /faces/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(t, w, r) {
			return
		}
		if r.PathValue("id") == "missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(t, w, r) {
			return
		}
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Label == "" || len(req.Descriptor) != 128 {
			http.Error(w, "invalid face", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"registered"}`))
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, serverURL, token string) *Client {
	t.Helper()
	c, err := NewClient(serverURL, session.New(token))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient("not a url", nil); err == nil {
		t.Error("expected error for URL without scheme and host")
	}
}

func TestListFaces(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c := newTestClient(t, server.URL, "jwt-abc")

	faces, err := c.ListFaces(context.Background())
	if err != nil {
		t.Fatalf("ListFaces failed: %v", err)
	}

	if len(faces) != 3 {
		t.Fatalf("expected 3 faces, got %d", len(faces))
	}
	if faces[0].ID != "1" || faces[0].Label != "alice" {
		t.Errorf("unexpected first face: %s %s", faces[0].ID, faces[0].Label)
	}
	if faces[1].ID != "65f1c2" {
		t.Errorf("expected string id to be kept, got %s", faces[1].ID)
	}
	for _, f := range faces {
		if len(f.Descriptor) != 128 {
			t.Errorf("face %s: expected 128 values, got %d", f.ID, len(f.Descriptor))
		}
	}
}

func TestListFaces_NoTokenMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")

	_, err := c.ListFaces(context.Background())
	if !errors.Is(err, faceerr.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request without token, got %d", calls.Load())
	}
}

func setupErrorServer(statusCode int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
		w.Write([]byte(body))
	}))
}

func TestListFaces_NonSuccessStatus(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		server := setupErrorServer(code, "nope")

		c := newTestClient(t, server.URL, "jwt-abc")
		_, err := c.ListFaces(context.Background())
		server.Close()

		if !errors.Is(err, faceerr.ErrNetwork) {
			t.Errorf("status %d: expected ErrNetwork, got %v", code, err)
		}
		var se *faceerr.StatusError
		if !errors.As(err, &se) || se.StatusCode != code {
			t.Errorf("status %d: expected StatusError with code, got %v", code, err)
		}
		if errors.Is(err, faceerr.ErrAuth) {
			t.Errorf("status %d: a rejected token is a backend error, not ErrAuth: %v", code, err)
		}
	}
}

func TestListFaces_InvalidJSON(t *testing.T) {
	server := setupErrorServer(http.StatusOK, "{not json")
	defer server.Close()

	c := newTestClient(t, server.URL, "jwt-abc")
	if _, err := c.ListFaces(context.Background()); !errors.Is(err, faceerr.ErrNetwork) {
		t.Errorf("expected ErrNetwork for malformed body, got %v", err)
	}
}

func TestListFaces_ConnectionRefused(t *testing.T) {
	server := setupErrorServer(http.StatusOK, "[]")
	url := server.URL
	server.Close()

	c := newTestClient(t, url, "jwt-abc")
	if _, err := c.ListFaces(context.Background()); !errors.Is(err, faceerr.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

func TestRegisterFace(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c := newTestClient(t, server.URL, "jwt-abc")

	if err := c.RegisterFace(context.Background(), "carol", make([]float32, 128)); err != nil {
		t.Fatalf("RegisterFace failed: %v", err)
	}

	err := c.RegisterFace(context.Background(), "carol", make([]float32, 5))
	if !errors.Is(err, faceerr.ErrNetwork) {
		t.Errorf("expected ErrNetwork for rejected face, got %v", err)
	}
}

func TestDeleteFace(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c := newTestClient(t, server.URL, "jwt-abc")

	if err := c.DeleteFace(context.Background(), "1"); err != nil {
		t.Fatalf("DeleteFace failed: %v", err)
	}

	err := c.DeleteFace(context.Background(), "missing")
	if !faceerr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c := newTestClient(t, server.URL, "")

	user, err := c.Login(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != "u42" {
		t.Errorf("expected user u42, got %s", user.ID)
	}
	if token, _ := c.Session().Bearer(); token != "jwt-abc" {
		t.Errorf("expected token to be stored in session, got %q", token)
	}

	current, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if current.Username != "alice" {
		t.Errorf("unexpected current user %q", current.Username)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c := newTestClient(t, server.URL, "")

	_, err := c.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, faceerr.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
	if c.Session().Authenticated() {
		t.Error("failed login must not set a token")
	}
}

func TestLogin_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"token not a string", `{"token": 42, "user": {"id": "u1"}}`},
		{"user not an object", `{"token": "jwt-abc", "user": "alice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, "")
			_, err := c.Login(context.Background(), "alice@example.com", "secret")
			if !errors.Is(err, faceerr.ErrNetwork) {
				t.Errorf("expected ErrNetwork, got %v", err)
			}
			if errors.Is(err, faceerr.ErrAuth) {
				t.Errorf("malformed response must not look like a missing token: %v", err)
			}
			if c.Session().Authenticated() {
				t.Error("malformed response must not set a token")
			}
		})
	}
}

func TestLogin_SeparateAuthURL(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c, err := NewClient("http://faces.invalid", session.New(""), WithAuthURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := c.Login(context.Background(), "alice@example.com", "secret"); err != nil {
		t.Fatalf("Login against auth URL failed: %v", err)
	}
}

func TestLogout(t *testing.T) {
	c := newTestClient(t, "http://localhost", "jwt-abc")

	c.Logout()
	if c.Session().Authenticated() {
		t.Error("expected logged out session")
	}

	// Logging out twice must be safe
	c.Logout()
}

func TestCaptureResponse(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	dir := t.TempDir()
	c := newTestClient(t, server.URL, "jwt-abc")
	if err := c.SetCaptureDir(dir); err != nil {
		t.Fatalf("SetCaptureDir failed: %v", err)
	}

	if _, err := c.ListFaces(context.Background()); err != nil {
		t.Fatalf("ListFaces failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 captured response, got %d", len(entries))
	}
}

func TestResolveURL(t *testing.T) {
	c := newTestClient(t, "http://api.test/v1/", "")

	tests := []struct {
		segments []string
		want     string
	}{
		{[]string{"faces"}, "http://api.test/v1/faces"},
		{[]string{"faces/12"}, "http://api.test/v1/faces/12"},
		{[]string{"faces?label=alice"}, "http://api.test/v1/faces?label=alice"},
	}

	for _, tt := range tests {
		if got := resolveURL(c.faceURL, tt.segments...); got != tt.want {
			t.Errorf("resolveURL(%v) = %q, want %q", tt.segments, got, tt.want)
		}
	}
}

func TestID_JSON(t *testing.T) {
	tests := []struct {
		input string
		want  ID
	}{
		{`12`, "12"},
		{`"12"`, "12"},
		{`"abc"`, "abc"},
	}

	for _, tt := range tests {
		var id ID
		if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.input, err)
		}
		if id != tt.want {
			t.Errorf("unmarshal %s = %q, want %q", tt.input, id, tt.want)
		}
	}

	out, _ := json.Marshal(ID("12"))
	if string(out) != "12" {
		t.Errorf("expected numeric id to marshal as number, got %s", out)
	}
	out, _ = json.Marshal(ID("abc"))
	if string(out) != `"abc"` {
		t.Errorf("expected string id to marshal as string, got %s", out)
	}
}
