package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not found")
	return nil
}

func TestSessionManager_CreateAndGet(t *testing.T) {
	sm := NewSessionManager("test-secret")

	session, err := sm.CreateSession("u42", "ops@example.com")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}

	retrieved := sm.GetSession(session.ID)
	if retrieved == nil || retrieved.UserID != "u42" {
		t.Fatalf("GetSession() = %+v, want user u42", retrieved)
	}
	if sm.GetSession("nonexistent-id") != nil {
		t.Error("GetSession() should return nil for unknown session")
	}
}

func TestSessionManager_Expiry(t *testing.T) {
	sm := NewSessionManager("test-secret")
	session, _ := sm.CreateSession("u42", "")

	sm.now = func() time.Time { return time.Now().Add(sessionDuration + time.Minute) }

	if sm.GetSession(session.ID) != nil {
		t.Error("expired session should not be returned")
	}
	sm.now = time.Now
	if sm.GetSession(session.ID) != nil {
		t.Error("expired session should have been dropped")
	}
}

func TestSessionManager_DeleteAndClear(t *testing.T) {
	sm := NewSessionManager("test-secret")
	a, _ := sm.CreateSession("a", "")
	b, _ := sm.CreateSession("b", "")

	sm.DeleteSession(a.ID)
	if sm.GetSession(a.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}

	sm.Clear()
	if sm.GetSession(b.ID) != nil {
		t.Error("GetSession() should return nil after Clear")
	}
}

func TestSessionManager_Cookie(t *testing.T) {
	sm := NewSessionManager("test-secret")
	session, _ := sm.CreateSession("u42", "")

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, session)
	cookie := sessionCookie(t, w)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if got := sm.GetSessionFromRequest(req); got == nil || got.ID != session.ID {
		t.Fatalf("GetSessionFromRequest() = %+v, want %s", got, session.ID)
	}

	// A cookie signed with another secret is rejected.
	other := NewSessionManager("other-secret")
	other.sessions[session.ID] = session
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if other.GetSessionFromRequest(req) != nil {
		t.Error("cookie signed with a different secret must be rejected")
	}
}

func TestSessionManager_InvalidCookie(t *testing.T) {
	sm := NewSessionManager("test-secret")

	for _, value := range []string{"invalid-session.invalid-signature", "no-signature", ""} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: value})
		if sm.GetSessionFromRequest(req) != nil {
			t.Errorf("cookie %q should not resolve to a session", value)
		}
	}
}

func TestSessionManager_BearerAuth(t *testing.T) {
	sm := NewSessionManager("test-secret")
	session, _ := sm.CreateSession("u42", "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)

	if got := sm.GetSessionFromRequest(req); got == nil || got.ID != session.ID {
		t.Fatalf("GetSessionFromRequest() = %+v, want %s", got, session.ID)
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := NewSessionManager("test-secret")

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	if c := sessionCookie(t, w); c.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", c.MaxAge)
	}
}

func TestRequireAuth(t *testing.T) {
	sm := NewSessionManager("test-secret")
	session, _ := sm.CreateSession("u42", "")

	var called bool
	protected := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if GetSessionFromContext(r.Context()) == nil {
			t.Error("session not found in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"valid session", "Bearer " + session.ID, http.StatusOK, true},
		{"no session", "", http.StatusUnauthorized, false},
		{"unknown session", "Bearer nope", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			protected.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

func TestGetSessionFromContext(t *testing.T) {
	ctx := SetSessionInContext(context.Background(), &Session{ID: "test123"})

	if got := GetSessionFromContext(ctx); got == nil || got.ID != "test123" {
		t.Fatalf("GetSessionFromContext() = %+v", got)
	}
	if GetSessionFromContext(context.Background()) != nil {
		t.Error("GetSessionFromContext() should return nil for empty context")
	}
}

func TestSession_MarshalJSON(t *testing.T) {
	session := &Session{ID: "test123", UserID: "u42", Email: "ops@example.com", ExpiresAt: time.Now()}

	data, err := session.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if strings.Contains(string(data), "ops@example.com") {
		t.Error("JSON should not contain the email")
	}
	if !strings.Contains(string(data), `"session_id":"test123"`) {
		t.Errorf("JSON should contain session_id, got %s", data)
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://kiosk.example.com/"})(next)

	tests := []struct {
		origin string
		method string
		want   string
		status int
	}{
		{"http://localhost:3000", http.MethodGet, "http://localhost:3000", http.StatusOK},
		{"https://kiosk.example.com", http.MethodGet, "https://kiosk.example.com", http.StatusOK},
		{"https://evil.example.com", http.MethodGet, "", http.StatusOK},
		{"http://localhost.evil.com", http.MethodGet, "", http.StatusOK},
		{"http://localhost:3000", http.MethodOptions, "http://localhost:3000", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.origin+" "+tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/api/v1/faces", nil)
			req.Header.Set("Origin", tt.origin)

			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
