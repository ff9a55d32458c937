package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "facechain_session"
	sessionDuration   = 12 * time.Hour
)

// Session is a signed-in web client. The backend credential itself lives in the
// shared session.Session of the backend client, never in the cookie.
type Session struct {
	ID        string
	UserID    string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionManager issues and validates web sessions
type SessionManager struct {
	secret   []byte
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewSessionManager creates a session manager. An empty secret gets a random one,
// so cookies do not survive a restart.
func NewSessionManager(secret string) *SessionManager {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &SessionManager{
		secret:   key,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// CreateSession stores a new session for a signed-in user
func (sm *SessionManager) CreateSession(userID, email string) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err //nolint:wrapcheck // crypto/rand errors are self-explanatory
	}

	now := sm.now()
	session := &Session{
		ID:        base64.URLEncoding.EncodeToString(idBytes),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionDuration),
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	return session, nil
}

// GetSession returns a live session or nil. Expired sessions are dropped on access.
func (sm *SessionManager) GetSession(sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return nil
	}

	if sm.now().After(session.ExpiresAt) {
		sm.DeleteSession(sessionID)
		return nil
	}
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
}

// Clear drops every session, e.g. when the backend credential is revoked.
func (sm *SessionManager) Clear() {
	sm.mu.Lock()
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()
}

// SetSessionCookie writes the signed session cookie
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + sm.sign(session.ID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// ClearSessionCookie expires the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest reads the session from the signed cookie or from an
// "Authorization: Bearer <session id>" header.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if id, sig, ok := strings.Cut(cookie.Value, "."); ok && sm.verify(id, sig) {
			if session := sm.GetSession(id); session != nil {
				return session
			}
		}
	}

	if id, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return sm.GetSession(id)
	}
	return nil
}

func (sm *SessionManager) sign(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func (sm *SessionManager) verify(data, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(sm.sign(data)))
}

// MarshalJSON exposes only the public session fields
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct { //nolint:wrapcheck // plain struct encoding
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id,omitempty"`
		ExpiresAt string `json:"expires_at"`
	}{s.ID, s.UserID, s.ExpiresAt.Format(time.RFC3339)})
}
