// Package session holds the credential used for authenticated backend calls.
// A Session is passed explicitly to every component that talks to the backend.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kozaktomas/facechain/internal/faceerr"
)

// Session is a bearer credential. The zero value is logged out.
type Session struct {
	mu    sync.RWMutex
	token string
}

// New creates a session from an existing token. An empty token yields a logged-out session.
func New(token string) *Session {
	return &Session{token: strings.TrimSpace(token)}
}

// Bearer returns the token or ErrAuth when there is none.
func (s *Session) Bearer() (string, error) {
	if s == nil {
		return "", fmt.Errorf("no session: %w", faceerr.ErrAuth)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", faceerr.ErrAuth
	}
	return s.token, nil
}

// SetToken replaces the credential, e.g. after a login.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Clear logs the session out. Clearing a logged-out session is a no-op.
func (s *Session) Clear() {
	s.SetToken("")
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	_, err := s.Bearer()
	return err == nil
}
