package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kozaktomas/facechain/internal/faceerr"
)

// ID is a backend identifier (faces, users). The API sends it either
// as a number or as a string; both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unmarshal id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id)) //nolint:wrapcheck // string marshaling cannot fail
}

// Face is a stored, labeled face descriptor as returned by GET /faces
type Face struct {
	ID         ID        `json:"id"`
	Label      string    `json:"label"`
	Descriptor []float64 `json:"descriptor"`
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Label      string    `json:"label"`
	Descriptor []float32 `json:"descriptor"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request payload, never logged
}

// User is the authenticated account
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// loginResponse uses an unexported token field to keep the secret out of generic dumps.
type loginResponse struct {
	token string
	user  User
}

func (r *loginResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal login response: %w", err)
	}
	if t, ok := raw["token"]; ok {
		if err := json.Unmarshal(t, &r.token); err != nil {
			return fmt.Errorf("login response token: %w: %w", faceerr.ErrNetwork, err)
		}
	}
	if u, ok := raw["user"]; ok {
		if err := json.Unmarshal(u, &r.user); err != nil {
			return fmt.Errorf("login response user: %w: %w", faceerr.ErrNetwork, err)
		}
	}
	return nil
}
