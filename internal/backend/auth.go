package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/facechain/internal/faceerr"
)

// Login exchanges credentials for a token and stores it in the client's session.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	req := LoginRequest{Email: email, Password: password}
	resp, err := doRequestJSON[loginResponse](ctx, c, c.authURL, false, http.MethodPost, "auth/login", req, http.StatusOK)
	if err != nil {
		var se *faceerr.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("invalid email or password: %w", faceerr.ErrAuth)
		}
		return nil, fmt.Errorf("could not log in: %w", err)
	}
	if resp.token == "" {
		return nil, fmt.Errorf("login response has no token: %w", faceerr.ErrAuth)
	}

	c.session.SetToken(resp.token)
	return &resp.user, nil
}

// CurrentUser returns the account the session belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	user, err := doRequestJSON[User](ctx, c, c.authURL, true, http.MethodGet, "auth/current", nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("could not get current user: %w", err)
	}
	return user, nil
}

// Logout drops the local credential. The backend keeps no server-side session,
// so there is nothing to call. Logging out twice is a no-op.
func (c *Client) Logout() {
	c.session.Clear()
}
