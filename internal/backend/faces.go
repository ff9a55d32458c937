package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListFaces returns all faces registered for the authenticated user, in backend order.
func (c *Client) ListFaces(ctx context.Context) ([]Face, error) {
	faces, err := doGetJSON[[]Face](ctx, c, "faces")
	if err != nil {
		return nil, fmt.Errorf("could not list faces: %w", err)
	}
	return *faces, nil
}

// RegisterFace stores a new labeled descriptor.
func (c *Client) RegisterFace(ctx context.Context, label string, descriptor []float32) error {
	body := RegisterRequest{Label: label, Descriptor: descriptor}
	if _, err := doPostJSON[map[string]any](ctx, c, "register", body); err != nil {
		return fmt.Errorf("could not register face %q: %w", label, err)
	}
	return nil
}

// DeleteFace removes a stored face by ID.
func (c *Client) DeleteFace(ctx context.Context, id ID) error {
	endpoint := "faces/" + url.PathEscape(string(id))
	if err := doRequestRaw(ctx, c, http.MethodDelete, endpoint, nil, http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("could not delete face %s: %w", id, err)
	}
	return nil
}
