package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/kozaktomas/facechain/internal/faceerr"
)

// doGetJSON performs an authenticated GET on the face API and unmarshals the JSON response.
func doGetJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	return doRequestJSON[T](ctx, c, c.faceURL, true, http.MethodGet, endpoint, nil, http.StatusOK)
}

// doPostJSON performs an authenticated POST on the face API accepting 200 or 201.
func doPostJSON[T any](ctx context.Context, c *Client, endpoint string, requestBody any) (*T, error) {
	return doRequestJSON[T](ctx, c, c.faceURL, true, http.MethodPost, endpoint, requestBody, http.StatusOK, http.StatusCreated)
}

// doRequestJSON performs a request with a JSON body and JSON response. When authenticated is
// set, a missing token fails with ErrAuth before anything is sent. A status outside
// expectedStatuses yields a *faceerr.StatusError.
func doRequestJSON[T any](ctx context.Context, c *Client, base *url.URL, authenticated bool, method, endpoint string, requestBody any, expectedStatuses ...int) (*T, error) {
	body, err := doRequest(ctx, c, base, authenticated, method, endpoint, requestBody, expectedStatuses...)
	if err != nil {
		return nil, err
	}

	var result T
	if len(bytes.TrimSpace(body)) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w: %w", faceerr.ErrNetwork, err)
	}

	return &result, nil
}

// doRequestRaw performs an authenticated face API request and discards the response body.
func doRequestRaw(ctx context.Context, c *Client, method, endpoint string, requestBody any, expectedStatuses ...int) error {
	_, err := doRequest(ctx, c, c.faceURL, true, method, endpoint, requestBody, expectedStatuses...)
	return err
}

func doRequest(ctx context.Context, c *Client, base *url.URL, authenticated bool, method, endpoint string, requestBody any, expectedStatuses ...int) ([]byte, error) {
	var token string
	if authenticated {
		var err error
		if token, err = c.session.Bearer(); err != nil {
			return nil, err
		}
	}

	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, resolveURL(base, endpoint), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated base URL via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w: %w", faceerr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if len(expectedStatuses) == 0 {
		expectedStatuses = []int{http.StatusOK}
	}
	if !isExpectedStatus(resp.StatusCode, expectedStatuses) {
		return nil, &faceerr.StatusError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w: %w", faceerr.ErrNetwork, err)
	}

	c.captureResponse(endpoint, body)

	return body, nil
}

// isExpectedStatus checks if a status code is in the list of expected statuses.
func isExpectedStatus(code int, expected []int) bool {
	return slices.Contains(expected, code)
}

// readErrorBody reads the response body for error messages.
// Returns a placeholder if reading fails (we're already in an error path).
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "(could not read error body)"
	}
	return string(bytes.TrimSpace(body))
}
