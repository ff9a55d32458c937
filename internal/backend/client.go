// Package backend is the REST client for the face API and the auth API.
package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/facechain/internal/constants"
	"github.com/kozaktomas/facechain/internal/logging"
	"github.com/kozaktomas/facechain/internal/session"
)

// Client talks to the face API (faces, register) and the auth API (login)
type Client struct {
	faceURL    *url.URL
	authURL    *url.URL
	session    *session.Session
	httpClient *http.Client
	captureDir string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthURL sets a separate base URL for the auth endpoints
func WithAuthURL(raw string) Option {
	return func(c *Client) {
		if raw == "" {
			return
		}
		if u, err := url.Parse(strings.TrimSuffix(raw, "/")); err == nil {
			c.authURL = u
		}
	}
}

// NewClient creates a client for the face API at faceURL using the given session.
func NewClient(faceURL string, sess *session.Session, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(faceURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid face API URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid face API URL %q: scheme and host are required", faceURL)
	}
	if sess == nil {
		sess = session.New("")
	}
	c := &Client{
		faceURL:    parsed,
		authURL:    parsed,
		session:    sess,
		httpClient: &http.Client{Timeout: constants.HTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the credential the client authenticates with
func (c *Client) Session() *session.Session {
	return c.session
}

// resolveURL builds a full URL from a base URL and the given path segments.
// If the last segment contains a query string (e.g. "faces?label=x"), it is
// split so JoinPath only receives the path portion and the query is appended.
func resolveURL(base *url.URL, pathSegments ...string) string {
	if len(pathSegments) == 0 {
		return base.String()
	}
	last := pathSegments[len(pathSegments)-1]
	if pathPart, query, ok := strings.Cut(last, "?"); ok {
		segments := append([]string(nil), pathSegments...)
		segments[len(segments)-1] = pathPart
		result := base.JoinPath(segments...)
		result.RawQuery = query
		return result.String()
	}
	return base.JoinPath(pathSegments...).String()
}

// SetCaptureDir enables API response capturing to the specified directory.
// Pass an empty string to disable capturing.
func (c *Client) SetCaptureDir(dir string) error {
	if dir == "" {
		c.captureDir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create capture directory: %w", err)
	}
	c.captureDir = dir
	return nil
}

// captureResponse saves the API response body to a file if capturing is enabled.
func (c *Client) captureResponse(endpoint string, body []byte) {
	if c.captureDir == "" {
		return
	}

	name := strings.ReplaceAll(endpoint, "/", "_")
	name = strings.TrimPrefix(name, "_")
	name = fmt.Sprintf("%s_%s.json", name, time.Now().Format("20060102_150405.000"))
	path := filepath.Join(c.captureDir, name)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		body = pretty.Bytes()
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		logging.WithComponent("backend").WithError(err).Warnf("failed to capture response to %s", path)
	}
}
