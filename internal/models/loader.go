// Package models downloads the face detection, landmark, recognition and expression
// model bundles the detection runtime needs before any frame can be processed.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/facechain/internal/constants"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/logging"
)

// Bundle names one model bundle and its weights manifest file
type Bundle struct {
	Name     string
	Manifest string
}

// ModelSet is the result of a successful load: every bundle with its local files
type ModelSet struct {
	Dir   string
	Files map[string][]string // bundle name -> manifest followed by shard files
}

// Progress is reported once per finished bundle
type Progress struct {
	Bundle string
	Done   int
	Total  int
	Err    error
}

// weightsGroup is one entry of a weights manifest
type weightsGroup struct {
	Paths []string `json:"paths"`
}

// Loader fetches all bundles once. The outcome, success or failure, is final:
// later Load calls return it without touching the network again.
type Loader struct {
	baseURL    *url.URL
	dir        string
	bundles    []Bundle
	httpClient *http.Client
	force      bool
	progress   func(Progress)

	once  sync.Once
	ready atomic.Bool
	mu    sync.RWMutex
	set   *ModelSet
	err   error
}

// Option configures a Loader
type Option func(*Loader)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(l *Loader) { l.httpClient = hc }
}

// WithForce re-downloads files that already exist locally
func WithForce(force bool) Option {
	return func(l *Loader) { l.force = force }
}

// WithProgress registers a callback invoked after each bundle finishes
func WithProgress(fn func(Progress)) Option {
	return func(l *Loader) { l.progress = fn }
}

// NewLoader creates a loader for the given bundles served under baseURL.
func NewLoader(baseURL, dir string, bundles []Bundle, opts ...Option) (*Loader, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid model URL: %w", err)
	}
	if len(bundles) == 0 {
		return nil, errors.New("no model bundles configured")
	}
	l := &Loader{
		baseURL:    parsed,
		dir:        dir,
		bundles:    bundles,
		httpClient: &http.Client{Timeout: constants.HTTPTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Ready reports whether every bundle loaded successfully.
func (l *Loader) Ready() bool {
	return l.ready.Load()
}

// Set returns the loaded models, or nil until Ready.
func (l *Loader) Set() *ModelSet {
	if !l.Ready() {
		return nil
	}
	return l.set
}

// Err returns the load failure, if any.
func (l *Loader) Err() error {
	if l.Ready() {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Load fetches all bundles in parallel on the first call. Concurrent callers wait for
// that attempt; subsequent calls return its result immediately.
func (l *Loader) Load(ctx context.Context) (*ModelSet, error) {
	l.once.Do(func() {
		set, err := l.loadAll(ctx)
		l.mu.Lock()
		l.set, l.err = set, err
		l.mu.Unlock()
		if err == nil {
			l.ready.Store(true)
		}
	})
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.set, l.err
}

func (l *Loader) loadAll(ctx context.Context) (*ModelSet, error) {
	log := logging.WithComponent("models")

	if err := os.MkdirAll(l.dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: could not create model directory: %w", faceerr.ErrModelLoad, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		done int
	)
	files := make(map[string][]string, len(l.bundles))

	for _, b := range l.bundles {
		wg.Add(1)
		go func(b Bundle) {
			defer wg.Done()

			bundleFiles, err := l.loadBundle(ctx, b)

			mu.Lock()
			done++
			if err != nil {
				errs = append(errs, fmt.Errorf("bundle %s: %w", b.Name, err))
			} else {
				files[b.Name] = bundleFiles
			}
			p := Progress{Bundle: b.Name, Done: done, Total: len(l.bundles), Err: err}
			mu.Unlock()

			if l.progress != nil {
				l.progress(p)
			}
		}(b)
	}
	wg.Wait()

	if len(errs) > 0 {
		err := errors.Join(errs...)
		log.WithError(err).Error("Error loading models")
		return nil, fmt.Errorf("%w: %w", faceerr.ErrModelLoad, err)
	}

	log.WithField("bundles", len(files)).Info("Models loaded")
	return &ModelSet{Dir: l.dir, Files: files}, nil
}

// loadBundle fetches the manifest of a bundle, then every shard it references.
func (l *Loader) loadBundle(ctx context.Context, b Bundle) ([]string, error) {
	manifest, err := l.fetchFile(ctx, b.Manifest)
	if err != nil {
		return nil, err
	}

	var groups []weightsGroup
	if err := json.Unmarshal(manifest, &groups); err != nil {
		return nil, fmt.Errorf("invalid weights manifest %s: %w", b.Manifest, err)
	}

	files := []string{b.Manifest}
	for _, g := range groups {
		for _, p := range g.Paths {
			// Shard paths are relative to the manifest
			shard := path.Join(path.Dir(b.Manifest), p)
			if _, err := l.fetchFile(ctx, shard); err != nil {
				return nil, err
			}
			files = append(files, shard)
		}
	}
	if len(files) == 1 {
		return nil, fmt.Errorf("weights manifest %s lists no shards", b.Manifest)
	}
	return files, nil
}

// fetchFile downloads name into the model directory, reusing an existing non-empty file
// unless forced. It returns the file content.
func (l *Loader) fetchFile(ctx context.Context, name string) ([]byte, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, fmt.Errorf("refusing non-local model path %q", name)
	}
	local := filepath.Join(l.dir, filepath.FromSlash(name))

	if !l.force {
		if data, err := os.ReadFile(local); err == nil && len(data) > 0 {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL.JoinPath(name).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := l.httpClient.Do(req) //nolint:gosec // URL built from configured model base URL
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not fetch %s: status %d", name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", name, err)
	}

	if err := writeFileAtomic(local, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("could not write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("could not rename %s: %w", tmp, err)
	}
	return nil
}
