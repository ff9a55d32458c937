// Package facestore keeps the matcher in sync with the faces registered on the backend.
package facestore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/facechain/internal/backend"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/logging"
)

// FaceLister fetches the stored faces of the authenticated user
type FaceLister interface {
	ListFaces(ctx context.Context) ([]backend.Face, error)
}

// Sync fetches all stored faces and converts them into fixed-length descriptors.
// A malformed descriptor fails the whole sync.
func Sync(ctx context.Context, lister FaceLister) ([]backend.Face, []facematch.LabeledDescriptor, error) {
	faces, err := lister.ListFaces(ctx)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // backend errors already carry context
	}

	labeled := make([]facematch.LabeledDescriptor, len(faces))
	for i, f := range faces {
		d, err := facematch.NewDescriptor(f.Descriptor)
		if err != nil {
			return nil, nil, fmt.Errorf("face %s (%s): %w: %w", f.ID, f.Label, faceerr.ErrNetwork, err)
		}
		labeled[i] = facematch.LabeledDescriptor{Label: f.Label, Descriptor: d}
	}
	return faces, labeled, nil
}

type snapshot struct {
	matcher  *facematch.Matcher
	faces    []backend.Face
	syncedAt time.Time
}

// Store holds the matcher built from the last successful sync.
// Readers never block; Refresh calls are serialized.
type Store struct {
	lister    FaceLister
	threshold float64
	opts      []facematch.MatcherOption

	refreshMu sync.Mutex
	current   atomic.Pointer[snapshot]
}

// New creates an empty store. Matcher returns nil until the first successful Refresh.
func New(lister FaceLister, threshold float64, opts ...facematch.MatcherOption) *Store {
	return &Store{lister: lister, threshold: threshold, opts: opts}
}

// Refresh fetches the face set and replaces the matcher with one rebuilt from scratch.
// On failure the previous matcher stays in place and the error is returned.
func (s *Store) Refresh(ctx context.Context) (*facematch.Matcher, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	log := logging.WithComponent("facestore")

	faces, labeled, err := Sync(ctx, s.lister)
	if err != nil {
		log.WithError(err).Error("Failed to fetch faces")
		return nil, err
	}

	m, err := facematch.NewMatcher(labeled, s.threshold, s.opts...)
	if err != nil {
		log.WithError(err).Error("Failed to build matcher")
		return nil, fmt.Errorf("could not build matcher: %w", err)
	}

	s.current.Store(&snapshot{matcher: m, faces: faces, syncedAt: time.Now()})
	log.WithField("faces", m.Len()).WithField("indexed", m.Indexed()).Info("Loaded stored faces")

	return m, nil
}

// Matcher returns the current matcher, or nil if no sync has succeeded yet.
func (s *Store) Matcher() *facematch.Matcher {
	if snap := s.current.Load(); snap != nil {
		return snap.matcher
	}
	return nil
}

// Faces returns the face set of the last successful sync.
func (s *Store) Faces() []backend.Face {
	if snap := s.current.Load(); snap != nil {
		return snap.faces
	}
	return nil
}

// Labels returns the labels of the last successful sync in backend order.
func (s *Store) Labels() []string {
	faces := s.Faces()
	labels := make([]string, len(faces))
	for i, f := range faces {
		labels[i] = f.Label
	}
	return labels
}

// SyncedAt returns when the current matcher was built; zero if never.
func (s *Store) SyncedAt() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.syncedAt
	}
	return time.Time{}
}
