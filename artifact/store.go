package artifact

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no artifact is stored under a name
	ErrNotFound = errors.New("artifact not found")

	// ErrExists is returned when publishing over an existing artifact
	ErrExists = errors.New("artifact already exists")

	// ErrInvalidName is returned for names that are not safe identifiers
	ErrInvalidName = errors.New("invalid artifact name")
)

// Store persists artifacts by name. Artifacts are write-once: Put publishes
// the complete artifact atomically and never replaces an existing one, so a
// Get never observes a partially written artifact.
type Store interface {
	Put(ctx context.Context, a *Artifact) error
	Get(ctx context.Context, name string) (*Artifact, error)
	List(ctx context.Context) ([]string, error)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName reports whether name can be used as an artifact identifier
// by every store backend
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}

// MemoryStore keeps encoded artifacts in memory. Storing the encoding rather
// than the live object means callers cannot mutate a published artifact.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put publishes a
func (s *MemoryStore) Put(ctx context.Context, a *Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	data, err := Marshal(a)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[a.Name]; ok {
		return errors.Wrapf(ErrExists, "%s", a.Name)
	}
	s.blobs[a.Name] = data
	return nil
}

// Get decodes the artifact stored under name
func (s *MemoryStore) Get(ctx context.Context, name string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	return Unmarshal(data)
}

// List returns the stored names in sorted order
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
