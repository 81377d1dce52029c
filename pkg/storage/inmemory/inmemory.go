// Package inmemory provides a map-backed storage driver. Nothing survives the
// process; it backs tests and the "memory" storage driver.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/deltas/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of transcripts
	mu sync.RWMutex

	// transcripts is keyed by transcript ID
	transcripts map[string]*storage.Transcript
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		transcripts: make(map[string]*storage.Transcript),
	}
}

// Put stores a copy of t, replacing any transcript with the same ID.
func (s *Driver) Put(_ context.Context, t *storage.Transcript) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts[t.ID] = clone(t)
	return nil
}

// Get retrieves a transcript by its ID.
func (s *Driver) Get(_ context.Context, id string) (*storage.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transcripts[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return clone(t), nil
}

// List returns transcripts newest first, ties broken by ID.
func (s *Driver) List(_ context.Context, opts storage.ListOptions) ([]*storage.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.Transcript, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		if opts.Provider != "" && t.Provider != opts.Provider {
			continue
		}
		result = append(result, clone(t))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].ID > result[j].ID
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Delete removes a transcript by its ID.
func (s *Driver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transcripts[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	delete(s.transcripts, id)
	return nil
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}

func clone(t *storage.Transcript) *storage.Transcript {
	c := *t
	c.Chunks = append(c.Chunks[:0:0], t.Chunks...)
	return &c
}
