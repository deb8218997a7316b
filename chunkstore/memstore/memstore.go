// Package memstore implements an in-memory chunkstore.Store, used by unit
// tests and by the in-process loopback transport.
package memstore

import (
	"context"
	"sync"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/chunkstore"
)

var _ chunkstore.Store = &Store{}

// Store is a memory-based implementation of a chunk store.
type Store struct {
	mu     sync.Mutex
	chunks map[syncr.Ref][]byte
}

// New produces a new, empty Store.
func New() *Store {
	return &Store{chunks: make(map[syncr.Ref][]byte)}
}

// Has reports whether ref is present.
func (s *Store) Has(_ context.Context, ref syncr.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[ref]
	return ok, nil
}

// Read returns the bytes stored under ref.
func (s *Store) Read(_ context.Context, ref syncr.Ref) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.chunks[ref]
	if !ok {
		return nil, syncr.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

type stagedChunk struct {
	ref  syncr.Ref
	data []byte
}

func (c *stagedChunk) Ref() syncr.Ref { return c.ref }

// Stage just copies data into a handle; there's no temporary-file dance to
// do in memory.
func (s *Store) Stage(_ context.Context, ref syncr.Ref, data []byte) (chunkstore.StagedChunk, error) {
	return &stagedChunk{ref: ref, data: append([]byte(nil), data...)}, nil
}

// Install makes a staged chunk visible.
func (s *Store) Install(_ context.Context, staged chunkstore.StagedChunk) error {
	sc := staged.(*stagedChunk)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[sc.ref]; !ok {
		s.chunks[sc.ref] = sc.data
	}
	return nil
}

// ListPrefix calls f, in lexicographic order, for every ref whose hex
// string begins with prefix.
func (s *Store) ListPrefix(_ context.Context, prefix string, f func(syncr.Ref) error) error {
	s.mu.Lock()
	refs := make([]syncr.Ref, 0, len(s.chunks))
	for ref := range s.chunks {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	syncr.SortRefs(refs)
	for _, ref := range refs {
		if !hasHexPrefix(ref, prefix) {
			continue
		}
		if err := f(ref); err != nil {
			return err
		}
	}
	return nil
}

func hasHexPrefix(ref syncr.Ref, prefix string) bool {
	if prefix == "" {
		return true
	}
	h := ref.String()
	return len(prefix) <= len(h) && h[:len(prefix)] == prefix
}

// Len reports how many chunks are stored. It exists for tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}
