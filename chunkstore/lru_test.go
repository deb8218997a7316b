package chunkstore

import (
	"context"
	"sync"
	"testing"

	"github.com/bobg/syncr"
)

// testMemStore is a minimal in-memory Store used only by this file's tests.
// It duplicates chunkstore/memstore's behavior rather than importing that
// package, since memstore imports chunkstore and an internal chunkstore
// test file can't import a package that imports chunkstore back.
type testMemStore struct {
	mu     sync.Mutex
	chunks map[syncr.Ref][]byte
}

func newTestMemStore() *testMemStore {
	return &testMemStore{chunks: make(map[syncr.Ref][]byte)}
}

func (s *testMemStore) Has(_ context.Context, ref syncr.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[ref]
	return ok, nil
}

func (s *testMemStore) Read(_ context.Context, ref syncr.Ref) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.chunks[ref]
	if !ok {
		return nil, syncr.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

type testStagedChunk struct {
	ref  syncr.Ref
	data []byte
}

func (c *testStagedChunk) Ref() syncr.Ref { return c.ref }

func (s *testMemStore) Stage(_ context.Context, ref syncr.Ref, data []byte) (StagedChunk, error) {
	return &testStagedChunk{ref: ref, data: append([]byte(nil), data...)}, nil
}

func (s *testMemStore) Install(_ context.Context, staged StagedChunk) error {
	sc := staged.(*testStagedChunk)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[sc.ref]; !ok {
		s.chunks[sc.ref] = sc.data
	}
	return nil
}

func (s *testMemStore) ListPrefix(_ context.Context, prefix string, f func(syncr.Ref) error) error {
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

func TestLRUServesFromCacheAfterNestedLoss(t *testing.T) {
	nested := newTestMemStore()
	l, err := NewLRU(nested, 8)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ref := syncr.Ref{0x01}
	data := []byte("cached")
	staged, err := l.Stage(ctx, ref, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Install(ctx, staged); err != nil {
		t.Fatal(err)
	}

	// Overwrite the nested store directly; the cached copy in l should
	// still be the one served back.
	nested2 := newTestMemStore()
	l.s = nested2

	got, err := l.Read(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}
