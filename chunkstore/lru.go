package chunkstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bobg/syncr"
)

var _ Store = &LRU{}

// LRU decorates a Store with an in-memory least-recently-used cache of
// chunk bytes. Reads check the cache first; writes (Stage/Install) pass
// through to the nested store and populate the cache on the way.
type LRU struct {
	c *lru.Cache // syncr.Ref -> []byte
	s Store
}

// NewLRU wraps s with a cache holding up to size chunks.
func NewLRU(s Store, size int) (*LRU, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRU{s: s, c: c}, nil
}

// Has checks the cache before falling through to the nested store.
func (l *LRU) Has(ctx context.Context, ref syncr.Ref) (bool, error) {
	if _, ok := l.c.Get(ref); ok {
		return true, nil
	}
	return l.s.Has(ctx, ref)
}

// Read serves from the cache when possible, otherwise reads through and
// caches the result.
func (l *LRU) Read(ctx context.Context, ref syncr.Ref) ([]byte, error) {
	if cached, ok := l.c.Get(ref); ok {
		return cached.([]byte), nil
	}
	data, err := l.s.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	l.c.Add(ref, data)
	return data, nil
}

// Stage delegates to the nested store and primes the cache with the
// chunk's bytes, since a chunk that was just staged is a likely near-term
// read (e.g. a file referenced by several entries in the same plan).
func (l *LRU) Stage(ctx context.Context, ref syncr.Ref, data []byte) (StagedChunk, error) {
	staged, err := l.s.Stage(ctx, ref, data)
	if err != nil {
		return nil, err
	}
	l.c.Add(ref, data)
	return staged, nil
}

// Install delegates to the nested store.
func (l *LRU) Install(ctx context.Context, staged StagedChunk) error {
	return l.s.Install(ctx, staged)
}

// ListPrefix delegates to the nested store; the cache doesn't help here.
func (l *LRU) ListPrefix(ctx context.Context, prefix string, f func(syncr.Ref) error) error {
	return l.s.ListPrefix(ctx, prefix, f)
}
