// Package chunkstore implements content-addressed storage for the chunks
// produced by the chunk subpackage: a Store maps a syncr.Ref to the bytes
// it addresses, and back.
package chunkstore

import (
	"context"
	"io"

	"github.com/bobg/syncr"
)

// Store is the chunk storage contract every transport and every serve
// process builds on. All methods must be safe for concurrent use.
type Store interface {
	// Has reports whether ref is present, without reading its bytes.
	Has(ctx context.Context, ref syncr.Ref) (bool, error)

	// Read returns the bytes addressed by ref. It returns syncr.ErrNotFound
	// if ref isn't present.
	Read(ctx context.Context, ref syncr.Ref) ([]byte, error)

	// Stage writes data under a temporary name and returns a staging handle
	// that Install can later commit under ref. Staging lets a caller receive
	// chunk bytes from the wire and verify their digest before they become
	// visible to ListPrefix or Has.
	Stage(ctx context.Context, ref syncr.Ref, data []byte) (StagedChunk, error)

	// Install atomically makes a previously staged chunk visible under its
	// ref. It is a no-op (and not an error) if ref is already present.
	Install(ctx context.Context, staged StagedChunk) error

	// ListPrefix calls f once, in lexicographic order, for every ref whose
	// hex string begins with prefix. An empty prefix lists everything.
	ListPrefix(ctx context.Context, prefix string, f func(syncr.Ref) error) error
}

// StagedChunk is an opaque handle to a chunk written by Stage but not yet
// Installed. Its zero value is never valid; callers only ever hold values
// returned by Stage.
type StagedChunk interface {
	Ref() syncr.Ref
}

// ReadCloserStore is implemented by stores that can stream a chunk's bytes
// rather than buffering them, such as the on-disk FS store when the caller
// wants to copy straight onto the wire.
type ReadCloserStore interface {
	Store
	OpenRead(ctx context.Context, ref syncr.Ref) (io.ReadCloser, error)
}
