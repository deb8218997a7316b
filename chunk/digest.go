package chunk

import (
	"lukechampine.com/blake3"

	"github.com/bobg/syncr"
)

// Digest computes the content address of a chunk: its 32-byte BLAKE3 hash,
// wrapped as a syncr.Ref. Every node participating in a run must compute
// this the same way, so it is the one place in the codebase that is allowed
// to know which hash function that is.
func Digest(data []byte) syncr.Ref {
	sum := blake3.Sum256(data)
	return syncr.RefFromBytes(sum[:])
}

// Verify reports whether data hashes to want.
func Verify(data []byte, want syncr.Ref) bool {
	return Digest(data) == want
}
