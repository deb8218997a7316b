package syncr

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sort"
)

// DigestSize is the width, in bytes, of a chunk digest.
// It is a wire-visible constant: every node in a run must agree on it.
const DigestSize = 32

// Ref is the address of a chunk: its BLAKE3 digest (see the chunk subpackage).
// Two chunks with the same bytes have the same Ref, and vice versa.
type Ref [DigestSize]byte

// Zero is the zero value of a Ref. It never addresses a real chunk.
var Zero Ref

// IsZero reports whether r is the Zero ref.
func (r Ref) IsZero() bool {
	return r == Zero
}

// String renders r as lowercase hex.
func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// Less orders refs lexicographically by their bytes.
// Every phase of a sync run that needs a deterministic order uses this.
func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// FromHex decodes s, which must be exactly 2*DigestSize hex characters, into r.
func (r *Ref) FromHex(s string) error {
	if len(s) != 2*DigestSize {
		return errors.New("syncr: wrong ref length")
	}
	_, err := hex.Decode(r[:], []byte(s))
	return err
}

// RefFromHex decodes a hex string into a Ref.
func RefFromHex(s string) (Ref, error) {
	var r Ref
	err := r.FromHex(s)
	return r, err
}

// RefFromBytes copies the first DigestSize bytes of b into a Ref.
// It panics if b is shorter than DigestSize.
func RefFromBytes(b []byte) Ref {
	var r Ref
	if len(b) < DigestSize {
		panic("syncr: short ref bytes")
	}
	copy(r[:], b)
	return r
}

// SortRefs sorts refs in place, in the canonical order used for deterministic
// wire encoding and diffing.
func SortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
}
