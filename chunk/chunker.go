// Package chunk implements content-defined chunking and content addressing:
// the two primitives ("C1" and "C2" in the design) that everything else in
// syncr builds on. Split the same bytes twice, from two different starting
// offsets in two different files, and the chunks that don't touch the edit
// come out byte-for-byte identical — which is what lets the rest of the
// system dedupe across files, across versions, and across nodes.
package chunk

import (
	"io"

	"github.com/pkg/errors"
)

const (
	// Window is the width, in bytes, of the rolling-hash window.
	Window = 64

	// Target is the target average chunk size. A boundary is considered at
	// every byte once MinBytes have accumulated; it is declared when the
	// rolling hash's low bits (log2(Target) of them) are all zero.
	Target = 8192

	// MinBytes suppresses the boundary test until this many bytes have
	// accumulated since the last boundary (or the start of the stream).
	MinBytes = 512

	// MaxBytes forces a boundary, regardless of the rolling hash, once this
	// many bytes have accumulated since the last one.
	MaxBytes = 65536

	// charOffset is a bup-style additive constant that keeps the rolling
	// checksum from degenerating on long runs of zero bytes.
	charOffset = 31

	// boundaryMask has the low log2(Target) bits set; a chunk boundary is
	// declared where the rolling checksum has none of them set.
	boundaryMask = Target - 1
)

// rollsum is the bup-variant Rabin-style rolling checksum described in
// §4.1: two 16-bit running sums, seeded with the window's initial (all
// zero) contents, combined into a 32-bit value.
type rollsum struct {
	s1, s2 uint32
	window [Window]byte
	wofs   int
}

func newRollsum() *rollsum {
	rs := &rollsum{
		s1: Window * charOffset,
		s2: Window * (Window - 1) * charOffset,
	}
	return rs
}

func (rs *rollsum) roll(add byte) {
	drop := rs.window[rs.wofs]
	rs.s1 += uint32(add) - uint32(drop)
	rs.s2 += rs.s1 - Window*(uint32(drop)+charOffset)
	rs.window[rs.wofs] = add
	rs.wofs = (rs.wofs + 1) % Window
}

func (rs *rollsum) digest() uint32 {
	return (rs.s1 << 16) | (rs.s2 & 0xffff)
}

// EmitFunc receives one chunk's bytes. The slice is only valid until the
// next call to Write or Close; callers that need to keep it must copy.
type EmitFunc func(chunk []byte) error

// Chunker splits a byte stream into content-defined chunks, calling Emit
// for each one as soon as its boundary is found. It implements io.WriteCloser
// so it composes with io.Copy and similar.
type Chunker struct {
	Emit EmitFunc

	rs      *rollsum
	buf     []byte
	sinceCP int // bytes accumulated since the last boundary
}

// NewChunker returns a Chunker that calls emit for every chunk boundary it
// finds (see Target, MinBytes, MaxBytes).
func NewChunker(emit EmitFunc) *Chunker {
	return &Chunker{
		Emit: emit,
		rs:   newRollsum(),
	}
}

// Write implements io.Writer, feeding p through the rolling hash a byte at a
// time and emitting a chunk each time a boundary is found.
func (c *Chunker) Write(p []byte) (int, error) {
	for _, b := range p {
		c.buf = append(c.buf, b)
		c.rs.roll(b)
		c.sinceCP++

		if c.sinceCP < MinBytes {
			continue
		}

		boundary := c.sinceCP >= MaxBytes
		if !boundary {
			boundary = c.rs.digest()&boundaryMask == 0
		}
		if boundary {
			if err := c.cut(); err != nil {
				return 0, err
			}
		}
	}
	return len(p), nil
}

func (c *Chunker) cut() error {
	chunk := c.buf
	c.buf = nil
	c.rs = newRollsum()
	c.sinceCP = 0
	return c.Emit(chunk)
}

// Close flushes any trailing partial chunk. It is safe (and required by
// §4.1: a stream that ends exactly on MinBytes/MaxBytes boundary already
// emitted its last chunk via Write, and Close is then a no-op) to call once
// per Chunker.
func (c *Chunker) Close() error {
	if len(c.buf) == 0 {
		return nil
	}
	return c.cut()
}

// Split reads all of r and calls emit once per chunk, in order. It is a
// convenience wrapper around Chunker for callers that don't need streaming
// Write semantics.
func Split(r io.Reader, emit EmitFunc) error {
	c := NewChunker(emit)
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := writeAll(c, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return c.Close()
		}
		if err != nil {
			return errors.Wrap(err, "reading input")
		}
	}
}

func writeAll(c *Chunker, p []byte) error {
	_, err := c.Write(p)
	return err
}
