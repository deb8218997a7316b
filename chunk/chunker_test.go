package chunk

import (
	"bytes"
	"math/rand"
	"testing"
	"testing/quick"
)

// TestRoundTrip checks that concatenating the chunks produced for a random
// byte slice reproduces that slice exactly.
func TestRoundTrip(t *testing.T) {
	f := func(data []byte) bool {
		var got []byte
		err := Split(bytes.NewReader(data), func(chunk []byte) error {
			got = append(got, chunk...)
			return nil
		})
		if err != nil {
			t.Logf("Split error: %s", err)
			return false
		}
		return bytes.Equal(got, data)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

// TestBounds checks that every chunk (but possibly the last) falls between
// MinBytes and MaxBytes, and that no chunk ever exceeds MaxBytes.
func TestBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := make([]byte, 4*MaxBytes)
	r.Read(data)

	var chunks [][]byte
	err := Split(bytes.NewReader(data), func(chunk []byte) error {
		buf := append([]byte(nil), chunk...)
		chunks = append(chunks, buf)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks from %d random bytes, want several", len(chunks), len(data))
	}
	for i, c := range chunks {
		if len(c) > MaxBytes {
			t.Errorf("chunk %d has length %d, want <= %d", i, len(c), MaxBytes)
		}
		if i < len(chunks)-1 && len(c) < MinBytes {
			t.Errorf("non-final chunk %d has length %d, want >= %d", i, len(c), MinBytes)
		}
	}
}

// TestLocalInsertion checks the core content-defined-chunking property: an
// insertion in the middle of the input perturbs only the chunks that touch
// it, leaving chunks before and after untouched.
func TestLocalInsertion(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	base := make([]byte, 16*MaxBytes)
	r.Read(base)

	chunksOf := func(data []byte) []string {
		var out []string
		err := Split(bytes.NewReader(data), func(chunk []byte) error {
			out = append(out, Digest(chunk).String())
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		return out
	}

	before := chunksOf(base)

	mid := len(base) / 2
	insertion := make([]byte, 237)
	r.Read(insertion)
	edited := append(append(append([]byte(nil), base[:mid]...), insertion...), base[mid:]...)

	after := chunksOf(edited)

	prefixLen := 0
	for prefixLen < len(before) && prefixLen < len(after) && before[prefixLen] == after[prefixLen] {
		prefixLen++
	}
	if prefixLen == 0 {
		t.Fatalf("edit changed the very first chunk; chunking is not content-defined")
	}

	suffixLen := 0
	for suffixLen < len(before)-prefixLen && suffixLen < len(after)-prefixLen &&
		before[len(before)-1-suffixLen] == after[len(after)-1-suffixLen] {
		suffixLen++
	}
	if suffixLen == 0 {
		t.Fatalf("edit changed the very last chunk; chunking is not content-defined")
	}
	t.Logf("shared prefix %d chunks, shared suffix %d chunks, out of %d/%d", prefixLen, suffixLen, len(before), len(after))
}

func TestDigestDeterministic(t *testing.T) {
	f := func(data []byte) bool {
		return Digest(data) == Digest(append([]byte(nil), data...))
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestVerify(t *testing.T) {
	data := []byte("some chunk content")
	ref := Digest(data)
	if !Verify(data, ref) {
		t.Error("Verify rejected the digest it was given")
	}
	if Verify(append(data, 'x'), ref) {
		t.Error("Verify accepted mismatched data")
	}
}
