package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/chunk"
	"github.com/bobg/syncr/chunkstore"
)

// ReadWrite exercises a Store implementation the way scan.Scan and
// serveengine do: split data into content-defined chunks, stage and
// install each one, then read every chunk back and reassemble it, and
// confirm the result matches data exactly.
func ReadWrite(ctx context.Context, t *testing.T, store chunkstore.Store, data []byte) {
	t.Helper()

	var refs []syncr.Ref
	t1 := time.Now()
	err := chunk.Split(bytes.NewReader(data), func(b []byte) error {
		ref := chunk.Digest(b)
		staged, err := store.Stage(ctx, ref, b)
		if err != nil {
			return err
		}
		if err := store.Install(ctx, staged); err != nil {
			return err
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %d chunks in %s", len(data), len(refs), time.Since(t1))

	buf := new(bytes.Buffer)
	t2 := time.Now()
	for _, ref := range refs {
		chunkData, err := store.Read(ctx, ref)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(chunkData)
	}
	t.Logf("read %d bytes in %s", buf.Len(), time.Since(t2))

	got := buf.Bytes()
	if len(got) != len(data) {
		t.Fatalf("got length %d, want %d", len(got), len(data))
	}
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("mismatch at position %d (of %d)", i, len(got))
		}
	}
}
