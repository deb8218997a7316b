package testutil

import (
	"context"
	"testing"
	"testing/quick"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/chunk"
	"github.com/bobg/syncr/chunkstore"
)

// ChunkStoreContract writes a random set of random chunks to a fresh store
// (storeFactory() is called once per quick.Check iteration, so it must
// return an empty store every time) and checks that ListPrefix("") returns
// exactly the refs that were written, in lexicographic order, and that
// Read returns each chunk's original bytes.
func ChunkStoreContract(ctx context.Context, t *testing.T, storeFactory func() chunkstore.Store) {
	f := func(blobs [][]byte) bool {
		store := storeFactory()
		want := make(map[syncr.Ref][]byte)

		for _, b := range blobs {
			ref := chunk.Digest(b)
			staged, err := store.Stage(ctx, ref, b)
			if err != nil {
				t.Logf("Stage: %s", err)
				return false
			}
			if err := store.Install(ctx, staged); err != nil {
				t.Logf("Install: %s", err)
				return false
			}
			want[ref] = b
		}

		var gotRefs []syncr.Ref
		err := store.ListPrefix(ctx, "", func(ref syncr.Ref) error {
			gotRefs = append(gotRefs, ref)
			return nil
		})
		if err != nil {
			t.Logf("ListPrefix: %s", err)
			return false
		}
		if len(gotRefs) != len(want) {
			t.Logf("got %d refs from ListPrefix, want %d", len(gotRefs), len(want))
			return false
		}
		for i, ref := range gotRefs {
			if i > 0 && !gotRefs[i-1].Less(ref) {
				t.Logf("ListPrefix returned refs out of order at index %d", i)
				return false
			}
			wantData, ok := want[ref]
			if !ok {
				t.Logf("ListPrefix returned unexpected ref %s", ref)
				return false
			}

			has, err := store.Has(ctx, ref)
			if err != nil || !has {
				t.Logf("Has(%s) = %v, %v", ref, has, err)
				return false
			}

			got, err := store.Read(ctx, ref)
			if err != nil {
				t.Logf("Read(%s): %s", ref, err)
				return false
			}
			if string(got) != string(wantData) {
				t.Logf("Read(%s) returned mismatched bytes", ref)
				return false
			}
		}

		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Error(err)
	}
}
