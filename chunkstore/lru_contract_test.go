package chunkstore_test

import (
	"context"
	"testing"

	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/chunkstore/memstore"
	"github.com/bobg/syncr/testutil"
)

func TestLRU(t *testing.T) {
	testutil.ChunkStoreContract(context.Background(), t, func() chunkstore.Store {
		l, err := chunkstore.NewLRU(memstore.New(), 8)
		if err != nil {
			t.Fatal(err)
		}
		return l
	})
}
