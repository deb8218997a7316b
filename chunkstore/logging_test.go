package chunkstore_test

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/chunkstore/memstore"
	"github.com/bobg/syncr/testutil"
)

func TestLogging(t *testing.T) {
	testutil.ChunkStoreContract(context.Background(), t, func() chunkstore.Store {
		return chunkstore.NewLogging(memstore.New(), zaptest.NewLogger(t))
	})
}
