package chunkstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/testutil"
)

func TestFS(t *testing.T) {
	dirname, err := os.MkdirTemp("", "chunkstore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	testutil.ChunkStoreContract(context.Background(), t, func() chunkstore.Store {
		sub, err := os.MkdirTemp(dirname, "store")
		if err != nil {
			t.Fatal(err)
		}
		return chunkstore.NewFS(sub)
	})
}

func TestFSNotFound(t *testing.T) {
	dirname, err := os.MkdirTemp("", "chunkstore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	s := chunkstore.NewFS(dirname)
	ctx := context.Background()

	has, err := s.Has(ctx, syncr.Ref{0xab})
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("Has reported a chunk that was never stored")
	}

	_, err = s.Read(ctx, syncr.Ref{0xab})
	if err != syncr.ErrNotFound {
		t.Fatalf("Read returned %v, want syncr.ErrNotFound", err)
	}
}

func TestFSInstallIdempotent(t *testing.T) {
	dirname, err := os.MkdirTemp("", "chunkstore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	s := chunkstore.NewFS(dirname)
	ctx := context.Background()
	ref := syncr.Ref{0x01, 0x02}
	data := []byte("hello")

	for i := 0; i < 2; i++ {
		staged, err := s.Stage(ctx, ref, data)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Install(ctx, staged); err != nil {
			t.Fatalf("Install #%d: %s", i, err)
		}
	}

	got, err := s.Read(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}
