package metacache

import (
	"context"
	"os"
	"testing"

	"github.com/bobg/syncr"
)

func withTestCache(ctx context.Context, fn func(*Cache) error) error {
	f, err := os.CreateTemp("", "metacachetest")
	if err != nil {
		return err
	}
	tmpfile := f.Name()
	f.Close()
	defer os.Remove(tmpfile)

	c, err := Open(ctx, tmpfile)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

func TestLookupMiss(t *testing.T) {
	ctx := context.Background()
	err := withTestCache(ctx, func(c *Cache) error {
		_, ok, err := c.Lookup(ctx, "nope.txt")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("Lookup found an entry that was never stored")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	err := withTestCache(ctx, func(c *Cache) error {
		want := Entry{
			Relpath: "a/b/c.txt",
			Size:    42,
			MtimeNs: 1234567890,
			Inode:   99,
			Chunks:  []syncr.Ref{{0x01, 0x02}, {0x03, 0x04}},
		}
		if err := c.Store(ctx, want); err != nil {
			t.Fatal(err)
		}

		got, ok, err := c.Lookup(ctx, want.Relpath)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("Lookup did not find the stored entry")
		}
		if got.Relpath != want.Relpath || got.Size != want.Size ||
			got.MtimeNs != want.MtimeNs || got.Inode != want.Inode {
			t.Fatalf("got %+v, want %+v", got, want)
		}
		if len(got.Chunks) != len(want.Chunks) {
			t.Fatalf("got %d chunks, want %d", len(got.Chunks), len(want.Chunks))
		}
		for i := range want.Chunks {
			if got.Chunks[i] != want.Chunks[i] {
				t.Fatalf("chunk %d: got %s, want %s", i, got.Chunks[i], want.Chunks[i])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	err := withTestCache(ctx, func(c *Cache) error {
		e := Entry{Relpath: "x.txt", Size: 1, MtimeNs: 1, Inode: 1}
		if err := c.Store(ctx, e); err != nil {
			t.Fatal(err)
		}
		e.Size = 2
		e.Chunks = []syncr.Ref{{0xaa}}
		if err := c.Store(ctx, e); err != nil {
			t.Fatal(err)
		}

		got, ok, err := c.Lookup(ctx, "x.txt")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("Lookup missed after overwrite")
		}
		if got.Size != 2 || len(got.Chunks) != 1 {
			t.Fatalf("got %+v, want updated entry", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	err := withTestCache(ctx, func(c *Cache) error {
		if err := c.Store(ctx, Entry{Relpath: "gone.txt", Size: 1}); err != nil {
			t.Fatal(err)
		}
		if err := c.Forget(ctx, "gone.txt"); err != nil {
			t.Fatal(err)
		}
		_, ok, err := c.Lookup(ctx, "gone.txt")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("entry survived Forget")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	err := withTestCache(ctx, func(c *Cache) error {
		if err := c.Store(ctx, Entry{Relpath: "keep.txt", Size: 1}); err != nil {
			t.Fatal(err)
		}
		if err := c.Store(ctx, Entry{Relpath: "stale.txt", Size: 1}); err != nil {
			t.Fatal(err)
		}

		if err := c.Compact(ctx, map[string]bool{"keep.txt": true}); err != nil {
			t.Fatal(err)
		}

		if _, ok, err := c.Lookup(ctx, "keep.txt"); err != nil || !ok {
			t.Fatalf("keep.txt missing after compaction: ok=%v err=%v", ok, err)
		}
		if _, ok, err := c.Lookup(ctx, "stale.txt"); err != nil || ok {
			t.Fatalf("stale.txt survived compaction: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
