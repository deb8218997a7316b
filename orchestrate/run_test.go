package orchestrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobg/syncr/chunkstore/memstore"
	"github.com/bobg/syncr/diff"
	"github.com/bobg/syncr/serveengine"
	"github.com/bobg/syncr/transport"
	"github.com/bobg/syncr/wire"
)

// startNode serves root over a fresh Loopback-registered connection and
// returns the NodeSpec that dials it.
func startNode(t *testing.T, lb *transport.Loopback, addr, root string) NodeSpec {
	t.Helper()
	clientEnd, serverEnd := transport.NewPipePair()
	lb.Register(addr, clientEnd)

	engine := serveengine.New(root, memstore.New(), nil)
	go func() {
		_ = engine.Serve(context.Background(), wire.NewConn(serverEnd))
	}()

	return NodeSpec{Addr: addr, Transport: lb}
}

func TestRunPropagatesNewFileToAllNodes(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()

	if err := os.WriteFile(filepath.Join(rootA, "hello.txt"), []byte("hello, syncr"), 0o644); err != nil {
		t.Fatal(err)
	}

	lb := transport.NewLoopback()
	cfg := Config{
		Nodes: []NodeSpec{
			startNode(t, lb, "a", rootA),
			startNode(t, lb, "b", rootB),
		},
		Policy: diff.Policy{Strategy: diff.PreferNewest},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, err := Run(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Cancelled {
		t.Fatal("unexpected cancellation")
	}

	got, err := os.ReadFile(filepath.Join(rootB, "hello.txt"))
	if err != nil {
		t.Fatalf("reading propagated file: %v", err)
	}
	if string(got) != "hello, syncr" {
		t.Fatalf("got content %q, want %q", got, "hello, syncr")
	}
}

func TestRunDryRunLeavesFilesystemUntouched(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()

	if err := os.WriteFile(filepath.Join(rootA, "hello.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	lb := transport.NewLoopback()
	cfg := Config{
		Nodes: []NodeSpec{
			startNode(t, lb, "a", rootA),
			startNode(t, lb, "b", rootB),
		},
		Policy: diff.Policy{Strategy: diff.PreferNewest},
		DryRun: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, err := Run(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Decisions) == 0 {
		t.Fatal("expected at least one decision")
	}

	if _, err := os.ReadFile(filepath.Join(rootB, "hello.txt")); err == nil {
		t.Fatal("dry run should not have written hello.txt on node b")
	}
}

func TestRunNoChangesWhenNodesAlreadyMatch(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()

	for _, root := range []string{rootA, rootB} {
		if err := os.WriteFile(filepath.Join(root, "same.txt"), []byte("identical"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	lb := transport.NewLoopback()
	cfg := Config{
		Nodes: []NodeSpec{
			startNode(t, lb, "a", rootA),
			startNode(t, lb, "b", rootB),
		},
		Policy: diff.Policy{Strategy: diff.PreferNewest},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, err := Run(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, d := range rep.Decisions {
		if d.Conflicted {
			t.Fatalf("relpath %q should not have been conflicted", d.RelPath)
		}
	}
}
