package serveengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/chunk"
	"github.com/bobg/syncr/chunkstore/memstore"
	"github.com/bobg/syncr/transport"
	"github.com/bobg/syncr/wire"
)

func TestEngineWriteFileAndCommit(t *testing.T) {
	root := t.TempDir()
	store := memstore.New()
	engine := New(root, store, nil)

	clientEnd, serverEnd := transport.NewPipePair()
	defer clientEnd.Close()

	done := make(chan error, 1)
	go func() {
		done <- engine.Serve(context.Background(), wire.NewConn(serverEnd))
	}()

	client := wire.NewConn(clientEnd)

	if err := client.WriteCommand("VER", syncr.SupportedVersions); err != nil {
		t.Fatal(err)
	}
	verResp, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	var chosen int
	if err := verResp.Arg(0, &chosen); err != nil {
		t.Fatal(err)
	}
	if chosen != syncr.SupportedVersions[0] {
		t.Fatalf("got VER %d, want %d", chosen, syncr.SupportedVersions[0])
	}

	if err := client.WriteCommand("CAP", syncr.DefaultCapabilities()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ReadFrame(); err != nil {
		t.Fatal(err)
	}

	content := []byte("hello, syncr")
	ref := chunk.Digest(content)
	entry := syncr.FileEntry{
		Path:    "greeting.txt",
		Kind:    syncr.Regular,
		Mode:    0o644,
		Size:    int64(len(content)),
		MtimeNs: 123,
		Chunks:  []syncr.Ref{ref},
	}
	if err := client.WriteCommand("WRITE-FILE", entry); err != nil {
		t.Fatal(err)
	}
	writeResp, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if writeResp.Verb != "OK" {
		t.Fatalf("got verb %q after WRITE-FILE, want OK", writeResp.Verb)
	}
	if err := client.WriteData(ref, content); err != nil {
		t.Fatal(err)
	}
	if err := client.WriteCommand("END"); err != nil {
		t.Fatal(err)
	}
	okFrame, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if okFrame.Verb != "OK" {
		t.Fatalf("got verb %q after END, want OK", okFrame.Verb)
	}

	if err := client.WriteCommand("COMMIT"); err != nil {
		t.Fatal(err)
	}
	commitResp, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if commitResp.Verb != "OK" {
		t.Fatalf("got verb %q after COMMIT, want OK", commitResp.Verb)
	}

	got, err := os.ReadFile(filepath.Join(root, "greeting.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}

	if err := client.WriteCommand("QUIT"); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}
}

func TestEngineWriteFileUsesLocalChunkWhenAlreadyPresent(t *testing.T) {
	root := t.TempDir()
	store := memstore.New()

	content := []byte("already have this")
	ref := chunk.Digest(content)
	staged, err := store.Stage(context.Background(), ref, content)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Install(context.Background(), staged); err != nil {
		t.Fatal(err)
	}

	engine := New(root, store, nil)
	clientEnd, serverEnd := transport.NewPipePair()
	defer clientEnd.Close()

	done := make(chan error, 1)
	go func() {
		done <- engine.Serve(context.Background(), wire.NewConn(serverEnd))
	}()
	client := wire.NewConn(clientEnd)

	entry := syncr.FileEntry{
		Path:    "cached.txt",
		Kind:    syncr.Regular,
		Size:    int64(len(content)),
		MtimeNs: 1,
		Chunks:  []syncr.Ref{ref},
	}
	if err := client.WriteCommand("WRITE-FILE", entry); err != nil {
		t.Fatal(err)
	}
	okFrame, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if okFrame.Verb != "OK" {
		t.Fatalf("got %q, want OK", okFrame.Verb)
	}

	if err := client.WriteCommand("END"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ReadFrame(); err != nil {
		t.Fatal(err)
	}
	if err := client.WriteCommand("COMMIT"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ReadFrame(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(root, "cached.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}

	client.WriteCommand("QUIT")
	<-done
}

func TestEngineHasAndRead(t *testing.T) {
	root := t.TempDir()
	store := memstore.New()
	content := []byte("chunk bytes")
	ref := chunk.Digest(content)
	staged, err := store.Stage(context.Background(), ref, content)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Install(context.Background(), staged); err != nil {
		t.Fatal(err)
	}

	engine := New(root, store, nil)
	clientEnd, serverEnd := transport.NewPipePair()
	defer clientEnd.Close()

	done := make(chan error, 1)
	go func() {
		done <- engine.Serve(context.Background(), wire.NewConn(serverEnd))
	}()
	client := wire.NewConn(clientEnd)

	missing := syncr.Ref{}
	missing[0] = 0xff
	if err := client.WriteCommand("HAS", []string{ref.String(), missing.String()}); err != nil {
		t.Fatal(err)
	}
	hasResp, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	var present []string
	if err := hasResp.Arg(0, &present); err != nil {
		t.Fatal(err)
	}
	if len(present) != 1 || present[0] != ref.String() {
		t.Fatalf("got %v, want [%s]", present, ref)
	}

	if err := client.WriteCommand("READ", []string{ref.String()}); err != nil {
		t.Fatal(err)
	}
	dataFrame, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !dataFrame.IsData() || string(dataFrame.Data) != string(content) {
		t.Fatalf("got data frame %+v, want content %q", dataFrame, content)
	}
	endFrame, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if endFrame.Verb != "END" {
		t.Fatalf("got %q, want END", endFrame.Verb)
	}

	client.WriteCommand("QUIT")
	<-done
}
