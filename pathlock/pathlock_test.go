package pathlock

import (
	"os"
	"testing"

	"github.com/bobg/syncr"
)

func TestAcquireRelease(t *testing.T) {
	root, err := os.MkdirTemp("", "pathlock")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)

	l, err := Acquire(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(sentinelPath(root)); err != nil {
		t.Fatalf("sentinel not created: %s", err)
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(sentinelPath(root)); !os.IsNotExist(err) {
		t.Fatalf("sentinel survived Release: %v", err)
	}
}

func TestAcquireBusy(t *testing.T) {
	root, err := os.MkdirTemp("", "pathlock")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)

	l1, err := Acquire(root)
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Release()

	_, err = Acquire(root)
	if err != syncr.ErrBusy {
		t.Fatalf("got %v, want syncr.ErrBusy", err)
	}
}

func TestAcquireAfterReleaseSucceeds(t *testing.T) {
	root, err := os.MkdirTemp("", "pathlock")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)

	l1, err := Acquire(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := l1.Release(); err != nil {
		t.Fatal(err)
	}

	l2, err := Acquire(root)
	if err != nil {
		t.Fatalf("Acquire after Release: %s", err)
	}
	defer l2.Release()
}
