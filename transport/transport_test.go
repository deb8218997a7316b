package transport

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestPipePair(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := a.Write([]byte("ping")); err != nil {
			t.Error(err)
		}
	}()

	buf := make([]byte, 4)
	if _, err := io.ReadFull(b, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want ping", buf)
	}
	<-done
}

func TestLocalDialRunsServe(t *testing.T) {
	local := &Local{
		Serve: func(ctx context.Context, addr string, stream Stream) error {
			io.Copy(stream, bytes.NewReader([]byte("hello " + addr)))
			return stream.Close()
		},
	}
	stream, err := local.Dial(context.Background(), "myroot")
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello myroot" {
		t.Fatalf("got %q, want %q", got, "hello myroot")
	}
}

func TestLoopbackRegisterAndDial(t *testing.T) {
	lb := NewLoopback()
	clientEnd, serverEnd := NewPipePair()
	lb.Register("node-a", clientEnd)

	go func() {
		buf := make([]byte, 3)
		io.ReadFull(serverEnd, buf)
		serverEnd.Write(buf)
	}()

	dialed, err := lb.Dial(context.Background(), "node-a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dialed.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 3)
	if _, err := io.ReadFull(dialed, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "abc" {
		t.Fatalf("got %q, want abc", got)
	}

	if _, err := lb.Dial(context.Background(), "node-a"); err == nil {
		t.Fatal("expected an error dialing an already-consumed address")
	}
}

func TestSplitSSHAddr(t *testing.T) {
	host, path, err := splitSSHAddr("user@example.com:/srv/data")
	if err != nil {
		t.Fatal(err)
	}
	if host != "user@example.com" || path != "/srv/data" {
		t.Fatalf("got (%q, %q)", host, path)
	}

	if _, _, err := splitSSHAddr("no-colon-here"); err == nil {
		t.Fatal("expected an error for a malformed address")
	}
}
