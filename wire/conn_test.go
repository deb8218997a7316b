package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/bobg/syncr"
)

type loopback struct {
	r *bytes.Buffer
	w *bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.w.Write(p) }

func newLoopback() *loopback {
	return &loopback{r: new(bytes.Buffer), w: new(bytes.Buffer)}
}

func TestCommandRoundTrip(t *testing.T) {
	lb := newLoopback()
	writer := NewConn(lb)
	if err := writer.WriteCommand("VER", []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	lb.r = lb.w
	reader := NewConn(lb)
	frame, err := reader.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Verb != "VER" {
		t.Fatalf("got verb %q, want VER", frame.Verb)
	}
	var versions []int
	if err := frame.Arg(0, &versions); err != nil {
		t.Fatal(err)
	}
	if len(versions) != 3 || versions[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", versions)
	}
}

func TestDataRoundTrip(t *testing.T) {
	lb := newLoopback()
	writer := NewConn(lb)
	ref := syncr.Ref{0x01, 0x02, 0x03}
	payload := []byte("some chunk bytes")
	if err := writer.WriteData(ref, payload); err != nil {
		t.Fatal(err)
	}

	lb.r = lb.w
	reader := NewConn(lb)
	frame, err := reader.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !frame.IsData() {
		t.Fatal("expected a data frame")
	}
	if frame.Ref != ref {
		t.Fatalf("got ref %s, want %s", frame.Ref, ref)
	}
	if string(frame.Data) != string(payload) {
		t.Fatalf("got %q, want %q", frame.Data, payload)
	}
}

func TestErrFrame(t *testing.T) {
	lb := newLoopback()
	writer := NewConn(lb)
	body := ErrBody{Code: "bad_digest", Severity: SeverityFatal, Path: "a.txt", Msg: "mismatch"}
	if err := writer.WriteErr(body); err != nil {
		t.Fatal(err)
	}

	lb.r = lb.w
	reader := NewConn(lb)
	frame, err := reader.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Verb != "ERR" {
		t.Fatalf("got verb %q, want ERR", frame.Verb)
	}
	var got ErrBody
	if err := frame.Arg(0, &got); err != nil {
		t.Fatal(err)
	}
	if got != body {
		t.Fatalf("got %+v, want %+v", got, body)
	}
}

func TestMultipleFramesInSequence(t *testing.T) {
	lb := newLoopback()
	conn := NewConn(lb)
	if err := conn.WriteCommand("CAP", map[string]bool{"delete": true}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteCommand("END"); err != nil {
		t.Fatal(err)
	}

	readback := &loopback{r: bytes.NewBuffer(lb.w.Bytes()), w: new(bytes.Buffer)}
	reader := NewConn(readback)
	first, err := reader.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if first.Verb != "CAP" {
		t.Fatalf("got %q, want CAP", first.Verb)
	}
	second, err := reader.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if second.Verb != "END" {
		t.Fatalf("got %q, want END", second.Verb)
	}
	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	lb := newLoopback()
	conn := NewConn(lb)
	huge := make([]byte, MaxFrameBytes+1)
	for i := range huge {
		huge[i] = 'x'
	}
	err := conn.WriteCommand("X", string(huge))
	if err == nil {
		t.Fatal("expected an error for an oversized frame")
	}
}
