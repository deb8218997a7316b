package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var _ Transport = &Loopback{}

// Loopback is the InProcessLoopback transport (§9), used by tests: Dial
// looks up a pre-registered Stream by addr rather than creating a new
// connection. Register the server side with Loopback.Register before
// dialing its address.
type Loopback struct {
	mu      sync.Mutex
	streams map[string]Stream
}

// NewLoopback returns an empty Loopback registry.
func NewLoopback() *Loopback {
	return &Loopback{streams: make(map[string]Stream)}
}

// Register associates addr with the client end of a connection; it is
// typically called right after NewPipePair, with the server end handed to
// a serveengine.Engine running in a goroutine.
func (l *Loopback) Register(addr string, clientEnd Stream) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams[addr] = clientEnd
}

// Dial returns the Stream registered for addr.
func (l *Loopback) Dial(_ context.Context, addr string) (Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[addr]
	if !ok {
		return nil, errors.Errorf("transport: no loopback stream registered for %q", addr)
	}
	delete(l.streams, addr)
	return s, nil
}
