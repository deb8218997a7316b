package orchestrate

import (
	"sync"

	"github.com/bobg/syncr/transport"
	"github.com/bobg/syncr/wire"
)

// nodeConn pairs a node's Stream with the wire.Conn wrapping it, so
// Close can tear down both. mu serializes request/response exchanges on
// this connection: distribute can have several decisions targeting the
// same node concurrently (one connection, many writers), and the
// server's Serve loop reads one frame at a time, so two exchanges must
// never interleave their frames.
type nodeConn struct {
	stream transport.Stream
	conn   *wire.Conn
	mu     sync.Mutex
}

func (nc *nodeConn) Close() error {
	return nc.stream.Close()
}

func closeAll(conns []*nodeConn) {
	for _, nc := range conns {
		if nc != nil {
			_ = nc.Close()
		}
	}
}

// quitAll sends a best-effort QUIT to every connected node and closes
// the stream, per §4.11's cancellation/shutdown behavior. Errors are
// ignored: by this point the run has already succeeded or is already
// failing, and QUIT delivery is advisory.
func quitAll(conns []*nodeConn) {
	for _, nc := range conns {
		if nc == nil {
			continue
		}
		_ = nc.conn.WriteCommand("QUIT")
		_ = nc.Close()
	}
}
