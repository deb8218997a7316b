// Package transport implements the Transport abstraction (§9): a factory
// that, given a node address, returns a duplex byte stream a wire.Conn can
// be laid over. It doesn't know anything about the sync protocol itself.
package transport

import (
	"context"
	"io"
)

// Stream is a duplex byte connection to one node's Serve process.
type Stream interface {
	io.ReadWriteCloser
}

// Transport opens a Stream to a node, identified by an address whose
// meaning is transport-specific (a directory path for Local, a
// user@host:path triple for SSH, a registered name for Loopback).
type Transport interface {
	Dial(ctx context.Context, addr string) (Stream, error)
}
