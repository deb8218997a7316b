package transport

import "io"

// pipeStream joins an io.Reader and io.Writer (and an optional Closer)
// into a single Stream, for transports built out of os/exec's Stdin/Stdout
// pipes or out of io.Pipe.
type pipeStream struct {
	io.Reader
	io.Writer
	closeFn func() error
}

func (p *pipeStream) Close() error {
	if p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}

// NewPipePair returns two Streams, each one end of a full-duplex in-process
// pipe: writes to a are readable from b and vice versa. It is the
// InProcessLoopback variant from §9, used directly by tests and
// internally by Local to hand a Serve-side endpoint to a locally running
// engine without shelling out to anything.
func NewPipePair() (a, b Stream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a = &pipeStream{Reader: ar, Writer: aw, closeFn: closeBoth(ar, aw)}
	b = &pipeStream{Reader: br, Writer: bw, closeFn: closeBoth(br, bw)}
	return a, b
}

func closeBoth(r *io.PipeReader, w *io.PipeWriter) func() error {
	return func() error {
		rerr := r.Close()
		werr := w.Close()
		if rerr != nil {
			return rerr
		}
		return werr
	}
}
