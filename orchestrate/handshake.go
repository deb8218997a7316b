package orchestrate

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/wire"
)

// handshake exchanges VER then CAP with every node (§4.9 phase 2). It
// fails if any node reports a Fatal ERR (typically a busy path lock,
// since locking has no dedicated wire command — see serveengine) or if
// the chosen protocol versions disagree across nodes.
func handshake(ctx context.Context, conns []*nodeConn) (syncr.Capabilities, error) {
	versions := make([]int, len(conns))
	caps := make([]syncr.Capabilities, len(conns))

	g, _ := errgroup.WithContext(ctx)
	for i, nc := range conns {
		i, nc := i, nc
		g.Go(func() error {
			v, err := negotiateVersion(nc.conn)
			if err != nil {
				return err
			}
			versions[i] = v

			c, err := negotiateCaps(nc.conn)
			if err != nil {
				return err
			}
			caps[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return syncr.Capabilities{}, err
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] != versions[0] {
			return syncr.Capabilities{}, syncr.NewFatal("version_mismatch", errors.Errorf("nodes chose different protocol versions: %v", versions))
		}
	}

	intersection := caps[0]
	for _, c := range caps[1:] {
		intersection = intersection.Intersect(c)
	}
	return intersection, nil
}

func negotiateVersion(conn *wire.Conn) (int, error) {
	if err := conn.WriteCommand("VER", syncr.SupportedVersions); err != nil {
		return 0, err
	}
	frame, err := readOrErr(conn)
	if err != nil {
		return 0, err
	}
	var chosen int
	if err := frame.Arg(0, &chosen); err != nil {
		return 0, err
	}
	return chosen, nil
}

func negotiateCaps(conn *wire.Conn) (syncr.Capabilities, error) {
	if err := conn.WriteCommand("CAP", syncr.DefaultCapabilities()); err != nil {
		return syncr.Capabilities{}, err
	}
	frame, err := readOrErr(conn)
	if err != nil {
		return syncr.Capabilities{}, err
	}
	var c syncr.Capabilities
	if err := frame.Arg(0, &c); err != nil {
		return syncr.Capabilities{}, err
	}
	return c, nil
}

// readOrErr reads one frame and turns an ERR response into a Fatal
// SyncError carrying the peer's code and message; the severity the peer
// reported is not consulted.
func readOrErr(conn *wire.Conn) (wire.Frame, error) {
	frame, err := conn.ReadFrame()
	if err != nil {
		return wire.Frame{}, err
	}
	if frame.Verb == "ERR" {
		var body wire.ErrBody
		if decodeErr := frame.Arg(0, &body); decodeErr == nil {
			return wire.Frame{}, syncr.NewFatal(body.Code, errors.New(body.Msg))
		}
		return wire.Frame{}, syncr.NewFatal("protocol_error", errors.New("peer reported an error during handshake"))
	}
	return frame, nil
}
