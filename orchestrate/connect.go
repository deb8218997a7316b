package orchestrate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bobg/syncr/wire"
)

// connect dials every node in parallel (§4.9 phase 1), retrying each up
// to cfg.maxConnectAttempts times with exponential backoff.
func connect(ctx context.Context, cfg Config) ([]*nodeConn, error) {
	conns := make([]*nodeConn, len(cfg.Nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range cfg.Nodes {
		i, spec := i, spec
		g.Go(func() error {
			stream, err := dialWithRetry(gctx, spec, cfg.maxConnectAttempts(), cfg.connectBackoff())
			if err != nil {
				return err
			}
			conns[i] = &nodeConn{stream: stream, conn: wire.NewConn(stream)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(conns)
		return nil, err
	}
	return conns, nil
}
