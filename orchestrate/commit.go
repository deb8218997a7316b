package orchestrate

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// commitAll issues COMMIT on every node (§4.9 phase 8) and records which
// relpaths each node reports as committed versus failed in rep. Each
// goroutine writes only to its own index of the per-node result slices,
// so the merge into rep's maps happens after g.Wait() returns, never
// concurrently.
func commitAll(ctx context.Context, conns []*nodeConn, plans []nodePlan, rep *Report) error {
	committed := make([][]string, len(conns))
	failed := make([]bool, len(conns))

	g, _ := errgroup.WithContext(ctx)
	for i, nc := range conns {
		i, nc := i, nc
		g.Go(func() error {
			result, err := commitOne(nc)
			committed[i] = result
			if err != nil {
				failed[i] = true
				return errors.Wrapf(err, "committing node %d", i)
			}
			return nil
		})
	}
	err := g.Wait()

	for i := range conns {
		rep.Committed[i] = committed[i]
		if failed[i] {
			rep.Failed[i] = append(rep.Failed[i], plans[i].relpaths()...)
		}
	}
	return err
}

func commitOne(nc *nodeConn) ([]string, error) {
	if err := nc.conn.WriteCommand("COMMIT"); err != nil {
		return nil, err
	}
	frame, err := readOrErr(nc.conn)
	if err != nil {
		return nil, err
	}
	if frame.Verb != "OK" {
		return nil, errors.Errorf("unexpected response %q to COMMIT", frame.Verb)
	}
	var committed []string
	_ = frame.Arg(0, &committed)
	return committed, nil
}
