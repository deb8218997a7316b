package orchestrate

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/diff"
)

// listAll requests LIST from every node in parallel (§4.9 phase 4) and
// returns one diff.Listing per node, indexed the same way as cfg.Nodes.
func listAll(ctx context.Context, conns []*nodeConn) ([]diff.Listing, error) {
	listings := make([]diff.Listing, len(conns))
	g, _ := errgroup.WithContext(ctx)
	for i, nc := range conns {
		i, nc := i, nc
		g.Go(func() error {
			entries, err := listOne(nc)
			if err != nil {
				return errors.Wrapf(err, "listing node %d", i)
			}
			listings[i] = diff.ListingFromEntries(entries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}

func listOne(nc *nodeConn) ([]syncr.FileEntry, error) {
	if err := nc.conn.WriteCommand("LIST"); err != nil {
		return nil, err
	}
	var entries []syncr.FileEntry
	for {
		frame, err := readOrErr(nc.conn)
		if err != nil {
			return nil, err
		}
		if frame.Verb == "END" {
			return entries, nil
		}
		if frame.Verb != "ENTRY" {
			return nil, errors.Errorf("unexpected frame %q while listing", frame.Verb)
		}
		var entry syncr.FileEntry
		if err := frame.Arg(0, &entry); err != nil {
			return nil, errors.Wrap(err, "decoding ENTRY")
		}
		entries = append(entries, entry)
	}
}
