package orchestrate

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/syncr"
	"github.com/bobg/syncr/diff"
	"github.com/bobg/syncr/wire"
)

// distribute executes the Plan and Distribute-chunks phases (§4.9
// phases 6–7) for every decision that needs a write or delete on some
// node. The winning node of a conflict is, by construction, the one
// that produced the winning FileEntry at scan time — scan.Scan only
// ever records a chunk ref in an entry after installing its bytes into
// that node's local store — so it is always a valid source for every
// chunk the winning entry names; no separate HAS search across the
// other peers is needed to locate one.
func distribute(ctx context.Context, conns []*nodeConn, decisions []diff.Decision, cfg Config) error {
	sem := make(chan struct{}, cfg.window())
	g, gctx := errgroup.WithContext(ctx)

	for _, d := range decisions {
		d := d
		for n, action := range d.Actions {
			n, action := n, action
			if action == diff.NoAction {
				continue
			}
			g.Go(func() error {
				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					return gctx.Err()
				}
				defer func() { <-sem }()

				switch action {
				case diff.Write:
					return writeOne(gctx, conns, d, n)
				case diff.Delete:
					return deleteOne(conns[n], d.RelPath)
				default:
					return nil
				}
			})
		}
	}
	return g.Wait()
}

func deleteOne(dest *nodeConn, relpath string) error {
	dest.mu.Lock()
	defer dest.mu.Unlock()

	if err := dest.conn.WriteCommand("DELETE", relpath); err != nil {
		return err
	}
	frame, err := readOrErr(dest.conn)
	if err != nil {
		return errors.Wrapf(err, "deleting %q", relpath)
	}
	if frame.Verb != "OK" {
		return errors.Errorf("unexpected response %q deleting %q", frame.Verb, relpath)
	}
	return nil
}

// writeOne brings destination node n's copy of d.RelPath in line with
// d.Winner: it asks the destination which of the winning entry's chunks
// it already has, reads the rest from the winning node, and relays them
// through a WRITE-FILE/DATA/END exchange.
func writeOne(ctx context.Context, conns []*nodeConn, d diff.Decision, n int) error {
	dest := conns[n]
	source := conns[d.WinnerNode]
	entry := winnerEntry(d)

	missing, err := missingChunks(dest, entry.Chunks)
	if err != nil {
		return errors.Wrapf(err, "querying HAS on node %d for %q", n, d.RelPath)
	}

	payloads, err := readChunks(source, missing)
	if err != nil {
		return errors.Wrapf(err, "reading chunks from node %d for %q", d.WinnerNode, d.RelPath)
	}

	// WRITE-FILE through END is one continuous exchange from the server's
	// point of view; dest.mu stays held for all of it so no other
	// decision's frames can land in the middle.
	dest.mu.Lock()
	defer dest.mu.Unlock()

	if err := dest.conn.WriteCommand("WRITE-FILE", entry); err != nil {
		return err
	}
	if frame, err := readOrErr(dest.conn); err != nil {
		return err
	} else if frame.Verb != "OK" {
		return errors.Errorf("unexpected response %q to WRITE-FILE for %q", frame.Verb, d.RelPath)
	}

	for _, ref := range entry.Chunks {
		data, ok := payloads[ref]
		if !ok {
			continue
		}
		if err := dest.conn.WriteData(ref, data); err != nil {
			return err
		}
	}
	if err := dest.conn.WriteCommand("END"); err != nil {
		return err
	}
	frame, err := readOrErr(dest.conn)
	if err != nil {
		return errors.Wrapf(err, "finishing write of %q on node %d", d.RelPath, n)
	}
	if frame.Verb != "OK" {
		return errors.Errorf("unexpected response %q ending write of %q", frame.Verb, d.RelPath)
	}
	return nil
}

func winnerEntry(d diff.Decision) syncr.FileEntry {
	entry := syncr.FileEntry{Path: d.RelPath}
	if d.Winner != nil {
		entry.Kind = syncr.Kind(d.Winner.Kind)
		entry.Mode = d.Winner.Mode
		entry.Size = d.Winner.Size
		entry.MtimeNs = d.Winner.MtimeNs
		entry.Chunks = make([]syncr.Ref, len(d.Winner.Chunks))
		for i, c := range d.Winner.Chunks {
			entry.Chunks[i] = c
		}
	}
	return entry
}

// missingChunks asks nc's peer which of refs it already has and returns
// the ones it doesn't.
func missingChunks(nc *nodeConn, refs []syncr.Ref) ([]syncr.Ref, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	nc.mu.Lock()
	defer nc.mu.Unlock()
	conn := nc.conn

	hexes := make([]string, len(refs))
	for i, ref := range refs {
		hexes[i] = ref.String()
	}
	if err := conn.WriteCommand("HAS", hexes); err != nil {
		return nil, err
	}
	frame, err := readOrErr(conn)
	if err != nil {
		return nil, err
	}
	if frame.Verb != "HAS" {
		return nil, errors.Errorf("unexpected response %q to HAS", frame.Verb)
	}
	var present []string
	if err := frame.Arg(0, &present); err != nil {
		return nil, errors.Wrap(err, "decoding HAS response")
	}
	have := make(map[string]bool, len(present))
	for _, h := range present {
		have[h] = true
	}
	var missing []syncr.Ref
	for _, ref := range refs {
		if !have[ref.String()] {
			missing = append(missing, ref)
		}
	}
	return missing, nil
}

// readChunks issues one READ for refs on nc's peer and collects the
// resulting DATA frames, keyed by digest.
func readChunks(nc *nodeConn, refs []syncr.Ref) (map[syncr.Ref][]byte, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	nc.mu.Lock()
	defer nc.mu.Unlock()
	conn := nc.conn

	hexes := make([]string, len(refs))
	for i, ref := range refs {
		hexes[i] = ref.String()
	}
	if err := conn.WriteCommand("READ", hexes); err != nil {
		return nil, err
	}
	payloads := make(map[syncr.Ref][]byte, len(refs))
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return nil, err
		}
		if frame.Verb == "ERR" {
			var body wire.ErrBody
			if decodeErr := frame.Arg(0, &body); decodeErr == nil {
				return nil, syncr.NewFatal(body.Code, errors.New(body.Msg))
			}
			return nil, errors.New("peer reported an error during READ")
		}
		if frame.IsData() {
			payloads[frame.Ref] = frame.Data
			continue
		}
		if frame.Verb == "END" {
			return payloads, nil
		}
		return nil, errors.Errorf("unexpected frame %q while reading chunks", frame.Verb)
	}
}
