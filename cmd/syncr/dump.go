package main

import (
	"context"
	"fmt"

	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/metacache"
	"github.com/bobg/syncr/scan"
)

// dodump implements `syncr dump <path>`: scan-and-print mode for
// diagnostics, per §6. It does not acquire the path lock — dump reads
// the tree, it doesn't participate in a sync, so there is nothing for
// the lock to protect it from.
type dodump struct {
	Quiet bool `subcmd:"quiet,,suppress non-error output"`
}

func (c dodump) Run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("dump needs exactly one root path, got %d", len(args))
	}
	root := args[0]

	store := chunkstore.NewFS(root + "/.syncr/chunks")
	cache, err := metacache.Open(ctx, root+"/.syncr/cache.db")
	if err != nil {
		return err
	}
	defer cache.Close()

	results, err := scan.Scan(ctx, root, cache, store, nil)
	if err != nil {
		return err
	}
	for r := range results {
		if r.Err != nil {
			fmt.Printf("ERROR %s: %s\n", r.Entry.Path, r.Err)
			continue
		}
		fmt.Printf("%s\t%s\t%d bytes\t%d chunks\n", r.Entry.Kind, r.Entry.Path, r.Entry.Size, len(r.Entry.Chunks))
	}
	return nil
}
