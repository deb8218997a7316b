package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/metacache"
	"github.com/bobg/syncr/serveengine"
	"github.com/bobg/syncr/wire"
)

// doserve implements `syncr serve <path>`: one Serve engine run against
// stdin/stdout, for a parent orchestrator to spawn (directly, or via
// ssh on a remote host per transport.SSH's RemoteCommand).
type doserve struct {
	Quiet bool `subcmd:"quiet,,suppress non-error output"`
}

func (c doserve) Run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("serve needs exactly one root path, got %d", len(args))
	}
	root := args[0]

	logger := newLogger(filterFromEnv(), c.Quiet)
	defer logger.Sync()

	store := chunkstore.NewFS(root + "/.syncr/chunks")
	cache, err := metacache.Open(ctx, root+"/.syncr/cache.db")
	if err != nil {
		return err
	}
	defer cache.Close()

	engine := serveengine.New(root, store, cache)
	conn := wire.NewConn(stdioStream{})
	return engine.Serve(ctx, conn)
}

// stdioStream adapts os.Stdin/os.Stdout to transport.Stream for a serve
// process talking to its parent over its own standard streams.
type stdioStream struct{}

func (stdioStream) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioStream) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioStream) Close() error                { return nil }
