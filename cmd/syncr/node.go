package main

import (
	"context"
	"strings"

	"github.com/bobg/syncr/chunkstore"
	"github.com/bobg/syncr/metacache"
	"github.com/bobg/syncr/orchestrate"
	"github.com/bobg/syncr/serveengine"
	"github.com/bobg/syncr/transport"
	"github.com/bobg/syncr/wire"
)

// parseNode turns one `sync` argument into a NodeSpec. Per §6, a spec
// is either a local path or a "host:path" SSH target. A leading "/",
// "./", or "../" forces the local interpretation even if the rest of
// the path happens to contain a colon.
func parseNode(spec string) orchestrate.NodeSpec {
	if looksLocal(spec) {
		return orchestrate.NodeSpec{Addr: spec, Transport: &transport.Local{Serve: serveRoot}}
	}
	if idx := strings.Index(spec, ":"); idx >= 0 {
		return orchestrate.NodeSpec{Addr: spec, Transport: &transport.SSH{}}
	}
	return orchestrate.NodeSpec{Addr: spec, Transport: &transport.Local{Serve: serveRoot}}
}

func looksLocal(spec string) bool {
	return strings.HasPrefix(spec, "/") || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "."
}

// serveRoot is the transport.ServeFunc a co-hosted local node runs: open
// that root's chunk store and metadata cache and hand them to a fresh
// serveengine.Engine for the lifetime of one connection.
func serveRoot(ctx context.Context, root string, stream transport.Stream) error {
	store := chunkstore.NewFS(root + "/.syncr/chunks")
	cache, err := metacache.Open(ctx, root+"/.syncr/cache.db")
	if err != nil {
		return err
	}
	defer cache.Close()

	engine := serveengine.New(root, store, cache)
	return engine.Serve(ctx, wire.NewConn(stream))
}
