// Command syncr synchronizes N directory trees: each of a dosync's
// node specs is either a local path or an SSH "host:path" target; the
// heavy lifting lives in the orchestrate, serveengine, and diff
// packages. This command is the thin CLI wrapper that the teacher's
// own cmd/bs/main.go plays for the content store: parse args with
// subcmd, build the real components, run them, map the result to an
// exit code.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bobg/subcmd/v2"
)

type maincmd struct{}

func (maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"sync", dosync{}, "synchronize two or more nodes", nil,
		"serve", doserve{}, "serve one root over stdin/stdout", nil,
		"dump", dodump{}, "scan a root and print its entries", nil,
	)
}

func main() {
	ctx := context.Background()
	err := subcmd.Run(ctx, maincmd{}, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "syncr:", err)
	}
	os.Exit(exitCodeFor(err))
}
