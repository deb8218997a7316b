package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/bobg/syncr/diff"
	"github.com/bobg/syncr/orchestrate"
	"github.com/bobg/syncr/signalctl"
)

// dosync implements `syncr sync <spec>...`.
type dosync struct {
	Progress bool   `subcmd:"progress,,print per-file progress to stderr"`
	Quiet    bool   `subcmd:"quiet,,suppress non-error output"`
	Delete   bool   `subcmd:"delete,,enable delete-sync mode"`
	DryRun   bool   `subcmd:"dry-run,,compute the plan but apply nothing"`
	Conflict string `subcmd:"conflict,newest,conflict resolution strategy (see diff.ParseStrategyOrNode)"`
}

func (c dosync) Run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("sync needs at least two node specs, got %d", len(args))
	}

	logger := newLogger(filterFromEnv(), c.Quiet)
	defer logger.Sync()

	policy, err := buildPolicy(c.Conflict, c.Delete)
	if err != nil {
		return err
	}

	nodes := make([]orchestrate.NodeSpec, len(args))
	for i, arg := range args {
		nodes[i] = parseNode(arg)
	}

	signals := signalctl.New()
	defer signals.Stop()

	cfg := orchestrate.Config{
		Nodes:  nodes,
		Policy: policy,
		DryRun: c.DryRun,
	}

	rep, err := orchestrate.Run(ctx, cfg, signals)
	if err != nil {
		logger.Error("sync failed", zap.Error(err))
		return err
	}

	if c.Progress && !c.Quiet {
		for _, d := range rep.Decisions {
			if d.Conflicted {
				fmt.Fprintf(os.Stderr, "%s: resolved conflict, winner node %d\n", d.RelPath, d.WinnerNode)
			}
		}
	}

	anyFailed := false
	for n, failed := range rep.Failed {
		if len(failed) > 0 {
			logger.Warn("node had failed operations", zap.Int("node", n), zap.Strings("relpaths", failed))
			anyFailed = true
		}
	}
	if anyFailed {
		return errPartial
	}
	if rep.Cancelled {
		return errCancelled
	}
	return nil
}

func buildPolicy(conflict string, deleteSync bool) (diff.Policy, error) {
	strat, nodeIdx, isNode, err := diff.ParseStrategyOrNode(conflict)
	if err != nil {
		return diff.Policy{}, err
	}
	policy := diff.Policy{Strategy: strat, DeleteSync: deleteSync}
	if isNode {
		policy.FixedNode = &nodeIdx
	}
	return policy, nil
}
