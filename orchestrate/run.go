package orchestrate

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/syncr/diff"
	"github.com/bobg/syncr/signalctl"
)

// Run drives the full orchestrator pipeline (§4.9) for cfg.Nodes:
// Connect, Handshake (which folds in lock acquisition — see
// serveengine, whose Serve acquires the path lock before reading its
// first frame, since §4.8's command table has no LOCK verb), List,
// Diff & resolve, Plan, Distribute chunks, and Commit. signals is
// consulted between phases so a SIGINT/SIGTERM observed mid-run (§4.11)
// stops before any further wire traffic rather than partway through
// one.
func Run(ctx context.Context, cfg Config, signals *signalctl.Coordinator) (*Report, error) {
	numNodes := len(cfg.Nodes)
	rep := newReport(numNodes)

	if signals != nil {
		var cancel context.CancelFunc
		ctx, cancel = signals.Context(ctx)
		defer cancel()
	}

	conns, err := connect(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connecting")
	}
	defer quitAll(conns)

	if cancelled(ctx, signals, rep) {
		return rep, nil
	}

	if _, err := handshake(ctx, conns); err != nil {
		return nil, errors.Wrap(err, "handshake")
	}

	if cancelled(ctx, signals, rep) {
		return rep, nil
	}

	listings, err := listAll(ctx, conns)
	if err != nil {
		return nil, errors.Wrap(err, "listing")
	}

	aggregated := diff.Aggregate(listings)
	decisions, err := diff.Resolve(ctx, aggregated, cfg.Policy, numNodes)
	if err != nil {
		return nil, errors.Wrap(err, "resolving conflicts")
	}
	rep.Decisions = decisions

	if cfg.DryRun {
		return rep, nil
	}

	if cancelled(ctx, signals, rep) {
		return rep, nil
	}

	plans := buildPlans(decisions, numNodes)

	if err := distribute(ctx, conns, decisions, cfg); err != nil {
		return rep, errors.Wrap(err, "distributing chunks")
	}

	if cancelled(ctx, signals, rep) {
		return rep, nil
	}

	if err := commitAll(ctx, conns, plans, rep); err != nil {
		return rep, errors.Wrap(err, "committing")
	}

	return rep, nil
}

func cancelled(ctx context.Context, signals *signalctl.Coordinator, rep *Report) bool {
	if signals != nil && signals.Cancelled() {
		rep.Cancelled = true
		return true
	}
	select {
	case <-ctx.Done():
		rep.Cancelled = true
		return true
	default:
		return false
	}
}
