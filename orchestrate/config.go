// Package orchestrate implements the orchestrator pipeline (C9): the
// phase sequencer that drives every node's Serve handler through
// Connect, Handshake, List, Diff & resolve, Plan, Distribute chunks, and
// Commit, generalized from the teacher's store/sync.go multi-store
// Sync (2-valued blob reconciliation via errgroup and ListRefs
// comparison) to N-valued file-tree sync with conflict resolution and
// per-node write/delete plans.
package orchestrate

import (
	"context"
	"time"

	"github.com/bobg/syncr/diff"
	"github.com/bobg/syncr/transport"
)

// NodeSpec names one participant: the Transport used to reach it and
// the address passed to Transport.Dial (a local root path, or a
// host:path SSH target).
type NodeSpec struct {
	Addr      string
	Transport transport.Transport
}

// Config configures one Run.
type Config struct {
	Nodes []NodeSpec

	// Policy governs conflict resolution and delete-sync, per §4.10.
	Policy diff.Policy

	// Window bounds how many write and delete operations distribute runs
	// at once, across all nodes together. It is not a per-source count of
	// in-flight READ chunks: each write sends one READ for all of that
	// file's missing chunks. Zero means DefaultWindow.
	Window int

	// MaxConnectAttempts bounds Connect's retry loop (§7: ≤3 attempts,
	// exponential backoff). Zero means DefaultMaxConnectAttempts.
	MaxConnectAttempts int

	// ConnectBackoff is the base delay before the first retry; it doubles
	// on each subsequent attempt. Zero means DefaultConnectBackoff.
	ConnectBackoff time.Duration

	// DryRun computes Decisions and the per-node Plan but skips
	// Distribute chunks and Commit entirely, for `syncr sync --dry-run`.
	DryRun bool
}

// DefaultWindow is W from §5.
const DefaultWindow = 16

// DefaultMaxConnectAttempts is the retry bound from §7.
const DefaultMaxConnectAttempts = 3

// DefaultConnectBackoff is the base delay between connect retries.
const DefaultConnectBackoff = 200 * time.Millisecond

func (c Config) window() int {
	if c.Window <= 0 {
		return DefaultWindow
	}
	return c.Window
}

func (c Config) maxConnectAttempts() int {
	if c.MaxConnectAttempts <= 0 {
		return DefaultMaxConnectAttempts
	}
	return c.MaxConnectAttempts
}

func (c Config) connectBackoff() time.Duration {
	if c.ConnectBackoff <= 0 {
		return DefaultConnectBackoff
	}
	return c.ConnectBackoff
}

// dialWithRetry calls spec.Transport.Dial up to attempts times,
// doubling base between tries (§7's ≤3-attempts exponential backoff).
// It does not sleep after the final attempt.
func dialWithRetry(ctx context.Context, spec NodeSpec, attempts int, base time.Duration) (transport.Stream, error) {
	var lastErr error
	delay := base
	for i := 0; i < attempts; i++ {
		stream, err := spec.Transport.Dial(ctx, spec.Addr)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}
