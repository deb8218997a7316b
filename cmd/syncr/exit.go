package main

import (
	"errors"

	"github.com/bobg/syncr"
)

// errPartial and errCancelled are sentinels a subcommand's Run returns
// to tell main which non-lock-busy failure code to exit with.
var (
	errPartial   = errors.New("sync: one or more nodes failed to commit")
	errCancelled = errors.New("sync: cancelled")
)

// Exit codes, per §6: 0 on success, non-zero codes distinguish why a
// run failed enough that a caller scripting `syncr sync` cares which
// branch to take.
const (
	exitOK        = 0
	exitUsage     = 1
	exitRuntime   = 2
	exitLockBusy  = 3
	exitPartial   = 4
	exitCancelled = 5
)

// exitCodeFor maps a Run error (or nil) to one of the codes above.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var se *syncr.SyncError
	if errors.As(err, &se) && se.Code == "lock_busy" {
		return exitLockBusy
	}
	if errors.Is(err, syncr.ErrBusy) {
		return exitLockBusy
	}
	if errors.Is(err, errPartial) {
		return exitPartial
	}
	if errors.Is(err, errCancelled) {
		return exitCancelled
	}
	return exitRuntime
}
