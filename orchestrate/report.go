package orchestrate

import "github.com/bobg/syncr/diff"

// Report summarizes one Run, per §7: partial success (some nodes
// committed, some failed) is recorded rather than silently dropped.
type Report struct {
	// Decisions is Resolve's per-relpath output, in sorted order.
	Decisions []diff.Decision

	// Committed[n] lists relpaths node n successfully wrote or deleted.
	Committed map[int][]string

	// Failed[n] lists relpaths node n failed to commit.
	Failed map[int][]string

	// Cancelled is true if the run observed a cancellation (§4.11) before
	// issuing COMMIT on every node; no node received COMMIT in that case.
	Cancelled bool
}

func newReport(numNodes int) *Report {
	return &Report{
		Committed: make(map[int][]string, numNodes),
		Failed:    make(map[int][]string, numNodes),
	}
}
