package diff

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// Action is what a node must do for one relpath, as decided by Resolve.
type Action int

const (
	// NoAction means the node's current entry already matches the
	// winning entry; nothing to write.
	NoAction Action = iota
	// Write means the node must be brought to match Winner (a create or
	// an overwrite).
	Write
	// Delete means the node's entry for this relpath must be removed.
	Delete
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "none"
	case Write:
		return "write"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Decision is the outcome of resolving one relpath across all nodes.
type Decision struct {
	RelPath string
	// Winner is the entry every node should converge to, or nil if the
	// decision is a delete.
	Winner *EntryView
	// WinnerNode is the index of the node Winner came from, or -1 when
	// Decision has no single source node (e.g. a delete).
	WinnerNode int
	// Actions[n] is what node n must do.
	Actions []Action
	// Conflicted records whether this relpath required conflict
	// resolution (as opposed to a trivial skip or propagate).
	Conflicted bool
}

// Listing is one node's view of the tree: relpath -> entry. Absent
// relpaths are represented by the key simply not being present.
type Listing map[string]EntryView

// Aggregate merges per-node Listings into the union of relpaths and, for
// each, a slice indexed by node (nil where the node lacks the relpath).
func Aggregate(listings []Listing) map[string][]*EntryView {
	out := make(map[string][]*EntryView)
	for n, listing := range listings {
		for relpath, entry := range listing {
			row, ok := out[relpath]
			if !ok {
				row = make([]*EntryView, len(listings))
				out[relpath] = row
			}
			e := entry
			row[n] = &e
		}
	}
	// Ensure every row has full width even if a later node contributed
	// the first sighting of a relpath.
	for relpath, row := range out {
		if len(row) < len(listings) {
			widened := make([]*EntryView, len(listings))
			copy(widened, row)
			out[relpath] = widened
		}
	}
	return out
}

// SortedRelpaths returns the keys of m in sorted order, per §4.10's
// determinism requirement: every phase iterates relpaths sorted so a
// dry run on identical inputs produces a byte-identical plan.
func SortedRelpaths(m map[string][]*EntryView) []string {
	out := make([]string, 0, len(m))
	for relpath := range m {
		out = append(out, relpath)
	}
	sort.Strings(out)
	return out
}

// budget tracks delete-protection accounting (§4.10) across a Resolve
// call: at most Policy.MaxDeletes deletes, or MaxDeletePercent of the
// total relpaths considered, whichever is tighter, else the run is
// fatal.
type budget struct {
	policy Policy
	total  int
	used   int
}

func (b *budget) allow() error {
	b.used++
	if b.policy.MaxDeletes > 0 && b.used > b.policy.MaxDeletes {
		return errors.Errorf("diff: delete budget exceeded: %d deletes requested, limit %d", b.used, b.policy.MaxDeletes)
	}
	if b.policy.MaxDeletePercent > 0 && b.total > 0 {
		pct := (b.used * 100) / b.total
		if float64(pct) > b.policy.MaxDeletePercent {
			return errors.Errorf("diff: delete budget exceeded: %d%% of entries, limit %.0f%%", pct, b.policy.MaxDeletePercent)
		}
	}
	return nil
}

// Resolve walks aggregated, in sorted relpath order, and produces one
// Decision per relpath, consulting policy for conflicts and deletes.
// ctx is threaded through only to reach policy.Decide for Interactive
// conflicts; Resolve performs no I/O of its own.
func Resolve(ctx context.Context, aggregated map[string][]*EntryView, policy Policy, numNodes int) ([]Decision, error) {
	relpaths := SortedRelpaths(aggregated)
	bud := &budget{policy: policy, total: len(relpaths)}

	decisions := make([]Decision, 0, len(relpaths))
	for _, relpath := range relpaths {
		row := aggregated[relpath]
		d, err := resolveOne(ctx, relpath, row, policy, numNodes, bud)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func resolveOne(ctx context.Context, relpath string, row []*EntryView, policy Policy, numNodes int, bud *budget) (Decision, error) {
	present := presentNodes(row)

	if len(present) == numNodes && allSame(row, present) {
		return Decision{RelPath: relpath, Winner: row[present[0]], WinnerNode: present[0], Actions: make([]Action, numNodes)}, nil
	}

	if len(present) < numNodes && allSame(row, present) {
		return resolvePropagateOrDelete(ctx, relpath, row, present, policy, numNodes, bud)
	}

	return resolveConflict(ctx, relpath, row, present, policy, numNodes)
}

func presentNodes(row []*EntryView) []int {
	var out []int
	for i, e := range row {
		if e != nil {
			out = append(out, i)
		}
	}
	return out
}

func allSame(row []*EntryView, present []int) bool {
	if len(present) == 0 {
		return true
	}
	first := row[present[0]]
	for _, i := range present[1:] {
		if !first.SameContent(*row[i]) {
			return false
		}
	}
	return true
}

// resolvePropagateOrDelete handles a relpath present on a strict subset
// of nodes with identical content among those that have it: either a
// propagate (create on the absent nodes) or, if DeleteSync says this
// absence looks intentional, a delete on the present nodes.
func resolvePropagateOrDelete(ctx context.Context, relpath string, row []*EntryView, present []int, policy Policy, numNodes int, bud *budget) (Decision, error) {
	source := row[present[0]]

	if policy.DeleteSync && looksLikeDelete(source, policy) {
		if err := bud.allow(); err != nil {
			return Decision{}, err
		}
		actions := make([]Action, numNodes)
		for _, i := range present {
			actions[i] = Delete
		}
		return Decision{RelPath: relpath, Winner: nil, WinnerNode: -1, Actions: actions}, nil
	}

	actions := make([]Action, numNodes)
	for i := 0; i < numNodes; i++ {
		if row[i] == nil {
			actions[i] = Write
		}
	}
	return Decision{RelPath: relpath, Winner: source, WinnerNode: present[0], Actions: actions}, nil
}

// looksLikeDelete reports whether source's mtime predates the per-run
// cutoff, meaning source existed as of the last sync and the nodes
// missing it now have plausibly deleted it since, per §4.10. A mtime
// at or after the cutoff means the file is new since the last sync and
// hasn't reached the other nodes yet, so it's propagated instead of
// deleted. A zero cutoff disables the check (every eligible absence is
// a delete candidate).
func looksLikeDelete(source *EntryView, policy Policy) bool {
	if policy.DeleteCutoffNs == 0 {
		return true
	}
	return source.MtimeNs < policy.DeleteCutoffNs
}

// resolveConflict handles a relpath with genuinely differing content
// across the nodes that have it, applying policy's strategy.
func resolveConflict(ctx context.Context, relpath string, row []*EntryView, present []int, policy Policy, numNodes int) (Decision, error) {
	strat := policy.strategyFor(relpath)

	winner := -1
	switch {
	case policy.FixedNode != nil:
		if idx := *policy.FixedNode; idx >= 0 && idx < len(row) && row[idx] != nil {
			winner = idx
		}
	case strat == FailOnConflict:
		return Decision{}, errors.Errorf("diff: conflict on %q and strategy is fail-on-conflict", relpath)
	case strat == Skip:
		winner = -1
	case strat == Interactive:
		w, err := decide(ctx, relpath, row, policy)
		if err != nil {
			return Decision{}, err
		}
		winner = w
	default:
		winner = pickByStrategy(strat, row, present)
	}

	actions := make([]Action, numNodes)
	var winEntry *EntryView
	if winner >= 0 {
		winEntry = row[winner]
		for i := 0; i < numNodes; i++ {
			if row[i] == nil || !row[i].SameContent(*winEntry) {
				actions[i] = Write
			}
		}
	}
	return Decision{RelPath: relpath, Winner: winEntry, WinnerNode: winner, Actions: actions, Conflicted: true}, nil
}

func decide(ctx context.Context, relpath string, row []*EntryView, policy Policy) (int, error) {
	if policy.Decide == nil {
		return -1, nil
	}
	entries := make([]*NodeEntry, 0, len(row))
	for i, e := range row {
		if e != nil {
			entries = append(entries, &NodeEntry{Node: i, Entry: *e})
		}
	}
	return policy.Decide(ctx, Conflict{RelPath: relpath, Entries: entries})
}

func pickByStrategy(strat Strategy, row []*EntryView, present []int) int {
	switch strat {
	case PreferFirst:
		return present[0]
	case PreferLast:
		return present[len(present)-1]
	case PreferNewest:
		return bestBy(present, func(a, b int) bool {
			return row[a].MtimeNs > row[b].MtimeNs || (row[a].MtimeNs == row[b].MtimeNs && a < b)
		})
	case PreferOldest:
		return bestBy(present, func(a, b int) bool {
			return row[a].MtimeNs < row[b].MtimeNs || (row[a].MtimeNs == row[b].MtimeNs && a < b)
		})
	case PreferLargest:
		return bestBy(present, func(a, b int) bool {
			if row[a].Size != row[b].Size {
				return row[a].Size > row[b].Size
			}
			return row[a].MtimeNs > row[b].MtimeNs
		})
	case PreferSmallest:
		return bestBy(present, func(a, b int) bool {
			if row[a].Size != row[b].Size {
				return row[a].Size < row[b].Size
			}
			return row[a].MtimeNs > row[b].MtimeNs
		})
	default:
		return present[0]
	}
}

// bestBy returns the element of present that "wins" all pairwise calls
// to better(candidate, current).
func bestBy(present []int, better func(a, b int) bool) int {
	best := present[0]
	for _, i := range present[1:] {
		if better(i, best) {
			best = i
		}
	}
	return best
}
