// Package diff implements the cross-node comparison and conflict
// resolution phase of a sync run (§4.10): for every relpath seen on any
// node it decides whether to skip, propagate, delete, or resolve a
// conflict among the differing versions.
package diff

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Strategy selects how a conflict (present on multiple nodes with
// differing chunks) is resolved. The zero value, Unspecified, is not a
// real strategy: a Policy with Strategy left unset resolves conflicts
// with DefaultStrategy instead.
type Strategy int

const (
	Unspecified Strategy = iota
	PreferFirst
	PreferLast
	PreferNewest
	PreferOldest
	PreferLargest
	PreferSmallest
	Interactive
	FailOnConflict
	Skip
)

// DefaultStrategy is PreferNewest, per §4.10.
const DefaultStrategy = PreferNewest

func (s Strategy) String() string {
	switch s {
	case Unspecified:
		return "unspecified"
	case PreferFirst:
		return "prefer-first"
	case PreferLast:
		return "prefer-last"
	case PreferNewest:
		return "prefer-newest"
	case PreferOldest:
		return "prefer-oldest"
	case PreferLargest:
		return "prefer-largest"
	case PreferSmallest:
		return "prefer-smallest"
	case Interactive:
		return "interactive"
	case FailOnConflict:
		return "fail"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// NodeIndex is a Strategy variant that always resolves a conflict to a
// fixed node, by position among the nodes passed to a sync run. Unlike
// the named Strategy constants it carries data, so it is represented as
// its own type rather than as a Strategy value; Resolve takes the fixed
// node through the Policy.FixedNode field (a *int) instead of widening
// Strategy to an enum.
type NodeIndex int

// ParseStrategy parses the --conflict flag syntax from §6, matching the
// names accepted by the original implementation's FromStr.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "first", "prefer-first":
		return PreferFirst, nil
	case "last", "prefer-last":
		return PreferLast, nil
	case "newest", "prefer-newest":
		return PreferNewest, nil
	case "oldest", "prefer-oldest":
		return PreferOldest, nil
	case "largest", "prefer-largest":
		return PreferLargest, nil
	case "smallest", "prefer-smallest":
		return PreferSmallest, nil
	case "interactive", "ask":
		return Interactive, nil
	case "fail", "error":
		return FailOnConflict, nil
	case "skip":
		return Skip, nil
	default:
		return 0, errors.Errorf("diff: unknown conflict strategy %q", s)
	}
}

// ParseStrategyOrNode is like ParseStrategy but also accepts "node:<n>",
// returning ok=true and the parsed index when s names a fixed node.
func ParseStrategyOrNode(s string) (strat Strategy, nodeIdx int, isNode bool, err error) {
	if rest, ok := cutPrefix(s, "node:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return 0, 0, false, errors.Errorf("diff: node selector %q is not numeric; by-name node selectors are not supported", s)
		}
		return 0, n, true, nil
	}
	strat, err = ParseStrategy(s)
	return strat, 0, false, err
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
