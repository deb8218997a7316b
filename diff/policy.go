package diff

import "context"

// Conflict is the record emitted to a Decider when the strategy for a
// path is Interactive. RelPath identifies the file; Entries holds one
// NodeEntry for each node that has the relpath, in node order; nodes
// without it are not listed.
type Conflict struct {
	RelPath string
	Entries []*NodeEntry
}

// NodeEntry pairs a node's index with the FileEntry it reported for a
// relpath.
type NodeEntry struct {
	Node  int
	Entry EntryView
}

// EntryView is the subset of syncr.FileEntry that diff needs, kept
// narrow so this package doesn't import syncr's scan-time concerns.
// orchestrate's adapter constructs these from syncr.FileEntry directly.
// Kind and Mode ride along unchanged from FileEntry so a resolved
// Decision carries enough to reconstruct the winning entry on another
// node without a second round trip back to the source's listing.
type EntryView struct {
	Kind    uint8
	Mode    uint32
	Size    int64
	MtimeNs int64
	Chunks  [][32]byte
}

// SameContent reports whether a and b address identical bytes. Kind
// participates: a regular file and a symlink at the same relpath are
// never the same content even if their chunk digests happened to
// coincide.
func (a EntryView) SameContent(b EntryView) bool {
	if a.Kind != b.Kind {
		return false
	}
	if len(a.Chunks) != len(b.Chunks) {
		return false
	}
	for i := range a.Chunks {
		if a.Chunks[i] != b.Chunks[i] {
			return false
		}
	}
	return true
}

// Decider resolves an Interactive conflict to a winning node index; a
// negative index skips the path. When Policy.Decide is nil, Interactive
// conflicts are skipped.
type Decider func(ctx context.Context, c Conflict) (winner int, err error)

// Policy configures one run's conflict resolution.
type Policy struct {
	// Strategy is used when no RuleSet rule (and no FixedNode) applies.
	Strategy Strategy

	// FixedNode, when non-nil, overrides Strategy: node *FixedNode
	// always wins a conflict, corresponding to the original
	// implementation's NodeByIndex variant.
	FixedNode *int

	// Rules, if non-nil, is consulted before Strategy: the first rule
	// whose glob matches RelPath supplies the Strategy for that path.
	Rules *RuleSet

	// Decide is consulted only for Interactive conflicts; Skip and the
	// other strategies never call it. A nil Decide makes Interactive
	// behave like Skip.
	Decide Decider

	// DeleteSync enables propagating absence (a node no longer having a
	// relpath another node has, with an older mtime) as a delete on the
	// other nodes. Disabled by default: without it, absence is always
	// treated as "needs a create" on the node missing the file.
	DeleteSync bool

	// DeleteCutoffNs is the per-run cutoff (§4.10): an absence is only
	// interpreted as an intentional delete if the remaining entry's
	// MtimeNs is < DeleteCutoffNs (the file predates the cutoff, so its
	// absence elsewhere is a deletion); an entry at or after the cutoff
	// is propagated instead. Zero disables the cutoff check (every
	// absence with DeleteSync on is a candidate delete).
	DeleteCutoffNs int64

	// MaxDeletes and MaxDeletePercent bound how many deletes one run may
	// apply; exceeding either aborts the run as Fatal (§4.10). Zero means
	// "no limit" for that bound; both zero means unlimited.
	MaxDeletes       int
	MaxDeletePercent float64
}

func (p Policy) strategyFor(relpath string) Strategy {
	if p.Rules != nil {
		if s, ok := p.Rules.Lookup(relpath); ok {
			return s
		}
	}
	if p.Strategy == Unspecified {
		return DefaultStrategy
	}
	return p.Strategy
}
