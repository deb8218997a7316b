package orchestrate

import "github.com/bobg/syncr/diff"

// nodePlan collects the relpaths a single node needs written or deleted,
// derived from Resolve's per-decision, per-node Actions (§4.9 phase 6).
// distribute and commitAll consume it directly; it exists mainly so a
// failed commit can be attributed back to the relpaths it covered.
type nodePlan struct {
	writes  []string
	deletes []string
}

func (p nodePlan) relpaths() []string {
	return append(append([]string{}, p.writes...), p.deletes...)
}

// buildPlans groups decisions by destination node.
func buildPlans(decisions []diff.Decision, numNodes int) []nodePlan {
	plans := make([]nodePlan, numNodes)
	for _, d := range decisions {
		for n, action := range d.Actions {
			switch action {
			case diff.Write:
				plans[n].writes = append(plans[n].writes, d.RelPath)
			case diff.Delete:
				plans[n].deletes = append(plans[n].deletes, d.RelPath)
			}
		}
	}
	return plans
}
