package decision

import (
	"fmt"
	"sort"

	"github.com/jmalloway/checksub001/pkg/evidenceseal"
	"github.com/jmalloway/checksub001/pkg/model"
)

// VerifyItemChain verifies the evidence chain across an item's decisions
// for one check item: decisions are ordered by CreatedAt and each
// snapshot's previous_evidence_hash must equal its predecessor's
// evidence_hash, with the first decision's previous_evidence_hash nil.
func VerifyItemChain(decisions []model.Decision) (valid bool, brokenDecisionID string, err error) {
	ordered := make([]model.Decision, len(decisions))
	copy(ordered, decisions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	snapshots := make([]*evidenceseal.Snapshot, 0, len(ordered))
	for _, d := range ordered {
		s, uerr := evidenceseal.Unmarshal(d.EvidenceSnapshot)
		if uerr != nil {
			return false, d.ID, fmt.Errorf("decision: unmarshal snapshot for %s: %w", d.ID, uerr)
		}
		snapshots = append(snapshots, s)
	}

	ok, brokenIdx := evidenceseal.VerifyChain(snapshots)
	if ok {
		return true, "", nil
	}
	return false, ordered[brokenIdx].ID, nil
}
