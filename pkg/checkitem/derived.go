package checkitem

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/jmalloway/checksub001/pkg/advisory"
	"github.com/jmalloway/checksub001/pkg/model"
)

// applyDerivedFlags fills the ingest-time-only derived fields that depend
// on the item's own check number and dates rather than account-context
// statistics: duplicate/out-of-sequence check numbers, staleness, and
// post-dating.
func applyDerivedFlags(item *model.CheckItem, priorCheckNumbers []string, now time.Time) {
	isDup := containsString(priorCheckNumbers, item.CheckNumber)
	item.IsDuplicateCheckNumber = &isDup

	if gap, ok := checkNumberGap(item.CheckNumber, priorCheckNumbers); ok {
		item.CheckNumberGap = &gap
		outOfSeq := gap < 0
		item.IsOutOfSequence = &outOfSeq
	}

	ageDays := int(now.Sub(item.CheckDate).Hours() / 24)
	item.CheckAgeDays = &ageDays
	stale := ageDays > 180
	item.IsStaleDated = &stale
	postDated := item.CheckDate.After(now)
	item.IsPostDated = &postDated
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// checkNumberGap computes the signed distance between the current check
// number and the highest previously seen one, for duplicate/sequence-gap
// policy conditions. Non-numeric check numbers yield (0, false).
func checkNumberGap(current string, prior []string) (int, bool) {
	cur, err := strconv.Atoi(current)
	if err != nil {
		return 0, false
	}
	max := 0
	found := false
	for _, p := range prior {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		if n > max {
			max = n
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return cur - max, true
}

func marshalFactors(factors []advisory.RiskFactor) ([]byte, error) {
	return json.Marshal(factors)
}
