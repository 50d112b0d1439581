package advisory

import "errors"

var (
	ErrAcknowledgedWithNoAnalysis = errors.New("advisory: ai_assisted marked true but no AI analysis was performed")
	ErrAnalysisNotAcknowledged    = errors.New("advisory: AI analysis was performed but not acknowledged")
	ErrFlagsNotReviewed           = errors.New("advisory: AI-generated flags must be reviewed before a decision")
)

// ValidateAcknowledgment enforces that a reviewer cannot submit a decision
// influenced by an AI analysis without explicitly acknowledging it and its
// flags. It never evaluates anything about the decision's correctness —
// only that the human-in-the-loop guardrail was actually exercised.
func ValidateAcknowledgment(aiAssisted bool, flagsReviewed []string, analysis *Result) error {
	if analysis == nil {
		if aiAssisted {
			return ErrAcknowledgedWithNoAnalysis
		}
		return nil
	}
	if !aiAssisted {
		return ErrAnalysisNotAcknowledged
	}
	if len(analysis.Flags) > 0 && len(flagsReviewed) == 0 {
		return ErrFlagsNotReviewed
	}
	return nil
}
