package model

import "time"

// DecisionType distinguishes the two halves of dual control plus the
// supervisor override path.
type DecisionType string

const (
	DecisionTypeReviewRecommendation DecisionType = "review_recommendation"
	DecisionTypeApprovalDecision     DecisionType = "approval_decision"
	DecisionTypeOverride             DecisionType = "override"
)

// Action is what the reviewer/approver decided to do.
type Action string

const (
	ActionApprove       Action = "approve"
	ActionReturn        Action = "return"
	ActionReject        Action = "reject"
	ActionEscalate      Action = "escalate"
	ActionHold          Action = "hold"
	ActionNeedsMoreInfo Action = "needs_more_info"
)

// Decision is one immutable reviewer or approver action on an item.
type Decision struct {
	ID          string
	TenantID    string
	CheckItemID string

	DecisionType           DecisionType
	Action                 Action
	UserID                 string
	PreviousStatus         Status
	NewStatus              Status
	IsDualControlRequired  bool
	DualControlApproverID  *string
	Notes                  string
	ReasonCodes            []string
	AIAssisted             bool

	// EvidenceSnapshot is the sealed JSON document described in
	// pkg/evidenceseal. Immutable once written.
	EvidenceSnapshot []byte

	CreatedAt time.Time
}
