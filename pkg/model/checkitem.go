package model

import "time"

// ItemType distinguishes checks drawn on the processing institution's own
// customer (on_us) from checks drawn on a different institution (transit).
type ItemType string

const (
	ItemTypeOnUs    ItemType = "on_us"
	ItemTypeTransit ItemType = "transit"
)

// AccountType is a free-form, policy-relevant classification of the account
// the check is drawn against (checking, savings, money_market, ...).
type AccountType string

// RiskLevel is the item's current risk classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskSeverity orders risk levels so the policy engine can resolve
// multiple "set_risk_level" actions to the most severe one.
var riskSeverity = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// MoreSevere reports whether candidate is strictly more severe than current.
func MoreSevere(current, candidate RiskLevel) bool {
	return riskSeverity[candidate] > riskSeverity[current]
}

// Status is the CheckItem lifecycle state. See pkg/decision for the
// transition table.
type Status string

const (
	StatusNew                 Status = "new"
	StatusInReview            Status = "in_review"
	StatusPendingDualControl  Status = "pending_dual_control"
	StatusEscalated           Status = "escalated"
	StatusApproved            Status = "approved"
	StatusReturned            Status = "returned"
	StatusRejected            Status = "rejected"
	StatusClosed              Status = "closed"
)

// IsTerminal reports whether no further decision can be made on the item.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusReturned, StatusRejected, StatusClosed:
		return true
	default:
		return false
	}
}

// CheckItem is one presented check and its derived account-context
// snapshot. Identity is (TenantID, ExternalItemID).
type CheckItem struct {
	ID             string
	TenantID       string
	ExternalItemID string

	Amount         Money
	Currency       string
	AccountID      string
	MaskedAccount  string
	RoutingNumber  string
	CheckNumber    string
	PresentedDate  time.Time
	CheckDate      time.Time
	MICRRaw        string
	ItemType       ItemType
	AccountType    AccountType
	PayeeName      string
	Memo           string

	Status    Status
	RiskLevel RiskLevel

	// Derived account-context snapshot, computed at ingest (C10) and
	// consumed by the policy engine (C4) and advisory scorer (C5).
	AccountTenureDays      *int
	CurrentBalance         *Money
	AverageBalance30d      *Money
	AvgCheckAmount30d      *Money
	AvgCheckAmount90d      *Money
	AvgCheckAmount365d     *Money
	CheckStdDev30d         *float64
	MaxCheckAmount90d      *Money
	CheckFrequency30d      *float64
	CheckCount7d           *int
	CheckCount14d          *int
	TotalCheckAmount7d     *Money
	TotalCheckAmount14d    *Money
	ReturnedItemCount90d   *int
	ExceptionCount90d      *int
	OverdraftCount30d      *int
	OverdraftCount90d      *int
	NSFCount90d            *int
	RelationshipTenureYrs  *float64
	IsPayrollAccount       *bool
	HasDirectDeposit       *bool
	DepositRegularityScore *float64
	CheckNumberGap         *int
	IsDuplicateCheckNumber *bool
	IsOutOfSequence        *bool
	CheckAgeDays           *int
	IsStaleDated           *bool
	IsPostDated            *bool
	HasMICRAnomaly         *bool
	MICRConfidenceScore    *float64
	HasAlterationFlag      *bool
	// Optional, upstream-sourced-only image quality signal. Absent when
	// the provider has no scanner feedback for this item.
	SignatureMatchScore *float64

	PriorReviewCount    *int
	PriorApprovalCount  *int
	PriorRejectionCount *int

	// Advisory (AI) output, never authoritative. See pkg/advisory.
	AIRecommendation string
	AIConfidence     *float64
	AIExplanation    string
	AIRiskFactors    []byte // canonical JSON of []advisory.RiskFactor
	AIFlagsReviewed  []string

	AssignedReviewerID        *string
	AssignedApproverID        *string
	QueueID                   *string
	SLADueAt                  *time.Time
	SLABreached               bool
	RequiresDualControl       bool
	PendingDualControlDecID   *string
	DualControlReason         string
	PolicyVersionID           *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckImage references front/back image bytes held by the external image
// connector; CheckItem owns it (cascade delete).
type CheckImage struct {
	ID          string
	TenantID    string
	CheckItemID string
	Side        string // "front" | "back"
	StorageRef  string
	CreatedAt   time.Time
}
