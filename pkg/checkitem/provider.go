// Package checkitem implements check-item ingest from the external
// core-banking feed, the derived account-context computation that feeds
// the policy engine and advisory scorer, and the tenant-scoped read paths
// (filtered list, pagination, adjacent-item navigation).
package checkitem

import (
	"context"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// PresentedItem is what the external core-banking feed hands back for one
// presented check, before any derived field has been computed.
type PresentedItem struct {
	ExternalItemID string
	Amount         model.Money
	Currency       string
	AccountID      string
	MaskedAccount  string
	RoutingNumber  string
	CheckNumber    string
	PresentedDate  time.Time
	CheckDate      time.Time
	MICRRaw        string
	ItemType       model.ItemType
	AccountType    model.AccountType
	PayeeName      string
	Memo           string
}

// AccountContext is the behavioral/statistical snapshot the provider
// supplies for the account a presented item is drawn against. Every field
// is optional: an upstream feed with no signal for a metric omits it, and
// the policy engine and advisory scorer both treat absence as NULL rather
// than zero.
type AccountContext struct {
	AccountTenureDays      *int
	CurrentBalance         *model.Money
	AverageBalance30d      *model.Money
	AvgCheckAmount30d      *model.Money
	AvgCheckAmount90d      *model.Money
	AvgCheckAmount365d     *model.Money
	CheckStdDev30d         *float64
	MaxCheckAmount90d      *model.Money
	CheckFrequency30d      *float64
	CheckCount7d           *int
	CheckCount14d          *int
	TotalCheckAmount7d     *model.Money
	TotalCheckAmount14d    *model.Money
	ReturnedItemCount90d   *int
	ExceptionCount90d      *int
	OverdraftCount30d      *int
	OverdraftCount90d      *int
	NSFCount90d            *int
	RelationshipTenureYrs  *float64
	IsPayrollAccount       *bool
	HasDirectDeposit       *bool
	DepositRegularityScore *float64
	SignatureMatchScore    *float64
	UpstreamFlags          []string
	PriorReviewCount       *int
	PriorApprovalCount     *int
	PriorRejectionCount    *int
}

// CheckItemProvider is the opaque capability interface over the external
// core-banking feed, swappable at startup between a real adapter and a
// demo/fake one; this package never assumes which.
type CheckItemProvider interface {
	// FetchPresentedItems lists items presented on or after the given
	// amount_min filter for tenantID.
	FetchPresentedItems(ctx context.Context, tenantID string, amountMin model.Money) ([]PresentedItem, error)
	// FetchAccountContext returns the behavioral snapshot for accountID,
	// or an AccountContext with every field nil if the feed has none.
	FetchAccountContext(ctx context.Context, tenantID, accountID string) (AccountContext, error)
}
