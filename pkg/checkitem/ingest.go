package checkitem

import (
	"context"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/advisory"
	"github.com/jmalloway/checksub001/pkg/model"
	"github.com/jmalloway/checksub001/pkg/policy"
)

// Store is the persistence surface Ingest needs beyond the provider.
type Store interface {
	// PriorCheckNumbers returns recently presented check numbers for
	// accountID, used for duplicate and out-of-sequence detection.
	PriorCheckNumbers(ctx context.Context, tenantID, accountID string) ([]string, error)
	// LoadPolicyContext returns every current policy version and its
	// owning policy for tenantID, for policy.Evaluate to select from.
	LoadPolicyContext(ctx context.Context, tenantID string) ([]model.PolicyVersion, map[string]model.Policy, error)
	// Upsert inserts or updates item keyed by (tenant_id, external_item_id).
	Upsert(ctx context.Context, item *model.CheckItem) error
}

// Service implements the presented-item ingest path.
type Service struct {
	provider        CheckItemProvider
	store           Store
	defaultSLAHours int
	now             func() time.Time
}

func NewService(provider CheckItemProvider, store Store, defaultSLAHours int) *Service {
	return &Service{provider: provider, store: store, defaultSLAHours: defaultSLAHours, now: time.Now}
}

// SyncResult summarizes one ingest pass.
type SyncResult struct {
	ItemsIngested int
	Errors        []error
}

// SyncPresentedItems implements sync_presented_items: pull from the
// provider, compute derived fields, apply the policy engine, set initial
// risk/routing/SLA fields, and upsert.
func (s *Service) SyncPresentedItems(ctx context.Context, tenantID string, amountMin model.Money) (SyncResult, error) {
	presented, err := s.provider.FetchPresentedItems(ctx, tenantID, amountMin)
	if err != nil {
		return SyncResult{}, fmt.Errorf("checkitem: fetch presented items: %w", err)
	}

	versions, policies, err := s.store.LoadPolicyContext(ctx, tenantID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("checkitem: load policy context: %w", err)
	}

	var result SyncResult
	for _, p := range presented {
		item, err := s.ingestOne(ctx, tenantID, p, versions, policies)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("checkitem: ingest %s: %w", p.ExternalItemID, err))
			continue
		}
		if err := s.store.Upsert(ctx, item); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("checkitem: upsert %s: %w", p.ExternalItemID, err))
			continue
		}
		result.ItemsIngested++
	}
	return result, nil
}

func (s *Service) ingestOne(ctx context.Context, tenantID string, p PresentedItem, versions []model.PolicyVersion, policies map[string]model.Policy) (*model.CheckItem, error) {
	accountCtx, err := s.provider.FetchAccountContext(ctx, tenantID, p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("fetch account context: %w", err)
	}

	prior, err := s.store.PriorCheckNumbers(ctx, tenantID, p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("prior check numbers: %w", err)
	}

	now := s.now().UTC()
	item := &model.CheckItem{
		TenantID:       tenantID,
		ExternalItemID: p.ExternalItemID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		AccountID:      p.AccountID,
		MaskedAccount:  p.MaskedAccount,
		RoutingNumber:  p.RoutingNumber,
		CheckNumber:    p.CheckNumber,
		PresentedDate:  p.PresentedDate,
		CheckDate:      p.CheckDate,
		MICRRaw:        p.MICRRaw,
		ItemType:       p.ItemType,
		AccountType:    p.AccountType,
		PayeeName:      p.PayeeName,
		Memo:           p.Memo,
		Status:         model.StatusNew,
		RiskLevel:      model.RiskLow,

		AccountTenureDays:      accountCtx.AccountTenureDays,
		CurrentBalance:         accountCtx.CurrentBalance,
		AverageBalance30d:      accountCtx.AverageBalance30d,
		AvgCheckAmount30d:      accountCtx.AvgCheckAmount30d,
		AvgCheckAmount90d:      accountCtx.AvgCheckAmount90d,
		AvgCheckAmount365d:     accountCtx.AvgCheckAmount365d,
		CheckStdDev30d:         accountCtx.CheckStdDev30d,
		MaxCheckAmount90d:      accountCtx.MaxCheckAmount90d,
		CheckFrequency30d:      accountCtx.CheckFrequency30d,
		CheckCount7d:           accountCtx.CheckCount7d,
		CheckCount14d:          accountCtx.CheckCount14d,
		TotalCheckAmount7d:     accountCtx.TotalCheckAmount7d,
		TotalCheckAmount14d:    accountCtx.TotalCheckAmount14d,
		ReturnedItemCount90d:   accountCtx.ReturnedItemCount90d,
		ExceptionCount90d:      accountCtx.ExceptionCount90d,
		OverdraftCount30d:      accountCtx.OverdraftCount30d,
		OverdraftCount90d:      accountCtx.OverdraftCount90d,
		NSFCount90d:            accountCtx.NSFCount90d,
		RelationshipTenureYrs:  accountCtx.RelationshipTenureYrs,
		IsPayrollAccount:       accountCtx.IsPayrollAccount,
		HasDirectDeposit:       accountCtx.HasDirectDeposit,
		DepositRegularityScore: accountCtx.DepositRegularityScore,
		SignatureMatchScore:    accountCtx.SignatureMatchScore,
		PriorReviewCount:       accountCtx.PriorReviewCount,
		PriorApprovalCount:     accountCtx.PriorApprovalCount,
		PriorRejectionCount:    accountCtx.PriorRejectionCount,

		CreatedAt: now,
		UpdatedAt: now,
	}

	applyDerivedFlags(item, prior, now)

	result, err := policy.Evaluate(item, versions, policies)
	if err != nil {
		return nil, fmt.Errorf("policy evaluate: %w", err)
	}
	item.PolicyVersionID = nonEmptyPtr(result.PolicyVersionID)
	item.RequiresDualControl = result.RequiresDualControl
	if result.RiskLevel != "" {
		item.RiskLevel = result.RiskLevel
	}
	item.QueueID = result.RoutingQueueID
	if result.RequiresDualControl {
		item.DualControlReason = "policy"
	}

	advisoryResult := advisory.Score(advisory.Input{
		CheckItemID:          p.ExternalItemID,
		Amount:               p.Amount.Float64(),
		AccountTenureDays:    accountCtx.AccountTenureDays,
		AvgCheckAmount30d:    moneyPtrToFloatPtr(accountCtx.AvgCheckAmount30d),
		AvgCheckAmount90d:    moneyPtrToFloatPtr(accountCtx.AvgCheckAmount90d),
		ReturnedItemCount90d: accountCtx.ReturnedItemCount90d,
		ExceptionCount90d:    accountCtx.ExceptionCount90d,
		CurrentBalance:       moneyPtrToFloatPtr(accountCtx.CurrentBalance),
		UpstreamFlags:        accountCtx.UpstreamFlags,
	}, now)
	item.AIRecommendation = string(advisoryResult.Recommendation)
	conf := advisoryResult.Confidence
	item.AIConfidence = &conf
	item.AIExplanation = advisoryResult.Explanation
	factorsJSON, err := marshalFactors(advisoryResult.RiskFactors)
	if err == nil {
		item.AIRiskFactors = factorsJSON
	}

	sla := p.PresentedDate.Add(time.Duration(s.defaultSLAHours) * time.Hour)
	item.SLADueAt = &sla
	item.SLABreached = now.After(sla)

	return item, nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func moneyPtrToFloatPtr(m *model.Money) *float64 {
	if m == nil {
		return nil
	}
	f := m.Float64()
	return &f
}
