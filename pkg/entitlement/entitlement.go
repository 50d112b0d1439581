// Package entitlement resolves a user's scoped approval/review/override
// grants and checks them against a specific check item, augmenting the
// coarse resource-level permission model in pkg/dispatch with amount,
// account-type, queue, risk, and business-line scoping.
package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// Store loads the entitlement rows a user may act under.
type Store interface {
	// ListForUser returns every ApprovalEntitlement granted directly to
	// userID or via one of roleIDs, for entType, tenant-scoped.
	ListForUser(ctx context.Context, tenantID, userID string, roleIDs []string, entType model.EntitlementType) ([]model.ApprovalEntitlement, error)
}

// Decision is the outcome of an entitlement check: either the first
// allowing entitlement (Allowed=true, Entitlement set) or a denial
// carrying every distinct reason collected across all candidates.
type Decision struct {
	Allowed     bool
	Entitlement *model.ApprovalEntitlement
	DenyReasons []string
}

// Checker evaluates ApprovalEntitlement scopes against a CheckItem.
type Checker struct {
	store Store
	now   func() time.Time
}

func NewChecker(store Store) *Checker {
	return &Checker{store: store, now: time.Now}
}

// CheckApproval collects entitlements, denies if none exist, and
// otherwise evaluate each in order and grant on the first that allows.
func (c *Checker) CheckApproval(ctx context.Context, user *model.User, item *model.CheckItem) (Decision, error) {
	return c.check(ctx, user, item, model.EntitlementApprove, false)
}

// CheckOverride mirrors CheckApproval for the override entitlement type.
func (c *Checker) CheckOverride(ctx context.Context, user *model.User, item *model.CheckItem) (Decision, error) {
	return c.check(ctx, user, item, model.EntitlementOverride, false)
}

// CheckReview mirrors CheckApproval for review, but falls back to
// default-allow when the user holds the check_item:review permission and
// no explicit entitlement exists. Review is the only type with this
// carve-out.
func (c *Checker) CheckReview(ctx context.Context, user *model.User, item *model.CheckItem) (Decision, error) {
	return c.check(ctx, user, item, model.EntitlementReview, user.HasPermission(model.PermCheckItemReview))
}

func (c *Checker) check(ctx context.Context, user *model.User, item *model.CheckItem, entType model.EntitlementType, defaultAllowOnEmpty bool) (Decision, error) {
	ents, err := c.store.ListForUser(ctx, user.TenantID, user.ID, user.RoleIDs, entType)
	if err != nil {
		return Decision{}, fmt.Errorf("entitlement: list: %w", err)
	}

	now := c.now()
	var active []model.ApprovalEntitlement
	for _, e := range ents {
		if !e.IsActive {
			continue
		}
		if e.EffectiveFrom.After(now) {
			continue
		}
		if e.EffectiveUntil != nil && !e.EffectiveUntil.After(now) {
			continue
		}
		active = append(active, e)
	}

	if len(active) == 0 {
		if defaultAllowOnEmpty {
			return Decision{Allowed: true}, nil
		}
		return Decision{DenyReasons: []string{"No approval entitlement found"}}, nil
	}

	seen := map[string]bool{}
	var reasons []string
	for i := range active {
		e := active[i]
		if reason, ok := evaluateScope(e, item); !ok {
			if !seen[reason] {
				seen[reason] = true
				reasons = append(reasons, reason)
			}
			continue
		}
		return Decision{Allowed: true, Entitlement: &e}, nil
	}
	return Decision{DenyReasons: reasons}, nil
}

// evaluateScope applies the ordered scope checks. ok=false
// returns the first failing reason for this entitlement.
func evaluateScope(e model.ApprovalEntitlement, item *model.CheckItem) (string, bool) {
	if e.MinAmount != nil && item.Amount < *e.MinAmount {
		return "Amount below entitlement minimum", false
	}
	if e.MaxAmount != nil && item.Amount > *e.MaxAmount {
		return "Amount exceeds entitlement maximum", false
	}
	if len(e.AllowedAccountTypes) > 0 && !containsAccountType(e.AllowedAccountTypes, item.AccountType) {
		return "Account type not covered by entitlement", false
	}
	if len(e.AllowedQueueIDs) > 0 {
		if item.QueueID == nil || !containsString(e.AllowedQueueIDs, *item.QueueID) {
			return "Queue not covered by entitlement", false
		}
	}
	if len(e.AllowedRiskLevels) > 0 && !containsRiskLevel(e.AllowedRiskLevels, item.RiskLevel) {
		return "Risk level not covered by entitlement", false
	}
	if e.TenantID != "" && e.TenantID != item.TenantID {
		return "Entitlement scoped to a different tenant", false
	}
	return "", true
}

func containsAccountType(list []model.AccountType, at model.AccountType) bool {
	for _, a := range list {
		if a == at {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsRiskLevel(list []model.RiskLevel, v model.RiskLevel) bool {
	for _, r := range list {
		if r == v {
			return true
		}
	}
	return false
}
