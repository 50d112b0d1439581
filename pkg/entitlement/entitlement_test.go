package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

type memStore struct {
	ents []model.ApprovalEntitlement
}

func (m *memStore) ListForUser(ctx context.Context, tenantID, userID string, roleIDs []string, entType model.EntitlementType) ([]model.ApprovalEntitlement, error) {
	var out []model.ApprovalEntitlement
	for _, e := range m.ents {
		if e.EntitlementType != entType || e.TenantID != tenantID {
			continue
		}
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
			continue
		}
		if e.RoleID != nil {
			for _, rid := range roleIDs {
				if rid == *e.RoleID {
					out = append(out, e)
					break
				}
			}
		}
	}
	return out, nil
}

func money(s string) *model.Money {
	m, err := model.NewMoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return &m
}

func approveEnt(userID string, mutate func(*model.ApprovalEntitlement)) model.ApprovalEntitlement {
	e := model.ApprovalEntitlement{
		ID: "e-" + userID, TenantID: "t1", UserID: &userID,
		EntitlementType: model.EntitlementApprove,
		IsActive:        true,
		EffectiveFrom:   time.Now().Add(-24 * time.Hour),
	}
	if mutate != nil {
		mutate(&e)
	}
	return e
}

func testItem() *model.CheckItem {
	q := "q1"
	return &model.CheckItem{
		ID: "item1", TenantID: "t1", Amount: model.Money(2500_00),
		AccountType: "checking", RiskLevel: model.RiskMedium, QueueID: &q,
	}
}

func testUser(id string, roleIDs ...string) *model.User {
	return &model.User{ID: id, TenantID: "t1", RoleIDs: roleIDs}
}

func TestCheckApproval_NoEntitlementDenies(t *testing.T) {
	c := NewChecker(&memStore{})
	dec, err := c.CheckApproval(context.Background(), testUser("u1"), testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected denial with no entitlements")
	}
	if len(dec.DenyReasons) != 1 || dec.DenyReasons[0] != "No approval entitlement found" {
		t.Fatalf("got reasons %v", dec.DenyReasons)
	}
}

func TestCheckApproval_AmountScope(t *testing.T) {
	store := &memStore{ents: []model.ApprovalEntitlement{
		approveEnt("u1", func(e *model.ApprovalEntitlement) {
			e.MinAmount = money("0.00")
			e.MaxAmount = money("1000.00")
		}),
	}}
	c := NewChecker(store)

	dec, err := c.CheckApproval(context.Background(), testUser("u1"), testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("2500.00 exceeds the 1000.00 cap; expected denial")
	}
	if dec.DenyReasons[0] != "Amount exceeds entitlement maximum" {
		t.Fatalf("got reasons %v", dec.DenyReasons)
	}
}

func TestCheckApproval_FirstAllowingEntitlementWins(t *testing.T) {
	store := &memStore{ents: []model.ApprovalEntitlement{
		approveEnt("u1", func(e *model.ApprovalEntitlement) {
			e.ID = "small"
			e.MaxAmount = money("100.00")
		}),
		approveEnt("u1", func(e *model.ApprovalEntitlement) {
			e.ID = "large"
			e.MaxAmount = money("100000.00")
		}),
	}}
	c := NewChecker(store)

	dec, err := c.CheckApproval(context.Background(), testUser("u1"), testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed || dec.Entitlement == nil || dec.Entitlement.ID != "large" {
		t.Fatalf("expected the large entitlement to grant, got %+v", dec)
	}
}

func TestCheckApproval_RoleGrantedEntitlement(t *testing.T) {
	roleID := "role-approvers"
	store := &memStore{ents: []model.ApprovalEntitlement{{
		ID: "e-role", TenantID: "t1", RoleID: &roleID,
		EntitlementType: model.EntitlementApprove,
		IsActive:        true, EffectiveFrom: time.Now().Add(-time.Hour),
	}}}
	c := NewChecker(store)

	dec, err := c.CheckApproval(context.Background(), testUser("u1", roleID), testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("role-granted entitlement must allow, got %v", dec.DenyReasons)
	}
}

func TestCheckApproval_ExpiredEntitlementIgnored(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	store := &memStore{ents: []model.ApprovalEntitlement{
		approveEnt("u1", func(e *model.ApprovalEntitlement) {
			e.EffectiveUntil = &past
		}),
	}}
	c := NewChecker(store)

	dec, err := c.CheckApproval(context.Background(), testUser("u1"), testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expired entitlement must not grant")
	}
}

func TestCheckApproval_ScopeDenialsAggregateDistinctReasons(t *testing.T) {
	store := &memStore{ents: []model.ApprovalEntitlement{
		approveEnt("u1", func(e *model.ApprovalEntitlement) {
			e.ID = "a"
			e.MaxAmount = money("100.00")
		}),
		approveEnt("u1", func(e *model.ApprovalEntitlement) {
			e.ID = "b"
			e.MaxAmount = money("200.00")
		}),
		approveEnt("u1", func(e *model.ApprovalEntitlement) {
			e.ID = "c"
			e.AllowedRiskLevels = []model.RiskLevel{model.RiskLow}
		}),
	}}
	c := NewChecker(store)

	dec, err := c.CheckApproval(context.Background(), testUser("u1"), testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected denial")
	}
	if len(dec.DenyReasons) != 2 {
		t.Fatalf("expected two distinct reasons, got %v", dec.DenyReasons)
	}
}

func TestCheckReview_DefaultAllowWithPermission(t *testing.T) {
	c := NewChecker(&memStore{})
	u := testUser("u1")
	u.Roles = []model.Role{{ID: "r", Name: "reviewer", Permissions: []model.Permission{model.PermCheckItemReview}}}

	dec, err := c.CheckReview(context.Background(), u, testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("review must default-allow for holders of check_item:review")
	}
}

func TestCheckOverride_NeverDefaultAllows(t *testing.T) {
	c := NewChecker(&memStore{})
	u := testUser("u1")
	u.IsSuperuser = true // even a superuser needs an explicit override grant

	dec, err := c.CheckOverride(context.Background(), u, testItem())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("override must require an explicit entitlement")
	}
}
