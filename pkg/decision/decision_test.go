package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/entitlement"
	"github.com/jmalloway/checksub001/pkg/evidenceseal"
	"github.com/jmalloway/checksub001/pkg/model"
)

// fakeAuditStore is an in-memory audit.Store shared between the in-tx
// chained writes and the out-of-tx failure writes.
type fakeAuditStore struct {
	mu   sync.Mutex
	rows []*model.AuditLog
}

func (f *fakeAuditStore) LatestHash(ctx context.Context, tenantID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		r := f.rows[i]
		if r.TenantID != nil && *r.TenantID == tenantID {
			return r.IntegrityHash, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeAuditStore) Append(ctx context.Context, row *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeAuditStore) actions() []model.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AuditAction, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Action
	}
	return out
}

// fakeTxStore backs one tenant's items and decisions; WithTx simulates
// rollback by snapshotting state before fn and restoring it on error.
type fakeTxStore struct {
	mu        sync.Mutex
	items     map[string]*model.CheckItem
	decisions []*model.Decision
	audits    *fakeAuditStore
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{items: map[string]*model.CheckItem{}, audits: &fakeAuditStore{}}
}

func (f *fakeTxStore) WithTx(ctx context.Context, tenantID string, fn func(TxStore) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	itemsBackup := map[string]*model.CheckItem{}
	for k, v := range f.items {
		copied := *v
		itemsBackup[k] = &copied
	}
	decisionsBackup := len(f.decisions)
	auditBackup := len(f.audits.rows)

	if err := fn((*fakeTx)(f)); err != nil {
		f.items = itemsBackup
		f.decisions = f.decisions[:decisionsBackup]
		f.audits.rows = f.audits.rows[:auditBackup]
		return err
	}
	return nil
}

type fakeTx fakeTxStore

func (f *fakeTx) GetItemForUpdate(ctx context.Context, itemID string) (*model.CheckItem, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (f *fakeTx) LatestDecision(ctx context.Context, itemID string) (*model.Decision, error) {
	for i := len(f.decisions) - 1; i >= 0; i-- {
		if f.decisions[i].CheckItemID == itemID {
			return f.decisions[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTx) GetDecision(ctx context.Context, decisionID string) (*model.Decision, error) {
	for _, d := range f.decisions {
		if d.ID == decisionID {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeTx) InsertDecision(ctx context.Context, d *model.Decision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeTx) UpdateItem(ctx context.Context, item *model.CheckItem) error {
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeTx) AuditStore() audit.Store {
	return f.audits
}

// fakeEntitlementStore grants approve entitlements to the listed users.
type fakeEntitlementStore struct {
	approvers map[string]bool
}

func (f *fakeEntitlementStore) ListForUser(ctx context.Context, tenantID, userID string, roleIDs []string, entType model.EntitlementType) ([]model.ApprovalEntitlement, error) {
	if entType == model.EntitlementApprove && f.approvers[userID] {
		return []model.ApprovalEntitlement{{
			ID: "ent-" + userID, TenantID: tenantID, UserID: &userID,
			EntitlementType: model.EntitlementApprove,
			IsActive:        true, EffectiveFrom: time.Now().Add(-time.Hour),
		}}, nil
	}
	return nil, nil
}

func newTestService(store *fakeTxStore, approvers ...string) (*Service, *fakeAuditStore) {
	grants := map[string]bool{}
	for _, a := range approvers {
		grants[a] = true
	}
	failureAudit := store.audits
	svc := NewService(store, entitlement.NewChecker(&fakeEntitlementStore{approvers: grants}),
		audit.NewService(failureAudit), model.Money(5000_00))
	return svc, failureAudit
}

func reviewer(id string) *model.User {
	return &model.User{
		ID: id, TenantID: "t1", Username: id, IsActive: true,
		Roles: []model.Role{{ID: "r1", Name: "reviewer", Permissions: []model.Permission{
			model.PermCheckItemView, model.PermCheckItemReview, model.PermCheckItemDecide,
		}}},
	}
}

func seedItem(store *fakeTxStore, id string, amount model.Money, dualControl bool) {
	store.items[id] = &model.CheckItem{
		ID: id, TenantID: "t1", ExternalItemID: "ext-" + id,
		Amount: amount, Currency: "USD", Status: model.StatusNew,
		RiskLevel: model.RiskLow, RequiresDualControl: dualControl,
	}
}

func TestDecide_SimpleApprovalNoDualControl(t *testing.T) {
	store := newFakeTxStore()
	svc, audits := newTestService(store)
	seedItem(store, "item1", model.Money(500_00), false)

	dec, item, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u1"),
		Action: model.ActionApprove, ReasonCodes: []string{"verified"},
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.DecisionType != model.DecisionTypeApprovalDecision {
		t.Fatalf("expected approval_decision, got %s", dec.DecisionType)
	}
	if item.Status != model.StatusApproved {
		t.Fatalf("expected approved, got %s", item.Status)
	}

	snap, err := evidenceseal.Unmarshal(dec.EvidenceSnapshot)
	if err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.PreviousEvidenceHash != nil {
		t.Fatalf("first decision must have a nil previous_evidence_hash")
	}
	if ok, _ := evidenceseal.Verify(snap); !ok {
		t.Fatalf("snapshot failed verification")
	}

	found := false
	for _, a := range audits.actions() {
		if a == model.AuditDecisionMade {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a DECISION_MADE audit entry, got %v", audits.actions())
	}
}

func TestDecide_DualControlByAmount(t *testing.T) {
	store := newFakeTxStore()
	svc, _ := newTestService(store, "u2")
	seedItem(store, "item1", model.Money(10_000_00), false)

	// First decision: review recommendation, item parks in
	// pending_dual_control.
	rec, item, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u1"),
		Action: model.ActionApprove,
	})
	if err != nil {
		t.Fatalf("review step: %v", err)
	}
	if rec.DecisionType != model.DecisionTypeReviewRecommendation {
		t.Fatalf("expected review_recommendation, got %s", rec.DecisionType)
	}
	if item.Status != model.StatusPendingDualControl {
		t.Fatalf("expected pending_dual_control, got %s", item.Status)
	}
	if item.PendingDualControlDecID == nil || *item.PendingDualControlDecID != rec.ID {
		t.Fatalf("expected pending decision pointer to the recommendation")
	}

	// Second, distinct approver finalizes.
	final, item, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u2"),
		Action: model.ActionApprove,
	})
	if err != nil {
		t.Fatalf("approval step: %v", err)
	}
	if final.DecisionType != model.DecisionTypeApprovalDecision {
		t.Fatalf("expected approval_decision, got %s", final.DecisionType)
	}
	if item.Status != model.StatusApproved {
		t.Fatalf("expected approved, got %s", item.Status)
	}

	// The second snapshot chains to the first.
	firstSnap, _ := evidenceseal.Unmarshal(rec.EvidenceSnapshot)
	secondSnap, _ := evidenceseal.Unmarshal(final.EvidenceSnapshot)
	if secondSnap.PreviousEvidenceHash == nil || *secondSnap.PreviousEvidenceHash != firstSnap.EvidenceHash {
		t.Fatalf("second decision must chain to the first's evidence hash")
	}
	if ok, broken := evidenceseal.VerifyChain([]*evidenceseal.Snapshot{firstSnap, secondSnap}); !ok {
		t.Fatalf("chain verification failed at %d", broken)
	}
}

func TestDecide_SelfApprovalDenied(t *testing.T) {
	store := newFakeTxStore()
	svc, audits := newTestService(store, "u1")
	seedItem(store, "item1", model.Money(10_000_00), false)

	if _, _, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u1"),
		Action: model.ActionApprove,
	}); err != nil {
		t.Fatalf("review step: %v", err)
	}

	decisionsBefore := len(store.decisions)
	_, _, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u1"),
		Action: model.ActionApprove,
	})
	if !errors.Is(err, ErrSelfApproval) {
		t.Fatalf("expected ErrSelfApproval, got %v", err)
	}
	if len(store.decisions) != decisionsBefore {
		t.Fatalf("no decision row may be written on a rejected self-approval")
	}
	if store.items["item1"].Status != model.StatusPendingDualControl {
		t.Fatalf("item must stay pending_dual_control after the rejected attempt")
	}

	foundFailure := false
	for _, a := range audits.actions() {
		if a == model.AuditDecisionFailed {
			foundFailure = true
		}
	}
	if !foundFailure {
		t.Fatalf("expected a DECISION_FAILED audit entry, got %v", audits.actions())
	}
}

func TestDecide_InvalidTransitionOnTerminalItem(t *testing.T) {
	store := newFakeTxStore()
	svc, _ := newTestService(store)
	seedItem(store, "item1", model.Money(100_00), false)
	store.items["item1"].Status = model.StatusApproved

	_, _, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u1"),
		Action: model.ActionReject,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDecide_AIAssistedRequiresFlagAcknowledgment(t *testing.T) {
	store := newFakeTxStore()
	svc, _ := newTestService(store)
	seedItem(store, "item1", model.Money(100_00), false)

	_, _, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u1"),
		Action: model.ActionApprove, AIAssisted: true, // no analysis attached
	})
	if !errors.Is(err, ErrAIFlagsUnreviewed) {
		t.Fatalf("expected ErrAIFlagsUnreviewed, got %v", err)
	}
}

func TestOverride_RequiresJustification(t *testing.T) {
	store := newFakeTxStore()
	svc, _ := newTestService(store)
	seedItem(store, "item1", model.Money(100_00), false)

	_, _, err := svc.Override(context.Background(), OverrideRequest{
		TenantID: "t1", CheckItemID: "item1", DecisionID: "whatever",
		User: reviewer("u1"), NewAction: model.ActionReturn,
	})
	if !errors.Is(err, ErrJustificationRequired) {
		t.Fatalf("expected ErrJustificationRequired, got %v", err)
	}
}

func TestOverride_ReversesFinalizedDecision(t *testing.T) {
	store := newFakeTxStore()
	grants := map[string]bool{"u3": true}
	entStore := &fakeEntitlementStore{approvers: grants}
	svc := NewService(store, entitlement.NewChecker(&overrideGrantStore{entStore}), audit.NewService(store.audits), model.Money(5000_00))
	seedItem(store, "item1", model.Money(100_00), false)

	first, _, err := svc.Decide(context.Background(), Request{
		TenantID: "t1", CheckItemID: "item1", User: reviewer("u1"),
		Action: model.ActionApprove,
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}

	over, item, err := svc.Override(context.Background(), OverrideRequest{
		TenantID: "t1", CheckItemID: "item1", DecisionID: first.ID,
		User: reviewer("u3"), NewAction: model.ActionReturn,
		Justification: "customer dispute upheld",
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if over.DecisionType != model.DecisionTypeOverride {
		t.Fatalf("expected override decision type, got %s", over.DecisionType)
	}
	if item.Status != model.StatusReturned {
		t.Fatalf("expected returned, got %s", item.Status)
	}

	firstSnap, _ := evidenceseal.Unmarshal(first.EvidenceSnapshot)
	overSnap, _ := evidenceseal.Unmarshal(over.EvidenceSnapshot)
	if overSnap.PreviousEvidenceHash == nil || *overSnap.PreviousEvidenceHash != firstSnap.EvidenceHash {
		t.Fatalf("override snapshot must chain to the overridden decision")
	}
}

// overrideGrantStore adapts fakeEntitlementStore's approve grants into
// override grants.
type overrideGrantStore struct {
	inner *fakeEntitlementStore
}

func (o *overrideGrantStore) ListForUser(ctx context.Context, tenantID, userID string, roleIDs []string, entType model.EntitlementType) ([]model.ApprovalEntitlement, error) {
	if entType == model.EntitlementOverride && o.inner.approvers[userID] {
		return []model.ApprovalEntitlement{{
			ID: "ovr-" + userID, TenantID: tenantID, UserID: &userID,
			EntitlementType: model.EntitlementOverride,
			IsActive:        true, EffectiveFrom: time.Now().Add(-time.Hour),
		}}, nil
	}
	return o.inner.ListForUser(ctx, tenantID, userID, roleIDs, entType)
}
