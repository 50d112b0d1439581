// Package decision implements the dual-control workflow state machine and
// its write-ordering procedure: re-read under lock, validate
// the transition, check entitlement, validate the AI guardrail, seal
// evidence, write the Decision, update the item, and append a chained
// audit row — all inside one transaction, with a separate non-chained
// DECISION_FAILED audit write on any rollback.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/advisory"
	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/entitlement"
	"github.com/jmalloway/checksub001/pkg/evidenceseal"
	"github.com/jmalloway/checksub001/pkg/model"
)

var (
	ErrInvalidTransition = errors.New("decision: invalid state transition")
	ErrSelfApproval      = errors.New("decision: self-approval denied")
	ErrEntitlementDenied = errors.New("decision: entitlement denied")
	ErrAIFlagsUnreviewed = errors.New("decision: AI flags not acknowledged")
	ErrItemNotFound      = errors.New("decision: item not found")
)

// TxStore is the persistence surface available inside one decision
// transaction, already bound to the request's tenant.
type TxStore interface {
	// GetItemForUpdate re-reads item within the transaction under a
	// row-level lock (SELECT ... FOR UPDATE), serializing concurrent
	// decisions on the same item.
	GetItemForUpdate(ctx context.Context, itemID string) (*model.CheckItem, error)
	// LatestDecision returns the most recent Decision for itemID ordered
	// by created_at DESC, or nil if none exists yet.
	LatestDecision(ctx context.Context, itemID string) (*model.Decision, error)
	GetDecision(ctx context.Context, decisionID string) (*model.Decision, error)
	InsertDecision(ctx context.Context, d *model.Decision) error
	UpdateItem(ctx context.Context, item *model.CheckItem) error
	// AuditStore exposes the audit hash-chain store bound to this same
	// transaction, so the chained AuditLog insert in step (h) commits or
	// rolls back atomically with the rest of the decision write.
	AuditStore() audit.Store
}

// Store runs a decision inside a per-tenant, per-item-locked transaction.
type Store interface {
	WithTx(ctx context.Context, tenantID string, fn func(TxStore) error) error
}

// Service orchestrates the decision workflow.
type Service struct {
	store          Store
	entitlements   *entitlement.Checker
	failureAudit   *audit.Service // writes DECISION_FAILED outside the aborted transaction
	dualControlMin model.Money
	now            func() time.Time
}

func NewService(store Store, entitlements *entitlement.Checker, failureAudit *audit.Service, dualControlMin model.Money) *Service {
	return &Service{
		store:          store,
		entitlements:   entitlements,
		failureAudit:   failureAudit,
		dualControlMin: dualControlMin,
		now:            time.Now,
	}
}

// Request is the input to Decide: a reviewer or approver acting on an item.
type Request struct {
	TenantID        string
	CheckItemID     string
	User            *model.User
	IPAddress       string
	UserAgent       string
	SessionID       *string
	Action          model.Action
	Notes           string
	ReasonCodes     []string
	AIAssisted      bool
	AIFlagsReviewed []string
	AIAnalysis      *advisory.Result // nil when no inference ran for this item
	AdvisoryRef     string
	ItemSnapshot    map[string]any // caller-supplied snapshot of current key attributes
	PolicyVersionID string
	RulesTriggered  []string
}

// Decide runs the full write-ordering procedure. On any
// failure it rolls back the main transaction and, separately, writes a
// DECISION_FAILED audit entry so failures are never silently dropped.
func (s *Service) Decide(ctx context.Context, req Request) (*model.Decision, *model.CheckItem, error) {
	var resultDecision *model.Decision
	var resultItem *model.CheckItem

	txErr := s.store.WithTx(ctx, req.TenantID, func(tx TxStore) error {
		item, err := tx.GetItemForUpdate(ctx, req.CheckItemID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrItemNotFound, err)
		}
		if item == nil {
			return ErrItemNotFound
		}

		requiresDualControl := item.RequiresDualControl || item.Amount >= s.dualControlMin
		isReviewStep := requiresDualControl && item.Status != model.StatusPendingDualControl
		newStatus, ok := nextStatusForAction(req.Action, isReviewStep)
		if !ok {
			return ErrInvalidTransition
		}
		// Deciding on a fresh item implicitly passes it through in_review:
		// the reviewer opening and acting on a new item is the review.
		from := item.Status
		if from == model.StatusNew {
			from = model.StatusInReview
		}
		if !CanTransition(from, newStatus) {
			return ErrInvalidTransition
		}

		decisionType := model.DecisionTypeApprovalDecision
		if isReviewStep {
			decisionType = model.DecisionTypeReviewRecommendation
		}

		if decisionType == model.DecisionTypeApprovalDecision && requiresDualControl {
			// This is the second half of a dual-control pair: the reviewer
			// who made the recommendation must not be the approver.
			if item.PendingDualControlDecID != nil {
				rec, err := tx.GetDecision(ctx, *item.PendingDualControlDecID)
				if err != nil {
					return fmt.Errorf("decision: load pending recommendation: %w", err)
				}
				if rec != nil && rec.UserID == req.User.ID {
					return ErrSelfApproval
				}
			}
			dec, err := s.entitlements.CheckApproval(ctx, req.User, item)
			if err != nil {
				return err
			}
			if !dec.Allowed {
				return fmt.Errorf("%w: %v", ErrEntitlementDenied, dec.DenyReasons)
			}
		} else {
			dec, err := s.entitlements.CheckReview(ctx, req.User, item)
			if err != nil {
				return err
			}
			if !dec.Allowed {
				return fmt.Errorf("%w: %v", ErrEntitlementDenied, dec.DenyReasons)
			}
		}

		if err := advisory.ValidateAcknowledgment(req.AIAssisted, req.AIFlagsReviewed, req.AIAnalysis); err != nil {
			return fmt.Errorf("%w: %v", ErrAIFlagsUnreviewed, err)
		}

		prevDecision, err := tx.LatestDecision(ctx, req.CheckItemID)
		if err != nil {
			return fmt.Errorf("decision: latest decision: %w", err)
		}
		var prevHash *string
		if prevDecision != nil {
			snap, err := evidenceseal.Unmarshal(prevDecision.EvidenceSnapshot)
			if err != nil {
				return fmt.Errorf("decision: unmarshal prior snapshot: %w", err)
			}
			prevHash = &snap.EvidenceHash
		}

		now := s.now().UTC()
		sealed, err := evidenceseal.Seal(evidenceseal.Input{
			ItemSnapshot:    req.ItemSnapshot,
			PolicyVersionID: req.PolicyVersionID,
			RulesTriggered:  req.RulesTriggered,
			AdvisoryRef:     req.AdvisoryRef,
			ReviewerNotes:   req.Notes,
			ReasonCodes:     req.ReasonCodes,
			PreviousHash:    prevHash,
		}, now)
		if err != nil {
			return fmt.Errorf("decision: seal: %w", err)
		}
		sealedJSON, err := evidenceseal.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("decision: marshal seal: %w", err)
		}

		dec := &model.Decision{
			ID:                    uuid.NewString(),
			TenantID:              req.TenantID,
			CheckItemID:           req.CheckItemID,
			DecisionType:          decisionType,
			Action:                req.Action,
			UserID:                req.User.ID,
			PreviousStatus:        item.Status,
			NewStatus:             newStatus,
			IsDualControlRequired: requiresDualControl,
			Notes:                 req.Notes,
			ReasonCodes:           req.ReasonCodes,
			AIAssisted:            req.AIAssisted,
			EvidenceSnapshot:      sealedJSON,
			CreatedAt:             now,
		}
		if decisionType == model.DecisionTypeApprovalDecision && item.PendingDualControlDecID != nil {
			dec.DualControlApproverID = &req.User.ID
		}

		if err := tx.InsertDecision(ctx, dec); err != nil {
			return fmt.Errorf("decision: insert: %w", err)
		}

		item.Status = newStatus
		item.UpdatedAt = now
		if isReviewStep {
			item.PendingDualControlDecID = &dec.ID
			item.RequiresDualControl = true
		} else if newStatus.IsTerminal() {
			item.PendingDualControlDecID = nil
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("decision: update item: %w", err)
		}

		auditAction := model.AuditDecisionMade
		if isReviewStep {
			auditAction = model.AuditDualControlPending
		} else if requiresDualControl {
			auditAction = model.AuditDualControlApproved
		}
		auditSvc := audit.NewService(tx.AuditStore())
		if _, err := auditSvc.Log(ctx, audit.Entry{
			TenantID:     &req.TenantID,
			UserID:       &req.User.ID,
			Username:     req.User.Username,
			IPAddress:    req.IPAddress,
			UserAgent:    req.UserAgent,
			Action:       auditAction,
			ResourceType: "check_item",
			ResourceID:   req.CheckItemID,
			Description:  fmt.Sprintf("decision %s on item moved %s -> %s", req.Action, dec.PreviousStatus, dec.NewStatus),
			Before:       map[string]any{"status": dec.PreviousStatus},
			After:        map[string]any{"status": dec.NewStatus, "decision_id": dec.ID},
			SessionID:    req.SessionID,
		}); err != nil {
			return fmt.Errorf("decision: audit: %w", err)
		}

		resultDecision = dec
		resultItem = item
		return nil
	})

	if txErr != nil {
		s.recordFailure(ctx, req, txErr)
		return nil, nil, txErr
	}
	return resultDecision, resultItem, nil
}

// recordFailure writes a DECISION_FAILED audit entry in a transaction
// separate from the (already rolled back) decision transaction, so a
// failed decision is recorded even though its own transaction aborted.
func (s *Service) recordFailure(ctx context.Context, req Request, cause error) {
	if s.failureAudit == nil {
		return
	}
	tenantID := req.TenantID
	var userID *string
	var username string
	if req.User != nil {
		userID = &req.User.ID
		username = req.User.Username
	}
	_, _ = s.failureAudit.Log(ctx, audit.Entry{
		TenantID:     &tenantID,
		UserID:       userID,
		Username:     username,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Action:       model.AuditDecisionFailed,
		ResourceType: "check_item",
		ResourceID:   req.CheckItemID,
		Description:  cause.Error(),
		SessionID:    req.SessionID,
	})
}
