package decision

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/evidenceseal"
	"github.com/jmalloway/checksub001/pkg/model"
)

var ErrJustificationRequired = errors.New("decision: override requires a justification")

// OverrideRequest is a supervisor's reversal of a prior decision. It always
// requires override entitlement (never falls back to role-based default
// allow) and a non-empty justification.
type OverrideRequest struct {
	TenantID        string
	CheckItemID     string
	DecisionID      string // the decision being overridden
	User            *model.User
	NewAction       model.Action
	Justification   string
	IPAddress       string
	UserAgent       string
	SessionID       *string
	ItemSnapshot    map[string]any
}

// Override implements the supervisor-override path referenced by
// POST /decisions/{id}/override: it is recorded as decision_type=override,
// chained to the evidence it reverses, and audited as DECISION_OVERRIDDEN
// when it commits. A failure inside the transaction is audited as
// DECISION_FAILED; a request rejected for a missing justification is
// returned before any audit write.
func (s *Service) Override(ctx context.Context, req OverrideRequest) (*model.Decision, *model.CheckItem, error) {
	if req.Justification == "" {
		return nil, nil, ErrJustificationRequired
	}

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

		dec, err := s.entitlements.CheckOverride(ctx, req.User, item)
		if err != nil {
			return err
		}
		if !dec.Allowed {
			return fmt.Errorf("%w: %v", ErrEntitlementDenied, dec.DenyReasons)
		}

		overridden, err := tx.GetDecision(ctx, req.DecisionID)
		if err != nil {
			return fmt.Errorf("decision: load overridden decision: %w", err)
		}
		if overridden == nil {
			return ErrItemNotFound
		}

		// An override is the one path allowed to reverse a finalized item:
		// the standard transition table does not apply, but closed items and
		// non-final target actions are still rejected.
		newStatus, ok := nextStatusForAction(req.NewAction, false)
		if !ok || item.Status == model.StatusClosed {
			return ErrInvalidTransition
		}
		switch newStatus {
		case model.StatusApproved, model.StatusReturned, model.StatusRejected:
		default:
			return ErrInvalidTransition
		}

		prevSnap, err := evidenceseal.Unmarshal(overridden.EvidenceSnapshot)
		if err != nil {
			return fmt.Errorf("decision: unmarshal overridden snapshot: %w", err)
		}
		prevHash := prevSnap.EvidenceHash

		now := s.now().UTC()
		sealed, err := evidenceseal.Seal(evidenceseal.Input{
			ItemSnapshot:  req.ItemSnapshot,
			ReviewerNotes: req.Justification,
			PreviousHash:  &prevHash,
		}, now)
		if err != nil {
			return fmt.Errorf("decision: seal override: %w", err)
		}
		sealedJSON, err := evidenceseal.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("decision: marshal override seal: %w", err)
		}

		newDec := &model.Decision{
			ID:                    uuid.NewString(),
			TenantID:              req.TenantID,
			CheckItemID:           req.CheckItemID,
			DecisionType:          model.DecisionTypeOverride,
			Action:                req.NewAction,
			UserID:                req.User.ID,
			PreviousStatus:        item.Status,
			NewStatus:             newStatus,
			Notes:                 req.Justification,
			EvidenceSnapshot:      sealedJSON,
			CreatedAt:             now,
		}
		if err := tx.InsertDecision(ctx, newDec); err != nil {
			return fmt.Errorf("decision: insert override: %w", err)
		}

		item.Status = newStatus
		item.UpdatedAt = now
		item.PendingDualControlDecID = nil
		if err := tx.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("decision: update item: %w", err)
		}

		auditSvc := audit.NewService(tx.AuditStore())
		if _, err := auditSvc.Log(ctx, audit.Entry{
			TenantID:     &req.TenantID,
			UserID:       &req.User.ID,
			Username:     req.User.Username,
			IPAddress:    req.IPAddress,
			UserAgent:    req.UserAgent,
			Action:       model.AuditDecisionOverridden,
			ResourceType: "check_item",
			ResourceID:   req.CheckItemID,
			Description:  fmt.Sprintf("decision %s overridden: %s", req.DecisionID, req.Justification),
			Before:       map[string]any{"status": newDec.PreviousStatus},
			After:        map[string]any{"status": newDec.NewStatus, "decision_id": newDec.ID},
			SessionID:    req.SessionID,
		}); err != nil {
			return fmt.Errorf("decision: audit override: %w", err)
		}

		resultDecision = newDec
		resultItem = item
		return nil
	})

	if txErr != nil {
		s.recordFailure(ctx, Request{
			TenantID:    req.TenantID,
			CheckItemID: req.CheckItemID,
			User:        req.User,
			IPAddress:   req.IPAddress,
			UserAgent:   req.UserAgent,
			SessionID:   req.SessionID,
		}, txErr)
		return nil, nil, txErr
	}
	return resultDecision, resultItem, nil
}
