package checkitem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/model"
)

// ErrNotFound is returned by AssignmentService methods when the item does
// not exist for the caller's tenant.
var ErrNotFound = errors.New("checkitem: not found")

// ErrInvalidTransition is returned when a direct status update would move
// a terminal item, bypassing the decision workflow that owns those
// transitions for anything but queue bookkeeping (new/in_review/escalated).
var ErrInvalidTransition = errors.New("checkitem: invalid status transition")

// AssignmentStore is the persistence surface AssignmentService needs for
// the admin-path assign/status endpoints (POST /checks/{id}/assign,
// POST /checks/{id}/status). It is distinct from Store/ReadStore because
// it mutates specific columns in place rather than re-running the full
// ingest upsert.
type AssignmentStore interface {
	GetByID(ctx context.Context, tenantID, itemID string) (*model.CheckItem, error)
	UpdateAssignment(ctx context.Context, tenantID, itemID string, reviewerID, approverID *string, now time.Time) error
	UpdateStatus(ctx context.Context, tenantID, itemID string, status model.Status, now time.Time) error
}

// directTransitions are the status changes this service may apply without
// going through pkg/decision — queue triage, not a decision on disposition.
var directTransitions = map[model.Status]bool{
	model.StatusNew:        true,
	model.StatusInReview:   true,
	model.StatusEscalated:  true,
}

// AssignmentService implements the reviewer/queue-assignment and direct
// status transition operations of the admin surface, auditing every
// mutation the way pkg/decision audits its own writes.
type AssignmentService struct {
	store AssignmentStore
	audit *audit.Service
	now   func() time.Time
}

func NewAssignmentService(store AssignmentStore, auditSvc *audit.Service) *AssignmentService {
	return &AssignmentService{store: store, audit: auditSvc, now: time.Now}
}

// Assign sets reviewerID and/or approverID on itemID, leaving unspecified
// arguments unchanged when nil.
func (s *AssignmentService) Assign(ctx context.Context, tenantID, itemID, actorUserID, actorUsername, ip, userAgent string, reviewerID, approverID *string) (*model.CheckItem, error) {
	item, err := s.store.GetByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, fmt.Errorf("checkitem: get for assign: %w", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	newReviewer := item.AssignedReviewerID
	if reviewerID != nil {
		newReviewer = reviewerID
	}
	newApprover := item.AssignedApproverID
	if approverID != nil {
		newApprover = approverID
	}

	if err := s.store.UpdateAssignment(ctx, tenantID, itemID, newReviewer, newApprover, now); err != nil {
		return nil, fmt.Errorf("checkitem: update assignment: %w", err)
	}

	before := map[string]*string{"assigned_reviewer_id": item.AssignedReviewerID, "assigned_approver_id": item.AssignedApproverID}
	after := map[string]*string{"assigned_reviewer_id": newReviewer, "assigned_approver_id": newApprover}
	if _, err := s.audit.Log(ctx, audit.Entry{
		TenantID:     &tenantID,
		UserID:       &actorUserID,
		Username:     actorUsername,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Action:       model.AuditItemAssigned,
		ResourceType: "check_item",
		ResourceID:   itemID,
		Before:       before,
		After:        after,
	}); err != nil {
		return nil, fmt.Errorf("checkitem: audit assign: %w", err)
	}

	item.AssignedReviewerID = newReviewer
	item.AssignedApproverID = newApprover
	item.UpdatedAt = now
	return item, nil
}

// UpdateStatus transitions itemID to status directly, for queue triage
// states only (new/in_review/escalated) — anything that disposes of the
// item (approved/returned/rejected/closed) must go through pkg/decision so
// the evidence chain and dual-control rules are honored.
func (s *AssignmentService) UpdateStatus(ctx context.Context, tenantID, itemID, actorUserID, actorUsername, ip, userAgent string, status model.Status) (*model.CheckItem, error) {
	if !directTransitions[status] {
		return nil, ErrInvalidTransition
	}

	item, err := s.store.GetByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, fmt.Errorf("checkitem: get for status update: %w", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	if item.Status.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.store.UpdateStatus(ctx, tenantID, itemID, status, now); err != nil {
		return nil, fmt.Errorf("checkitem: update status: %w", err)
	}

	if _, err := s.audit.Log(ctx, audit.Entry{
		TenantID:     &tenantID,
		UserID:       &actorUserID,
		Username:     actorUsername,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Action:       model.AuditItemStatusChanged,
		ResourceType: "check_item",
		ResourceID:   itemID,
		Before:       map[string]string{"status": string(item.Status)},
		After:        map[string]string{"status": string(status)},
	}); err != nil {
		return nil, fmt.Errorf("checkitem: audit status change: %w", err)
	}

	item.Status = status
	item.UpdatedAt = now
	return item, nil
}
