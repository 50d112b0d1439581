package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmalloway/checksub001/pkg/advisory"
	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/decision"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/model"
)

type decideRequest struct {
	CheckItemID     string       `json:"check_item_id"`
	Action          model.Action `json:"action"`
	Notes           string       `json:"notes,omitempty"`
	ReasonCodes     []string     `json:"reason_codes,omitempty"`
	AIAssisted      bool         `json:"ai_assisted,omitempty"`
	AIFlagsReviewed []string     `json:"ai_flags_reviewed,omitempty"`
}

type decisionResponse struct {
	ID           string             `json:"id"`
	CheckItemID  string             `json:"check_item_id"`
	DecisionType model.DecisionType `json:"decision_type"`
	Action       model.Action       `json:"action"`
	NewStatus    model.Status       `json:"new_status"`
	DualControl  bool               `json:"is_dual_control_required"`
	CreatedAt    time.Time          `json:"created_at"`
}

func decisionOf(d *model.Decision) decisionResponse {
	return decisionResponse{
		ID:           d.ID,
		CheckItemID:  d.CheckItemID,
		DecisionType: d.DecisionType,
		Action:       d.Action,
		NewStatus:    d.NewStatus,
		DualControl:  d.IsDualControlRequired,
		CreatedAt:    d.CreatedAt,
	}
}

// snapshotOf captures the item's key attributes for the sealed evidence
// snapshot.
func snapshotOf(it *model.CheckItem) map[string]any {
	return map[string]any{
		"check_item_id":    it.ID,
		"external_item_id": it.ExternalItemID,
		"amount":           it.Amount.String(),
		"currency":         it.Currency,
		"masked_account":   it.MaskedAccount,
		"routing_number":   it.RoutingNumber,
		"check_number":     it.CheckNumber,
		"presented_date":   it.PresentedDate.UTC().Format(time.RFC3339),
		"item_type":        string(it.ItemType),
		"status":           string(it.Status),
		"risk_level":       string(it.RiskLevel),
	}
}

// advisoryOf reconstructs the stored advisory analysis reference for the
// AI-acknowledgment guardrail. Returns nil when no inference ran for the
// item.
func advisoryOf(it *model.CheckItem) *advisory.Result {
	if it.AIRecommendation == "" {
		return nil
	}
	res := &advisory.Result{
		ModelID:        advisory.ModelID,
		ModelVersion:   advisory.ModelVersion,
		Recommendation: advisory.Recommendation(it.AIRecommendation),
		Explanation:    it.AIExplanation,
	}
	if it.AIConfidence != nil {
		res.Confidence = *it.AIConfidence
	}
	if len(it.AIRiskFactors) > 0 {
		var factors []advisory.RiskFactor
		if err := json.Unmarshal(it.AIRiskFactors, &factors); err == nil {
			res.RiskFactors = factors
			for _, f := range factors {
				res.Flags = append(res.Flags, f.Factor)
			}
		}
	}
	return res
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, itemID string, req decideRequest) {
	id, _ := dispatch.IdentityFromContext(r.Context())

	item, err := s.items.GetByID(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if item == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}

	var policyVersionID string
	if item.PolicyVersionID != nil {
		policyVersionID = *item.PolicyVersionID
	}
	dec, _, err := s.decisions.Decide(r.Context(), decision.Request{
		TenantID:        id.User.TenantID,
		CheckItemID:     item.ID,
		User:            id.User,
		IPAddress:       s.clientIP(r),
		UserAgent:       r.UserAgent(),
		SessionID:       &id.SessionID,
		Action:          req.Action,
		Notes:           req.Notes,
		ReasonCodes:     req.ReasonCodes,
		AIAssisted:      req.AIAssisted,
		AIFlagsReviewed: req.AIFlagsReviewed,
		AIAnalysis:      advisoryOf(item),
		AdvisoryRef:     item.AIRecommendation,
		ItemSnapshot:    snapshotOf(item),
		PolicyVersionID: policyVersionID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, decisionOf(dec))
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.CheckItemID == "" || req.Action == "" {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationMissingField, "check_item_id and action are required"))
		return
	}
	s.decide(w, r, req.CheckItemID, req)
}

type dualControlApproveRequest struct {
	Action          model.Action `json:"action,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	ReasonCodes     []string     `json:"reason_codes,omitempty"`
	AIAssisted      bool         `json:"ai_assisted,omitempty"`
	AIFlagsReviewed []string     `json:"ai_flags_reviewed,omitempty"`
}

// handleDualControlApprove finalizes the pending half of a dual-control
// pair. The path's {id} names the review recommendation being finalized;
// the decision service re-checks entitlement and rejects self-approval.
func (s *Server) handleDualControlApprove(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req dualControlApproveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.Action == "" {
		req.Action = model.ActionApprove
	}

	rec, err := s.decisionReader.GetDecision(r.Context(), id.User.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rec == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}
	if rec.DecisionType != model.DecisionTypeReviewRecommendation {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationInvalidState, "Decision is not a pending dual-control recommendation"))
		return
	}

	s.decide(w, r, rec.CheckItemID, decideRequest{
		CheckItemID:     rec.CheckItemID,
		Action:          req.Action,
		Notes:           req.Notes,
		ReasonCodes:     req.ReasonCodes,
		AIAssisted:      req.AIAssisted,
		AIFlagsReviewed: req.AIFlagsReviewed,
	})
}

type overrideRequest struct {
	NewAction     model.Action `json:"new_action"`
	Justification string       `json:"justification"`
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req overrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.NewAction == "" {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationMissingField, "new_action is required"))
		return
	}

	overridden, err := s.decisionReader.GetDecision(r.Context(), id.User.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if overridden == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}

	item, err := s.items.GetByID(r.Context(), overridden.CheckItemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if item == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}

	dec, _, err := s.decisions.Override(r.Context(), decision.OverrideRequest{
		TenantID:      id.User.TenantID,
		CheckItemID:   overridden.CheckItemID,
		DecisionID:    overridden.ID,
		User:          id.User,
		NewAction:     req.NewAction,
		Justification: req.Justification,
		IPAddress:     s.clientIP(r),
		UserAgent:     r.UserAgent(),
		SessionID:     &id.SessionID,
		ItemSnapshot:  snapshotOf(item),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, decisionOf(dec))
}
