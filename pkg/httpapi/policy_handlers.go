package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/model"
	"github.com/jmalloway/checksub001/pkg/policy"
)

type policyView struct {
	ID                    string              `json:"id"`
	Name                  string              `json:"name"`
	Status                model.PolicyStatus  `json:"status"`
	IsDefault             bool                `json:"is_default"`
	AppliesToAccountTypes []model.AccountType `json:"applies_to_account_types,omitempty"`
}

func policyViewOf(p *model.Policy) policyView {
	return policyView{
		ID:                    p.ID,
		Name:                  p.Name,
		Status:                p.Status,
		IsDefault:             p.IsDefault,
		AppliesToAccountTypes: p.AppliesToAccountTypes,
	}
}

func (s *Server) auditAdminMutation(r *http.Request, id *dispatch.Identity, resourceType, resourceID, desc string, before, after any) {
	tid := id.User.TenantID
	uid := id.User.ID
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		TenantID: &tid, UserID: &uid, Username: id.User.Username,
		IPAddress: s.clientIP(r), UserAgent: r.UserAgent(),
		Action: model.AuditAdminMutation, ResourceType: resourceType, ResourceID: resourceID,
		Description: desc, Before: before, After: after,
		SessionID: &id.SessionID,
	})
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	policies, err := s.policies.ListPolicies(r.Context(), id.User.TenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]policyView, len(policies))
	for i := range policies {
		views[i] = policyViewOf(&policies[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": views})
}

type createPolicyRequest struct {
	Name                  string              `json:"name"`
	IsDefault             bool                `json:"is_default,omitempty"`
	AppliesToAccountTypes []model.AccountType `json:"applies_to_account_types,omitempty"`
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req createPolicyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.Name == "" {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationMissingField, "name is required"))
		return
	}
	p := &model.Policy{
		ID:                    uuid.NewString(),
		TenantID:              id.User.TenantID,
		Name:                  req.Name,
		Status:                model.PolicyStatusDraft,
		IsDefault:             req.IsDefault,
		AppliesToAccountTypes: req.AppliesToAccountTypes,
	}
	if err := s.policies.CreatePolicy(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "policy", p.ID, "policy created", nil, policyViewOf(p))
	writeJSON(w, http.StatusCreated, policyViewOf(p))
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	p, err := s.policies.GetPolicy(r.Context(), id.User.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if p == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}
	writeJSON(w, http.StatusOK, policyViewOf(p))
}

type updatePolicyRequest struct {
	Name                  *string             `json:"name,omitempty"`
	Status                *model.PolicyStatus `json:"status,omitempty"`
	IsDefault             *bool               `json:"is_default,omitempty"`
	AppliesToAccountTypes []model.AccountType `json:"applies_to_account_types,omitempty"`
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req updatePolicyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	p, err := s.policies.GetPolicy(r.Context(), id.User.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if p == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}
	before := policyViewOf(p)
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if req.IsDefault != nil {
		p.IsDefault = *req.IsDefault
	}
	if req.AppliesToAccountTypes != nil {
		p.AppliesToAccountTypes = req.AppliesToAccountTypes
	}
	if err := s.policies.UpdatePolicy(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "policy", p.ID, "policy updated", before, policyViewOf(p))
	writeJSON(w, http.StatusOK, policyViewOf(p))
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	policyID := r.PathValue("id")
	if err := s.policies.DeletePolicy(r.Context(), id.User.TenantID, policyID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "policy", policyID, "policy deleted", map[string]any{"policy_id": policyID}, nil)
	w.WriteHeader(http.StatusNoContent)
}

type policyRuleRequest struct {
	Name            string          `json:"name"`
	RuleType        model.RuleType  `json:"rule_type"`
	Priority        int             `json:"priority"`
	IsEnabled       *bool           `json:"is_enabled,omitempty"`
	Conditions      json.RawMessage `json:"conditions"`
	Actions         json.RawMessage `json:"actions"`
	AmountThreshold *string         `json:"amount_threshold,omitempty"`
}

type createVersionRequest struct {
	EffectiveDate *time.Time          `json:"effective_date,omitempty"`
	MakeCurrent   bool                `json:"make_current,omitempty"`
	Rules         []policyRuleRequest `json:"rules"`
}

func (s *Server) handleListPolicyVersions(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	versions, err := s.policies.ListVersions(r.Context(), id.User.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleCreatePolicyVersion(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req createVersionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}

	p, err := s.policies.GetPolicy(r.Context(), id.User.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if p == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}

	effective := time.Now().UTC()
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}
	version := &model.PolicyVersion{
		ID:            uuid.NewString(),
		PolicyID:      p.ID,
		TenantID:      id.User.TenantID,
		EffectiveDate: effective,
		IsCurrent:     req.MakeCurrent,
	}
	now := time.Now().UTC()
	for i, rr := range req.Rules {
		// Rule JSON is schema-validated before it can ever reach the
		// evaluator.
		if err := policy.ValidateRuleJSON(rr.Conditions, rr.Actions); err != nil {
			apierr.Write(w, r, apierr.Wrap(apierr.CodeValidationSchemaError, "Rule conditions or actions failed validation", err))
			return
		}
		var conditions []model.Condition
		if err := json.Unmarshal(rr.Conditions, &conditions); err != nil {
			apierr.Write(w, r, apierr.Wrap(apierr.CodeValidationSchemaError, "Malformed conditions", err))
			return
		}
		var actions []model.RuleAction
		if err := json.Unmarshal(rr.Actions, &actions); err != nil {
			apierr.Write(w, r, apierr.Wrap(apierr.CodeValidationSchemaError, "Malformed actions", err))
			return
		}
		rule := model.PolicyRule{
			ID:              uuid.NewString(),
			PolicyVersionID: version.ID,
			Name:            rr.Name,
			RuleType:        rr.RuleType,
			Priority:        rr.Priority,
			IsEnabled:       rr.IsEnabled == nil || *rr.IsEnabled,
			Conditions:      conditions,
			Actions:         actions,
			CreatedAt:       now.Add(time.Duration(i) * time.Millisecond),
		}
		if rr.AmountThreshold != nil {
			m, err := model.NewMoneyFromString(*rr.AmountThreshold)
			if err != nil {
				apierr.Write(w, r, apierr.New(apierr.CodeValidationInvalidFormat, "amount_threshold must be a decimal amount"))
				return
			}
			rule.AmountThreshold = &m
		}
		version.Rules = append(version.Rules, rule)
	}

	if err := s.policies.CreateVersion(r.Context(), version); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "policy_version", version.ID, "policy version created", nil,
		map[string]any{"policy_id": p.ID, "rule_count": len(version.Rules), "is_current": version.IsCurrent})
	writeJSON(w, http.StatusCreated, map[string]any{"version_id": version.ID})
}

func (s *Server) handleActivatePolicyVersion(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	policyID := r.PathValue("id")
	versionID := r.PathValue("vid")

	err := s.policies.ActivateVersion(r.Context(), id.User.TenantID, policyID, versionID)
	if errors.Is(err, sql.ErrNoRows) {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "policy_version", versionID, "policy version activated",
		nil, map[string]any{"policy_id": policyID, "version_id": versionID})
	writeJSON(w, http.StatusOK, map[string]any{"status": "activated"})
}
