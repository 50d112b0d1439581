package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/checkitem"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/model"
)

// parseFilter builds the list-filter union from query parameters.
// Malformed amounts, booleans and timestamps are rejected; status and
// risk_level values are passed through without checking them against the
// known set.
func parseFilter(r *http.Request) (checkitem.Filter, error) {
	q := r.URL.Query()
	var f checkitem.Filter

	for _, v := range q["status"] {
		f.Status = append(f.Status, model.Status(v))
	}
	for _, v := range q["risk_level"] {
		f.RiskLevel = append(f.RiskLevel, model.RiskLevel(v))
	}
	if v := q.Get("amount_min"); v != "" {
		m, err := model.NewMoneyFromString(v)
		if err != nil {
			return f, apierr.New(apierr.CodeValidationInvalidFormat, "amount_min must be a decimal amount")
		}
		f.AmountMin = &m
	}
	if v := q.Get("amount_max"); v != "" {
		m, err := model.NewMoneyFromString(v)
		if err != nil {
			return f, apierr.New(apierr.CodeValidationInvalidFormat, "amount_max must be a decimal amount")
		}
		f.AmountMax = &m
	}
	if v := q.Get("queue_id"); v != "" {
		f.QueueID = &v
	}
	if v := q.Get("assigned_to"); v != "" {
		f.AssignedUserID = &v
	}
	if v := q.Get("has_ai_flags"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apierr.New(apierr.CodeValidationInvalidFormat, "has_ai_flags must be a boolean")
		}
		f.HasAIFlags = &b
	}
	if v := q.Get("sla_breached"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apierr.New(apierr.CodeValidationInvalidFormat, "sla_breached must be a boolean")
		}
		f.SLABreachedOnly = &b
	}
	if v := q.Get("presented_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apierr.New(apierr.CodeValidationInvalidFormat, "presented_from must be RFC 3339")
		}
		f.PresentedFrom = &t
	}
	if v := q.Get("presented_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apierr.New(apierr.CodeValidationInvalidFormat, "presented_to must be RFC 3339")
		}
		f.PresentedTo = &t
	}
	return f, nil
}

func parsePage(r *http.Request) checkitem.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return checkitem.Page{PageNumber: page, PageSize: size}
}

// itemSummary is the list-view projection of a CheckItem.
type itemSummary struct {
	ID                  string       `json:"id"`
	ExternalItemID      string       `json:"external_item_id"`
	Amount              model.Money  `json:"amount"`
	Currency            string       `json:"currency"`
	MaskedAccount       string       `json:"masked_account"`
	CheckNumber         string       `json:"check_number"`
	PresentedDate       time.Time    `json:"presented_date"`
	ItemType            model.ItemType `json:"item_type"`
	Status              model.Status `json:"status"`
	RiskLevel           model.RiskLevel `json:"risk_level"`
	QueueID             *string      `json:"queue_id,omitempty"`
	AssignedReviewerID  *string      `json:"assigned_reviewer_id,omitempty"`
	SLADueAt            *time.Time   `json:"sla_due_at,omitempty"`
	SLABreached         bool         `json:"sla_breached"`
	RequiresDualControl bool         `json:"requires_dual_control"`
	AIRecommendation    string       `json:"ai_recommendation,omitempty"`
}

func summarize(it *model.CheckItem) itemSummary {
	return itemSummary{
		ID:                  it.ID,
		ExternalItemID:      it.ExternalItemID,
		Amount:              it.Amount,
		Currency:            it.Currency,
		MaskedAccount:       it.MaskedAccount,
		CheckNumber:         it.CheckNumber,
		PresentedDate:       it.PresentedDate,
		ItemType:            it.ItemType,
		Status:              it.Status,
		RiskLevel:           it.RiskLevel,
		QueueID:             it.QueueID,
		AssignedReviewerID:  it.AssignedReviewerID,
		SLADueAt:            it.SLADueAt,
		SLABreached:         it.SLABreached,
		RequiresDualControl: it.RequiresDualControl,
		AIRecommendation:    it.AIRecommendation,
	}
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}
	result, err := s.items.List(r.Context(), filter, parsePage(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	summaries := make([]itemSummary, len(result.Items))
	for i := range result.Items {
		summaries[i] = summarize(&result.Items[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       summaries,
		"total_count": result.TotalCount,
	})
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	itemID := r.PathValue("id")

	item, err := s.items.GetByID(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if item == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}

	tid := item.TenantID
	uid := id.User.ID
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		TenantID: &tid, UserID: &uid, Username: id.User.Username,
		IPAddress: s.clientIP(r), UserAgent: r.UserAgent(),
		Action: model.AuditItemViewed, ResourceType: "check_item", ResourceID: item.ID,
		Description: "item detail viewed",
		SessionID:   &id.SessionID,
	})
	if s.itemViews != nil {
		_ = s.itemViews.Insert(r.Context(), &model.ItemView{
			ID:             uuid.NewString(),
			TenantID:       item.TenantID,
			CheckItemID:    item.ID,
			UserID:         id.User.ID,
			ViewStartedAt:  time.Now().UTC(),
			ReadFullDetail: true,
		})
	}

	writeJSON(w, http.StatusOK, itemDetail(item))
}

// itemDetail returns the full reviewer-facing projection, including the
// derived account-context snapshot and advisory fields.
func itemDetail(it *model.CheckItem) map[string]any {
	detail := map[string]any{
		"summary":        summarize(it),
		"account_id":     it.AccountID,
		"routing_number": it.RoutingNumber,
		"check_date":     it.CheckDate,
		"micr_raw":       it.MICRRaw,
		"account_type":   it.AccountType,
		"payee_name":     it.PayeeName,
		"memo":           it.Memo,
		"account_context": map[string]any{
			"account_tenure_days":       it.AccountTenureDays,
			"current_balance":           it.CurrentBalance,
			"average_balance_30d":       it.AverageBalance30d,
			"avg_check_amount_30d":      it.AvgCheckAmount30d,
			"avg_check_amount_90d":      it.AvgCheckAmount90d,
			"max_check_amount_90d":      it.MaxCheckAmount90d,
			"check_count_7d":            it.CheckCount7d,
			"total_check_amount_7d":     it.TotalCheckAmount7d,
			"returned_item_count_90d":   it.ReturnedItemCount90d,
			"overdraft_count_90d":       it.OverdraftCount90d,
			"nsf_count_90d":             it.NSFCount90d,
			"is_duplicate_check_number": it.IsDuplicateCheckNumber,
			"is_out_of_sequence":        it.IsOutOfSequence,
			"is_stale_dated":            it.IsStaleDated,
			"is_post_dated":             it.IsPostDated,
			"has_micr_anomaly":          it.HasMICRAnomaly,
			"signature_match_score":     it.SignatureMatchScore,
		},
		"advisory": map[string]any{
			"recommendation": it.AIRecommendation,
			"confidence":     it.AIConfidence,
			"explanation":    it.AIExplanation,
			"is_advisory":    true,
		},
		"dual_control": map[string]any{
			"required":            it.RequiresDualControl,
			"reason":              it.DualControlReason,
			"pending_decision_id": it.PendingDualControlDecID,
		},
		"policy_version_id": it.PolicyVersionID,
	}
	return detail
}

func (s *Server) handleAdjacent(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}
	prev, next, err := s.items.Adjacent(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := map[string]any{}
	if prev != nil {
		resp["prev_id"] = prev.ID
	}
	if next != nil {
		resp["next_id"] = next.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type assignRequest struct {
	ReviewerID *string `json:"reviewer_id,omitempty"`
	ApproverID *string `json:"approver_id,omitempty"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	item, err := s.assignments.Assign(r.Context(), id.User.TenantID, r.PathValue("id"),
		id.User.ID, id.User.Username, s.clientIP(r), r.UserAgent(),
		req.ReviewerID, req.ApproverID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(item))
}

type statusRequest struct {
	Status model.Status `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	item, err := s.assignments.UpdateStatus(r.Context(), id.User.TenantID, r.PathValue("id"),
		id.User.ID, id.User.Username, s.clientIP(r), r.UserAgent(), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(item))
}

type syncRequest struct {
	AmountMin string `json:"amount_min,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	var amountMin model.Money
	if req.AmountMin != "" {
		m, err := model.NewMoneyFromString(req.AmountMin)
		if err != nil {
			apierr.Write(w, r, apierr.New(apierr.CodeValidationInvalidFormat, "amount_min must be a decimal amount"))
			return
		}
		amountMin = m
	}
	result, err := s.ingest.SyncPresentedItems(r.Context(), id.User.TenantID, amountMin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	errStrings := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		errStrings[i] = e.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items_ingested": result.ItemsIngested,
		"errors":         errStrings,
	})
}
