package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/fraud"
	"github.com/jmalloway/checksub001/pkg/model"
)

type fraudEventRequest struct {
	CheckItemID    *string `json:"check_item_id,omitempty"`
	FraudType      string  `json:"fraud_type"`
	Channel        string  `json:"channel,omitempty"`
	Description    string  `json:"description,omitempty"`
	RoutingNumber  string  `json:"routing_number,omitempty"`
	PayeeName      string  `json:"payee_name,omitempty"`
	AccountNumber  string  `json:"account_number,omitempty"`
	CheckNumber    string  `json:"check_number,omitempty"`
	Amount         string  `json:"amount,omitempty"`
	CheckDate      string  `json:"check_date,omitempty"`
	ShareToNetwork bool    `json:"share_to_network,omitempty"`
}

func (s *Server) handleCreateFraudEvent(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req fraudEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.FraudType == "" {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationMissingField, "fraud_type is required"))
		return
	}

	in := fraud.ReportInput{
		TenantID:       id.User.TenantID,
		CheckItemID:    req.CheckItemID,
		ReportedBy:     id.User.ID,
		FraudType:      req.FraudType,
		Channel:        req.Channel,
		Description:    req.Description,
		RoutingNumber:  req.RoutingNumber,
		PayeeName:      req.PayeeName,
		AccountNumber:  req.AccountNumber,
		CheckNumber:    req.CheckNumber,
		ShareToNetwork: req.ShareToNetwork,
	}
	if req.Amount != "" {
		m, err := model.NewMoneyFromString(req.Amount)
		if err != nil {
			apierr.Write(w, r, apierr.New(apierr.CodeValidationInvalidFormat, "amount must be a decimal amount"))
			return
		}
		in.Amount = m
	}
	if req.CheckDate != "" {
		t, err := time.Parse("2006-01-02", req.CheckDate)
		if err != nil {
			apierr.Write(w, r, apierr.New(apierr.CodeValidationInvalidFormat, "check_date must be YYYY-MM-DD"))
			return
		}
		in.CheckDate = t
	}

	event, artifact, err := s.fraudSvc.Report(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	tid := id.User.TenantID
	uid := id.User.ID
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		TenantID: &tid, UserID: &uid, Username: id.User.Username,
		IPAddress: s.clientIP(r), UserAgent: r.UserAgent(),
		Action: model.AuditFraudEventCreated, ResourceType: "fraud_event", ResourceID: event.ID,
		Description: "fraud event reported",
		Extra:       map[string]any{"shared_to_network": artifact != nil},
		SessionID:   &id.SessionID,
	})

	resp := map[string]any{"event_id": event.ID, "shared_to_network": artifact != nil}
	if artifact != nil {
		resp["artifact_id"] = artifact.ID
	}
	writeJSON(w, http.StatusCreated, resp)
}

type matchAlertView struct {
	ID                   string    `json:"id"`
	MatchReasons         []string  `json:"match_reasons"`
	DistinctInstitutions int       `json:"distinct_institutions"`
	OccurrenceCount      int       `json:"occurrence_count"`
	CreatedAt            time.Time `json:"created_at"`
}

func (s *Server) handleListFraudMatches(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("page_size"))
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	alerts, err := s.fraudSvc.ListAlerts(r.Context(), id.User.TenantID, limit, (page-1)*limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// Alerts expose aggregate reasons and counts only — never artifact IDs
	// or counterpart tenants.
	views := make([]matchAlertView, len(alerts))
	for i, a := range alerts {
		views[i] = matchAlertView{
			ID:                   a.ID,
			MatchReasons:         a.MatchReasons,
			DistinctInstitutions: a.DistinctInstitutions,
			OccurrenceCount:      a.OccurrenceCount,
			CreatedAt:            a.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": views})
}
