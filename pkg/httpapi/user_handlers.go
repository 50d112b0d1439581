package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/auth"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/model"
)

type adminUserView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	MFAEnabled  bool       `json:"mfa_enabled"`
	IsSuperuser bool       `json:"is_superuser"`
	IsActive    bool       `json:"is_active"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	AllowedIPs  []string   `json:"allowed_ips,omitempty"`
}

func adminViewOf(u *model.User) adminUserView {
	return adminUserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		MFAEnabled:  u.MFAEnabled,
		IsSuperuser: u.IsSuperuser,
		IsActive:    u.IsActive,
		LockedUntil: u.LockedUntil,
		LastLogin:   u.LastLogin,
		AllowedIPs:  u.AllowedIPs,
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("page_size"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	users, err := s.userAdmin.List(r.Context(), id.User.TenantID, limit, (page-1)*limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]adminUserView, len(users))
	for i := range users {
		views[i] = adminViewOf(&users[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views})
}

type createUserRequest struct {
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	AllowedIPs []string `json:"allowed_ips,omitempty"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 12 {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationInvalidInput, "username, email, and a password of at least 12 characters are required"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.NewString(),
		TenantID:     id.User.TenantID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		AllowedIPs:   req.AllowedIPs,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userAdmin.Create(r.Context(), u); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "user", u.ID, "user created", nil, adminViewOf(u))
	writeJSON(w, http.StatusCreated, adminViewOf(u))
}

type updateUserRequest struct {
	Email      *string  `json:"email,omitempty"`
	MFAEnabled *bool    `json:"mfa_enabled,omitempty"`
	IsActive   *bool    `json:"is_active,omitempty"`
	AllowedIPs []string `json:"allowed_ips,omitempty"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	u, err := s.userAdmin.Get(r.Context(), id.User.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if u == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
		return
	}
	before := adminViewOf(u)
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.MFAEnabled != nil {
		u.MFAEnabled = *req.MFAEnabled
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.AllowedIPs != nil {
		u.AllowedIPs = req.AllowedIPs
	}
	u.UpdatedAt = time.Now().UTC()

	if err := s.userAdmin.Update(r.Context(), u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apierr.Write(w, r, apierr.New(apierr.CodeResourceNotFound, "Not found"))
			return
		}
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "user", u.ID, "user updated", before, adminViewOf(u))
	writeJSON(w, http.StatusOK, adminViewOf(u))
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.userAdmin.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]map[string]any, len(roles))
	for i, role := range roles {
		views[i] = map[string]any{"id": role.ID, "name": role.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": views})
}

// handleListPermissions serves the static permission catalog.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	catalog := []model.Permission{
		model.PermCheckItemView, model.PermCheckItemDecide, model.PermCheckItemAssign,
		model.PermCheckItemReview, model.PermCheckImageView, model.PermPolicyManage,
		model.PermUserManage, model.PermAuditView, model.PermAuditExport,
		model.PermFraudView, model.PermFraudSubmit, model.PermDecisionOverride,
	}
	out := make([]map[string]string, len(catalog))
	for i, p := range catalog {
		out[i] = map[string]string{"resource": p.Resource, "action": p.Action}
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": out})
}

type grantRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req grantRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.RoleID == "" {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationMissingField, "role_id is required"))
		return
	}
	userID := r.PathValue("id")
	if err := s.userAdmin.GrantRole(r.Context(), id.User.TenantID, userID, req.RoleID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "user_role", userID, "role granted",
		nil, map[string]any{"user_id": userID, "role_id": req.RoleID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	userID := r.PathValue("id")
	roleID := r.PathValue("roleID")
	if err := s.userAdmin.RevokeRole(r.Context(), id.User.TenantID, userID, roleID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.auditAdminMutation(r, id, "user_role", userID, "role revoked",
		map[string]any{"user_id": userID, "role_id": roleID}, nil)
	w.WriteHeader(http.StatusNoContent)
}
