package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/auth"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

type userProfile struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	IsSuperuser bool     `json:"is_superuser"`
	MFAEnabled  bool     `json:"mfa_enabled"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	MFARequired bool        `json:"mfa_required,omitempty"`
	User        *userProfile `json:"user,omitempty"`
}

func profileOf(u *model.User) *userProfile {
	p := &userProfile{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Username:    u.Username,
		Email:       u.Email,
		IsSuperuser: u.IsSuperuser,
		MFAEnabled:  u.MFAEnabled,
	}
	seen := map[string]bool{}
	for _, r := range u.Roles {
		p.Roles = append(p.Roles, r.Name)
		for _, perm := range r.Permissions {
			key := perm.String()
			if !seen[key] {
				seen[key] = true
				p.Permissions = append(p.Permissions, key)
			}
		}
	}
	return p
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationMissingField, "username and password are required"))
		return
	}

	ip := s.clientIP(r)
	ua := r.UserAgent()

	// Tenant is unknown before authentication; the empty tenant searches
	// the global auth namespace (usernames are globally unique).
	result, err := s.authSvc.Authenticate(r.Context(), "", req.Username, req.Password, req.MFACode, ip)
	if err != nil {
		s.auditAuthFailure(r, req.Username, ip, ua, err)
		writeServiceError(w, r, err)
		return
	}
	if result.MFARequired {
		writeJSON(w, http.StatusOK, loginResponse{MFARequired: true})
		return
	}
	user := result.User

	access, refresh, err := s.authSvc.IssueTokens(r.Context(), user, ip, ua, r.Header.Get("X-Device-Fingerprint"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	csrfToken, err := s.csrf.Issue(user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.setAuthCookies(w, refresh, csrfToken)

	tid := user.TenantID
	uid := user.ID
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		TenantID: &tid, UserID: &uid, Username: user.Username,
		IPAddress: ip, UserAgent: ua,
		Action: model.AuditLoginSuccess, ResourceType: "user", ResourceID: user.ID,
		Description: "login succeeded",
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		User:        profileOf(user),
	})
}

func (s *Server) auditAuthFailure(r *http.Request, username, ip, ua string, cause error) {
	action := model.AuditLoginFailure
	switch cause {
	case auth.ErrAccountLocked:
		action = model.AuditAccountLocked
	case auth.ErrMFAInvalid:
		action = model.AuditMFAFailure
	}
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		Username: username, IPAddress: ip, UserAgent: ua,
		Action: action, ResourceType: "user", ResourceID: username,
		Description: cause.Error(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		apierr.Write(w, r, apierr.New(apierr.CodeAuthTokenInvalid, "Missing refresh token"))
		return
	}

	// Double-submit check: the header must echo the CSRF cookie exactly.
	csrfCookie, err := r.Cookie(csrfCookieName)
	header := r.Header.Get("X-CSRF-Token")
	if err != nil || header == "" ||
		subtle.ConstantTimeCompare([]byte(csrfCookie.Value), []byte(header)) != 1 {
		apierr.Write(w, r, apierr.New(apierr.CodeAuthCSRFMismatch, "CSRF token missing or mismatched"))
		return
	}

	claims, err := s.tokens.ValidateRefreshToken(cookie.Value)
	if err != nil {
		apierr.Write(w, r, apierr.New(apierr.CodeAuthTokenInvalid, "Invalid refresh token"))
		return
	}
	if !s.csrf.Verify(claims.UserID, header) {
		apierr.Write(w, r, apierr.New(apierr.CodeAuthCSRFMismatch, "CSRF token not issued for this user"))
		return
	}

	user, err := s.users.GetActiveUser(r.Context(), claims.TenantID, claims.UserID)
	if err != nil || user == nil {
		apierr.Write(w, r, apierr.New(apierr.CodeAuthSessionExpired, "Session no longer valid"))
		return
	}

	ip := s.clientIP(r)
	ua := r.UserAgent()
	access, refresh, err := s.authSvc.RotateRefreshToken(r.Context(), user, cookie.Value, ip, ua)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	csrfToken, err := s.csrf.Issue(user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.setAuthCookies(w, refresh, csrfToken)

	tid := user.TenantID
	uid := user.ID
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		TenantID: &tid, UserID: &uid, Username: user.Username,
		IPAddress: ip, UserAgent: ua,
		Action: model.AuditTokenRefreshed, ResourceType: "user", ResourceID: user.ID,
		Description: "refresh token rotated",
	})

	writeJSON(w, http.StatusOK, loginResponse{AccessToken: access, TokenType: "Bearer"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		if err := s.authSvc.Logout(r.Context(), cookie.Value); err != nil {
			s.log.Warn("logout: revoke session", "error", err)
		}
	}
	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := dispatch.IdentityFromContext(r.Context())
	if !ok {
		apierr.Write(w, r, apierr.New(apierr.CodeAuthTokenInvalid, "Authentication required"))
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if len(req.NewPassword) < 12 {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationInvalidInput, "New password must be at least 12 characters"))
		return
	}

	revoked, err := s.authSvc.ChangePassword(r.Context(), id.User, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.clearAuthCookies(w)

	tid := id.User.TenantID
	uid := id.User.ID
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		TenantID: &tid, UserID: &uid, Username: id.User.Username,
		IPAddress: s.clientIP(r), UserAgent: r.UserAgent(),
		Action: model.AuditPasswordChanged, ResourceType: "user", ResourceID: id.User.ID,
		Description: "password changed; all sessions revoked",
		Extra:       map[string]any{"sessions_revoked": revoked, "changed_at": time.Now().UTC()},
		SessionID:   &id.SessionID,
	})

	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed", "sessions_revoked": revoked})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := dispatch.IdentityFromContext(r.Context())
	if !ok {
		apierr.Write(w, r, apierr.New(apierr.CodeAuthTokenInvalid, "Authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, profileOf(id.User))
}
