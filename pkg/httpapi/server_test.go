package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/auth"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/imageconn"
	"github.com/jmalloway/checksub001/pkg/imagetoken"
	"github.com/jmalloway/checksub001/pkg/jwtauth"
	"github.com/jmalloway/checksub001/pkg/model"
	"github.com/jmalloway/checksub001/pkg/ratelimit"
)

// memUserStore implements auth.Store and dispatch.UserLookup.
type memUserStore struct {
	mu       sync.Mutex
	users    map[string]*model.User // by username
	sessions map[string]*model.UserSession
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*model.User{}, sessions: map[string]*model.UserSession{}}
}

func (m *memUserStore) GetUserByUsernameOrEmail(ctx context.Context, tenantID, usernameOrEmail string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[usernameOrEmail], nil
}

func (m *memUserStore) IncrementFailedAttempts(ctx context.Context, userID string, lockUntil *time.Time) error {
	return nil
}

func (m *memUserStore) ResetFailedAttempts(ctx context.Context, userID string) error { return nil }

func (m *memUserStore) CreateSession(ctx context.Context, sess *model.UserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.RefreshTokenHash] = sess
	return nil
}

func (m *memUserStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[tokenHash], nil
}

func (m *memUserStore) RevokeSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == sessionID {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memUserStore) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memUserStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID {
			u.PasswordHash = passwordHash
		}
	}
	return nil
}

func (m *memUserStore) GetActiveUser(ctx context.Context, tenantID, userID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID && u.TenantID == tenantID && u.IsActive {
			return u, nil
		}
	}
	return nil, nil
}

// memAuditStore collects entries.
type memAuditStore struct {
	mu   sync.Mutex
	rows []*model.AuditLog
}

func (m *memAuditStore) LatestHash(ctx context.Context, tenantID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		return "", false, nil
	}
	return m.rows[len(m.rows)-1].IntegrityHash, true, nil
}

func (m *memAuditStore) Append(ctx context.Context, row *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *memAuditStore) has(action model.AuditAction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Action == action {
			return true
		}
	}
	return false
}

// memTokenStore implements imagetoken.Store with an atomic conditional
// update under a mutex.
type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.ImageAccessToken
}

func (m *memTokenStore) Insert(ctx context.Context, tok *model.ImageAccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *tok
	m.tokens[tok.ID] = &copied
	return nil
}

func (m *memTokenStore) Consume(ctx context.Context, tokenID, ip, ua string, now time.Time) (*model.ImageAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[tokenID]
	if !ok || tok.UsedAt != nil || !tok.ExpiresAt.After(now) {
		return nil, nil
	}
	before := *tok
	tok.UsedAt = &now
	tok.UsedByIP = ip
	tok.UsedByUserAgent = ua
	return &before, nil
}

func (m *memTokenStore) Get(ctx context.Context, tokenID string) (*model.ImageAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	copied := *tok
	return &copied, nil
}

type testEnv struct {
	handler http.Handler
	users   *memUserStore
	audits  *memAuditStore
	authSvc *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := newMemUserStore()
	audits := &memAuditStore{}
	tokens := jwtauth.NewManager("access-signing-key-for-tests!", "image-signing-key-for-tests!!",
		15*time.Minute, 7*24*time.Hour, 90*time.Second)
	authSvc := auth.NewService(users, tokens, 7*24*time.Hour)
	auditSvc := audit.NewService(audits)
	router := dispatch.NewRouter(dispatch.NewAuthenticator(tokens, users), auditSvc)

	server := NewServer(Deps{
		AuthService:  authSvc,
		Users:        users,
		CSRF:         auth.NewCSRF("csrf-secret-for-tests"),
		Tokens:       tokens,
		Router:       router,
		AuditService: auditSvc,
		ImageTokens:  imagetoken.NewService(&memTokenStore{tokens: map[string]*model.ImageAccessToken{}}, 90*time.Second),
		Images:       imageconn.NewDemo(),
		LoginLimiter: ratelimit.NewInProcess(600, 100),
		APILimiter:   ratelimit.NewInProcess(600, 100),
		Cookies: CookieConfig{
			Secure:     false,
			SameSite:   http.SameSiteLaxMode,
			RefreshTTL: 7 * 24 * time.Hour,
		},
	})
	return &testEnv{handler: server.Routes(nil), users: users, audits: audits, authSvc: authSvc}
}

func (e *testEnv) addUser(t *testing.T, username, password string, perms ...model.Permission) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &model.User{
		ID: "id-" + username, TenantID: "t1", Username: username,
		Email: username + "@bank.example", PasswordHash: hash, IsActive: true,
		Roles: []model.Role{{ID: "r-" + username, Name: "test-role", Permissions: perms}},
	}
	e.users.users[username] = u
	return u
}

func postJSON(t *testing.T, h http.Handler, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders_OnEveryResponse(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store, no-cache, must-revalidate, private",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("every response must carry a request ID")
	}
}

func TestLogin_SetsCookiesAndReturnsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", "correct-horse-battery")

	rec := postJSON(t, env.handler, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "correct-horse-battery",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.AccessToken == "" {
		t.Fatalf("expected an access token, body %s", rec.Body.String())
	}

	var sawRefresh, sawCSRF bool
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case refreshCookieName:
			sawRefresh = true
			if !c.HttpOnly {
				t.Errorf("refresh cookie must be HttpOnly")
			}
			if c.Path != refreshCookiePath {
				t.Errorf("refresh cookie path = %q", c.Path)
			}
		case csrfCookieName:
			sawCSRF = true
			if c.HttpOnly {
				t.Errorf("csrf cookie must be readable by the page")
			}
		}
	}
	if !sawRefresh || !sawCSRF {
		t.Fatalf("expected both auth cookies, refresh=%v csrf=%v", sawRefresh, sawCSRF)
	}
	if !env.audits.has(model.AuditLoginSuccess) {
		t.Fatalf("login must be audited")
	}
}

func TestLogin_WrongPasswordAudited(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", "correct-horse-battery")

	rec := postJSON(t, env.handler, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", rec.Code)
	}
	if !env.audits.has(model.AuditLoginFailure) {
		t.Fatalf("failed login must be audited")
	}
}

func TestRefresh_RejectsMissingCSRFHeader(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", "correct-horse-battery")

	login := postJSON(t, env.handler, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "correct-horse-battery",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader("{}"))
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	// No X-CSRF-Token header.
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("refresh without CSRF header must 403, got %d", rec.Code)
	}
}

func TestRefresh_RotatesAndOldTokenDies(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", "correct-horse-battery")

	login := postJSON(t, env.handler, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "correct-horse-battery",
	})
	cookies := login.Result().Cookies()
	var csrfValue string
	for _, c := range cookies {
		if c.Name == csrfCookieName {
			csrfValue = c.Value
		}
	}

	refresh := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader("{}"))
		for _, c := range cookies {
			req.AddCookie(c)
		}
		req.Header.Set("X-CSRF-Token", csrfValue)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	first := refresh()
	if first.Code != http.StatusOK {
		t.Fatalf("first refresh: %d %s", first.Code, first.Body.String())
	}
	// Replaying the original (now-revoked) refresh token must fail.
	second := refresh()
	if second.Code == http.StatusOK {
		t.Fatalf("replayed refresh token must be rejected after rotation")
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestPermissionDenied_AuditedAndForbidden(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "viewer", "correct-horse-battery") // no permissions at all
	access, _, err := env.authSvc.IssueTokens(context.Background(), u, "10.0.0.1", "test", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := postJSON(t, env.handler, "/api/v1/images/tokens", access, map[string]any{
		"image_ids": []string{"img1"},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d", rec.Code)
	}
	if !env.audits.has(model.AuditPermissionDenied) {
		t.Fatalf("denial must be audited")
	}
}

func TestImageToken_MintConsumeOnce(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "reviewer", "correct-horse-battery", model.PermCheckImageView)
	access, _, err := env.authSvc.IssueTokens(context.Background(), u, "10.0.0.1", "test", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mint := postJSON(t, env.handler, "/api/v1/images/tokens", access, map[string]any{
		"image_ids": []string{"img1"},
	})
	if mint.Code != http.StatusCreated {
		t.Fatalf("mint: %d %s", mint.Code, mint.Body.String())
	}
	var minted struct {
		Tokens []struct {
			ImageURL string `json:"image_url"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(mint.Body.Bytes(), &minted); err != nil || len(minted.Tokens) != 1 {
		t.Fatalf("mint body: %s", mint.Body.String())
	}

	fetch := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, minted.Tokens[0].ImageURL, nil)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	first := fetch()
	if first.Code != http.StatusOK {
		t.Fatalf("first fetch: %d %s", first.Code, first.Body.String())
	}
	if got := first.Header().Get("Cache-Control"); got != "private, no-store, no-cache, must-revalidate" {
		t.Errorf("image Cache-Control = %q", got)
	}
	if got := first.Header().Get("Referrer-Policy"); got != "no-referrer" {
		t.Errorf("image Referrer-Policy = %q", got)
	}

	second := fetch()
	if second.Code != http.StatusGone {
		t.Fatalf("second fetch must be 410 Gone, got %d", second.Code)
	}

	if !env.audits.has(model.AuditImageTokenMinted) || !env.audits.has(model.AuditImageTokenUsed) {
		t.Fatalf("token mint and use must be audited")
	}
	if !env.audits.has(model.AuditImageTokenInvalid) {
		t.Fatalf("reuse attempt must be audited as IMAGE_TOKEN_INVALID")
	}
}
