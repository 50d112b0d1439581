package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/jwtauth"
	"github.com/jmalloway/checksub001/pkg/model"
)

type fakeStore struct {
	users    map[string]*model.User
	sessions map[string]*model.UserSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*model.User{}, sessions: map[string]*model.UserSession{}}
}

func (f *fakeStore) GetUserByUsernameOrEmail(ctx context.Context, tenantID, usernameOrEmail string) (*model.User, error) {
	u, ok := f.users[usernameOrEmail]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (f *fakeStore) IncrementFailedAttempts(ctx context.Context, userID string, lockUntil *time.Time) error {
	for _, u := range f.users {
		if u.ID == userID {
			u.FailedLoginAttempts++
			u.LockedUntil = lockUntil
		}
	}
	return nil
}

func (f *fakeStore) ResetFailedAttempts(ctx context.Context, userID string) error {
	for _, u := range f.users {
		if u.ID == userID {
			u.FailedLoginAttempts = 0
			u.LockedUntil = nil
		}
	}
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, sess *model.UserSession) error {
	f.sessions[sess.RefreshTokenHash] = sess
	return nil
}

func (f *fakeStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.UserSession, error) {
	return f.sessions[tokenHash], nil
}

func (f *fakeStore) RevokeSession(ctx context.Context, sessionID string) error {
	for _, s := range f.sessions {
		if s.ID == sessionID {
			s.IsActive = false
		}
	}
	return nil
}

func (f *fakeStore) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	for _, u := range f.users {
		if u.ID == userID {
			u.PasswordHash = passwordHash
		}
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	tokens := jwtauth.NewManager("secret-key-for-tests", "image-key-for-tests", 15*time.Minute, 7*24*time.Hour, 90*time.Second)
	svc := NewService(store, tokens, 7*24*time.Hour)
	return svc, store
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func TestAuthenticate_WrongPasswordLocksAfterFiveAttempts(t *testing.T) {
	svc, store := newTestService(t)
	u := &model.User{ID: "u1", TenantID: "t1", Username: "alice", PasswordHash: mustHash(t, "correct-horse"), IsActive: true}
	store.users["alice"] = u

	for i := 0; i < 5; i++ {
		if _, err := svc.Authenticate(context.Background(), "t1", "alice", "wrong", "", ""); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if u.LockedUntil == nil {
		t.Fatalf("expected account to be locked after 5 failed attempts")
	}

	if _, err := svc.Authenticate(context.Background(), "t1", "alice", "correct-horse", "", ""); err != ErrAccountLocked {
		t.Fatalf("expected ErrAccountLocked even with correct password, got %v", err)
	}
}

func TestAuthenticate_MFARequiredWhenEnabled(t *testing.T) {
	svc, store := newTestService(t)
	secret, _, err := GenerateTOTPSecret("checkops", "bob@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	store.users["bob"] = &model.User{
		ID: "u2", TenantID: "t1", Username: "bob",
		PasswordHash: mustHash(t, "hunter2"), IsActive: true,
		MFAEnabled: true, MFASecret: secret,
	}

	res, err := svc.Authenticate(context.Background(), "t1", "bob", "hunter2", "", "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !res.MFARequired {
		t.Fatalf("expected MFA to be required")
	}
}

func TestAuthenticate_IPAllowlistRejectsUnlistedIP(t *testing.T) {
	svc, store := newTestService(t)
	store.users["carol"] = &model.User{
		ID: "u3", TenantID: "t1", Username: "carol",
		PasswordHash: mustHash(t, "pw12345"), IsActive: true,
		AllowedIPs: []string{"10.0.0.5"},
	}

	if _, err := svc.Authenticate(context.Background(), "t1", "carol", "pw12345", "", "203.0.113.9"); err != ErrIPNotAllowed {
		t.Fatalf("expected ErrIPNotAllowed, got %v", err)
	}
}

func TestIssueTokens_ThenRotateRefreshTokenRevokesOldSession(t *testing.T) {
	svc, store := newTestService(t)
	u := &model.User{ID: "u4", TenantID: "t1", Username: "dave", IsActive: true}

	_, refresh, err := svc.IssueTokens(context.Background(), u, "10.0.0.1", "test-agent", "fp-1")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	oldSession := store.sessions[hashToken(refresh)]
	if oldSession == nil || !oldSession.IsActive {
		t.Fatalf("expected active session to be recorded")
	}

	_, newRefresh, err := svc.RotateRefreshToken(context.Background(), u, refresh, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if newRefresh == refresh {
		t.Fatalf("expected a new refresh token")
	}
	if oldSession.IsActive {
		t.Fatalf("expected old session to be revoked after rotation")
	}

	if _, _, err := svc.RotateRefreshToken(context.Background(), u, refresh, "10.0.0.1", "test-agent"); err == nil {
		t.Fatalf("expected rotation of an already-revoked refresh token to fail")
	}
}

func TestChangePassword_RevokesAllActiveSessions(t *testing.T) {
	svc, store := newTestService(t)
	u := &model.User{ID: "u5", TenantID: "t1", Username: "erin", PasswordHash: mustHash(t, "old-password"), IsActive: true}
	store.users["erin"] = u

	for i := 0; i < 3; i++ {
		if _, _, err := svc.IssueTokens(context.Background(), u, "10.0.0.1", "agent", ""); err != nil {
			t.Fatalf("issue tokens: %v", err)
		}
	}

	if _, err := svc.ChangePassword(context.Background(), u, "wrong", "new-password-123"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for wrong current password, got %v", err)
	}

	revoked, err := svc.ChangePassword(context.Background(), u, "old-password", "new-password-123")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", revoked)
	}
	for _, s := range store.sessions {
		if s.IsActive {
			t.Fatalf("expected every session to be revoked")
		}
	}
	if !CheckPassword("new-password-123", u.PasswordHash) {
		t.Fatalf("expected new password to verify")
	}
}

func TestCSRF_VerifyRejectsTokenForDifferentSession(t *testing.T) {
	csrf := NewCSRF("csrf-secret")
	tok, err := csrf.Issue("session-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !csrf.Verify("session-a", tok) {
		t.Fatalf("expected token to verify for its own session")
	}
	if csrf.Verify("session-b", tok) {
		t.Fatalf("expected token to be rejected for a different session")
	}
}
