// Package auth implements login, MFA, session rotation, CSRF pairing and
// signed image URL issuance.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmalloway/checksub001/pkg/jwtauth"
	"github.com/jmalloway/checksub001/pkg/model"
)

const (
	maxFailedAttempts = 5
	lockoutDuration   = 30 * time.Minute
)

// Store is the persistence surface the service needs. Implementations live
// in pkg/database-backed adapters; tests use an in-memory fake.
type Store interface {
	GetUserByUsernameOrEmail(ctx context.Context, tenantID, usernameOrEmail string) (*model.User, error)
	IncrementFailedAttempts(ctx context.Context, userID string, lockUntil *time.Time) error
	ResetFailedAttempts(ctx context.Context, userID string) error
	CreateSession(ctx context.Context, sess *model.UserSession) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.UserSession, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeAllSessions(ctx context.Context, userID string) (int, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// Service implements the authentication flows.
type Service struct {
	store    Store
	tokens   *jwtauth.Manager
	now      func() time.Time
	refreshTTL time.Duration
}

func NewService(store Store, tokens *jwtauth.Manager, refreshTTL time.Duration) *Service {
	return &Service{store: store, tokens: tokens, now: time.Now, refreshTTL: refreshTTL}
}

// AuthResult is returned by Authenticate: either a fully-authenticated user
// (MFARequired=false) or a user who passed password checks but still needs
// an MFA code.
type AuthResult struct {
	User         *model.User
	MFARequired  bool
}

// Authenticate verifies username/password, account lock state, and IP
// allowlist, then defers to VerifyMFA if the account has MFA enabled.
func (s *Service) Authenticate(ctx context.Context, tenantID, usernameOrEmail, password, mfaCode, ipAddress string) (*AuthResult, error) {
	user, err := s.store.GetUserByUsernameOrEmail(ctx, tenantID, usernameOrEmail)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if user.LockedUntil != nil && user.LockedUntil.After(s.now()) {
		return nil, ErrAccountLocked
	}

	if !CheckPassword(password, user.PasswordHash) {
		var lockUntil *time.Time
		attempts := user.FailedLoginAttempts + 1
		if attempts >= maxFailedAttempts {
			t := s.now().Add(lockoutDuration)
			lockUntil = &t
		}
		if err := s.store.IncrementFailedAttempts(ctx, user.ID, lockUntil); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if len(user.AllowedIPs) > 0 && !ipAllowed(ipAddress, user.AllowedIPs) {
		return nil, ErrIPNotAllowed
	}

	if user.MFAEnabled && user.MFASecret != "" {
		if mfaCode == "" {
			return &AuthResult{User: user, MFARequired: true}, nil
		}
		if !VerifyTOTP(user.MFASecret, mfaCode) {
			// MFA failures count toward the same lockout as bad passwords.
			var lockUntil *time.Time
			if user.FailedLoginAttempts+1 >= maxFailedAttempts {
				t := s.now().Add(lockoutDuration)
				lockUntil = &t
			}
			if err := s.store.IncrementFailedAttempts(ctx, user.ID, lockUntil); err != nil {
				return nil, err
			}
			return nil, ErrMFAInvalid
		}
	}

	if err := s.store.ResetFailedAttempts(ctx, user.ID); err != nil {
		return nil, err
	}

	return &AuthResult{User: user}, nil
}

// IssueTokens mints a fresh access/refresh pair and records the refresh
// token's session row keyed by its hash (the raw token is never persisted).
func (s *Service) IssueTokens(ctx context.Context, user *model.User, ipAddress, userAgent, deviceFingerprint string) (accessToken, refreshToken string, err error) {
	sessionID := newSessionID()
	roles := roleNames(user)

	accessToken, err = s.tokens.IssueAccessToken(user.TenantID, user.ID, sessionID, roles)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.tokens.IssueRefreshToken(user.TenantID, user.ID, sessionID)
	if err != nil {
		return "", "", err
	}

	sess := &model.UserSession{
		ID:                sessionID,
		TenantID:          user.TenantID,
		UserID:            user.ID,
		RefreshTokenHash:  hashToken(refreshToken),
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
		DeviceFingerprint: deviceFingerprint,
		IsActive:          true,
		CreatedAt:         s.now(),
		ExpiresAt:         s.now().Add(s.refreshTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// RotateRefreshToken validates refreshToken, revokes its session, and
// issues a replacement pair, preserving the device fingerprint. This is the
// refresh-token-rotation invariant: a refresh token is single-use.
func (s *Service) RotateRefreshToken(ctx context.Context, user *model.User, refreshToken, ipAddress, userAgent string) (accessToken, newRefreshToken string, err error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", "", ErrTokenInvalid
	}
	sess, err := s.store.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return "", "", err
	}
	if sess == nil || !sess.IsActive || sess.ExpiresAt.Before(s.now()) {
		return "", "", ErrSessionExpired
	}
	if claims.UserID != user.ID {
		return "", "", ErrTokenInvalid
	}

	if err := s.store.RevokeSession(ctx, sess.ID); err != nil {
		return "", "", err
	}
	return s.IssueTokens(ctx, user, ipAddress, userAgent, sess.DeviceFingerprint)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	sess, err := s.store.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	return s.store.RevokeSession(ctx, sess.ID)
}

func (s *Service) LogoutAllSessions(ctx context.Context, userID string) (int, error) {
	return s.store.RevokeAllSessions(ctx, userID)
}

// ChangePassword re-verifies the current password, stores the new hash, and
// revokes every one of the user's active sessions so stolen refresh tokens
// die with the old password.
func (s *Service) ChangePassword(ctx context.Context, user *model.User, currentPassword, newPassword string) (revoked int, err error) {
	if !CheckPassword(currentPassword, user.PasswordHash) {
		return 0, ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return 0, err
	}
	return s.store.RevokeAllSessions(ctx, user.ID)
}

func roleNames(u *model.User) []string {
	names := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		names[i] = r.Name
	}
	return names
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(b), nil
}

// ipAllowed reports whether ip matches any entry in allowed, each of which
// may be a CIDR block or an exact IPv4/IPv6 address.
func ipAllowed(ip string, allowed []string) bool {
	parsed := net.ParseIP(ip)
	for _, a := range allowed {
		if strings.Contains(a, "/") {
			_, cidr, err := net.ParseCIDR(a)
			if err == nil && parsed != nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if a == ip {
			return true
		}
		if parsed != nil {
			if other := net.ParseIP(a); other != nil && other.Equal(parsed) {
				return true
			}
		}
	}
	return false
}
