package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/model"
)

// AuthStore implements auth.Store.
type AuthStore struct {
	db *sql.DB
}

func NewAuthStore(db *sql.DB) *AuthStore {
	return &AuthStore{db: db}
}

func (s *AuthStore) GetUserByUsernameOrEmail(ctx context.Context, tenantID, usernameOrEmail string) (*model.User, error) {
	// Login resolution runs before any tenant is known, so an empty
	// tenantID searches the whole auth namespace; usernames are globally
	// unique across it. Every post-login lookup passes the
	// caller's tenant.
	query := `
		SELECT u.id, u.tenant_id, u.username, u.email, u.password_hash, u.mfa_enabled,
		       u.mfa_secret, u.failed_login_attempts, u.locked_until, u.last_login,
		       u.allowed_ips, u.is_superuser, u.is_active, u.created_at, u.updated_at
		FROM users u
		WHERE (u.username = $1 OR u.email = $1)`
	args := []any{usernameOrEmail}
	if tenantID != "" {
		query += ` AND u.tenant_id = $2`
		args = append(args, tenantID)
	}
	row := s.db.QueryRowContext(ctx, query, args...)

	var u model.User
	var allowedIPs pq.StringArray
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash, &u.MFAEnabled,
		&u.MFASecret, &u.FailedLoginAttempts, &u.LockedUntil, &u.LastLogin,
		&allowedIPs, &u.IsSuperuser, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get user: %w", err)
	}
	u.AllowedIPs = []string(allowedIPs)

	roles, roleIDs, err := s.loadRoles(ctx, u.TenantID, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	u.RoleIDs = roleIDs
	return &u, nil
}

func (s *AuthStore) loadRoles(ctx context.Context, tenantID, userID string) ([]model.Role, []string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.tenant_id = $1 AND ur.user_id = $2`, tenantID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: load roles: %w", err)
	}
	defer rows.Close()

	var roles []model.Role
	var ids []string
	for rows.Next() {
		var r model.Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, nil, fmt.Errorf("pgstore: scan role: %w", err)
		}
		perms, err := s.loadRolePermissions(ctx, r.ID)
		if err != nil {
			return nil, nil, err
		}
		r.Permissions = perms
		roles = append(roles, r)
		ids = append(ids, r.ID)
	}
	return roles, ids, rows.Err()
}

func (s *AuthStore) loadRolePermissions(ctx context.Context, roleID string) ([]model.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource, action FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load role permissions: %w", err)
	}
	defer rows.Close()
	var perms []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("pgstore: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *AuthStore) IncrementFailedAttempts(ctx context.Context, userID string, lockUntil *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1, locked_until = $2
		WHERE id = $1`, userID, lockUntil)
	if err != nil {
		return fmt.Errorf("pgstore: increment failed attempts: %w", err)
	}
	return nil
}

func (s *AuthStore) ResetFailedAttempts(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login = now()
		WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("pgstore: reset failed attempts: %w", err)
	}
	return nil
}

func (s *AuthStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("pgstore: update password hash: %w", err)
	}
	return nil
}

func (s *AuthStore) CreateSession(ctx context.Context, sess *model.UserSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (
			id, tenant_id, user_id, refresh_token_hash, device_fingerprint,
			ip_address, user_agent, expires_at, is_active, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sess.ID, sess.TenantID, sess.UserID, sess.RefreshTokenHash, sess.DeviceFingerprint,
		sess.IPAddress, sess.UserAgent, sess.ExpiresAt, sess.IsActive, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: create session: %w", err)
	}
	return nil
}

func (s *AuthStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.UserSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, refresh_token_hash, device_fingerprint,
		       ip_address, user_agent, expires_at, is_active, revoked_at, created_at
		FROM user_sessions WHERE refresh_token_hash = $1`, tokenHash)
	var sess model.UserSession
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.UserID, &sess.RefreshTokenHash, &sess.DeviceFingerprint,
		&sess.IPAddress, &sess.UserAgent, &sess.ExpiresAt, &sess.IsActive, &sess.RevokedAt, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get session: %w", err)
	}
	return &sess, nil
}

func (s *AuthStore) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions SET is_active = false, revoked_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("pgstore: revoke session: %w", err)
	}
	return nil
}

func (s *AuthStore) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions SET is_active = false, revoked_at = now()
		WHERE user_id = $1 AND is_active = true`, userID)
	if err != nil {
		return 0, fmt.Errorf("pgstore: revoke all sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pgstore: revoke all sessions rows affected: %w", err)
	}
	return int(n), nil
}

// GetActiveUser implements dispatch.UserLookup, re-reading the user row
// (with roles) on every request so a deactivated account is rejected
// immediately rather than waiting out the access token's TTL.
func (s *AuthStore) GetActiveUser(ctx context.Context, tenantID, userID string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, username, email, password_hash, mfa_enabled, mfa_secret,
		       failed_login_attempts, locked_until, last_login, allowed_ips,
		       is_superuser, is_active, created_at, updated_at
		FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, userID)

	var u model.User
	var allowedIPs pq.StringArray
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash, &u.MFAEnabled,
		&u.MFASecret, &u.FailedLoginAttempts, &u.LockedUntil, &u.LastLogin, &allowedIPs,
		&u.IsSuperuser, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get active user: %w", err)
	}
	u.AllowedIPs = []string(allowedIPs)

	roles, roleIDs, err := s.loadRoles(ctx, tenantID, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	u.RoleIDs = roleIDs
	return &u, nil
}
