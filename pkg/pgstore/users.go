package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/model"
)

// UserAdminStore backs the /users admin endpoints: tenant-scoped listing,
// creation and mutation of accounts plus role grants. Password hashes are
// supplied already-hashed by the auth service; this store never sees a
// plaintext credential.
type UserAdminStore struct {
	db *sql.DB
}

func NewUserAdminStore(db *sql.DB) *UserAdminStore {
	return &UserAdminStore{db: db}
}

const userColumns = `
	id, tenant_id, username, email, password_hash, mfa_enabled, mfa_secret,
	failed_login_attempts, locked_until, last_login, allowed_ips,
	is_superuser, is_active, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var allowedIPs pq.StringArray
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash, &u.MFAEnabled,
		&u.MFASecret, &u.FailedLoginAttempts, &u.LockedUntil, &u.LastLogin, &allowedIPs,
		&u.IsSuperuser, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.AllowedIPs = []string(allowedIPs)
	return &u, nil
}

func (s *UserAdminStore) List(ctx context.Context, tenantID string, limit, offset int) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM users WHERE tenant_id = $1
		ORDER BY username ASC LIMIT $2 OFFSET $3`, userColumns),
		tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *UserAdminStore) Get(ctx context.Context, tenantID, userID string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM users WHERE tenant_id = $1 AND id = $2`, userColumns),
		tenantID, userID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get user: %w", err)
	}
	return u, nil
}

func (s *UserAdminStore) Create(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, tenant_id, username, email, password_hash, mfa_enabled, mfa_secret,
			allowed_ips, is_superuser, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		u.ID, u.TenantID, u.Username, u.Email, u.PasswordHash, u.MFAEnabled, u.MFASecret,
		pq.StringArray(u.AllowedIPs), u.IsSuperuser, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: create user: %w", err)
	}
	return nil
}

// Update mutates the admin-editable fields only; credentials and lockout
// counters go through AuthStore.
func (s *UserAdminStore) Update(ctx context.Context, u *model.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $3, mfa_enabled = $4, allowed_ips = $5,
			is_superuser = $6, is_active = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2`,
		u.TenantID, u.ID, u.Email, u.MFAEnabled, pq.StringArray(u.AllowedIPs),
		u.IsSuperuser, u.IsActive, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: update user: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *UserAdminStore) GrantRole(ctx context.Context, tenantID, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (tenant_id, user_id, role_id)
		VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`, tenantID, userID, roleID)
	if err != nil {
		return fmt.Errorf("pgstore: grant role: %w", err)
	}
	return nil
}

func (s *UserAdminStore) RevokeRole(ctx context.Context, tenantID, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_roles WHERE tenant_id = $1 AND user_id = $2 AND role_id = $3`,
		tenantID, userID, roleID)
	if err != nil {
		return fmt.Errorf("pgstore: revoke role: %w", err)
	}
	return nil
}

func (s *UserAdminStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list roles: %w", err)
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var r model.Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("pgstore: scan role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
