package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/model"
)

// SeedStore implements seed.Applier for development/demo bootstrap.
type SeedStore struct {
	db       *sql.DB
	policies *PolicyStore
}

func NewSeedStore(db *sql.DB) *SeedStore {
	return &SeedStore{db: db, policies: NewPolicyStore(db)}
}

func (s *SeedStore) CreateQueue(ctx context.Context, q *model.Queue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queues (id, tenant_id, name) VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id, name) DO NOTHING`, q.ID, q.TenantID, q.Name)
	if err != nil {
		return fmt.Errorf("pgstore: seed queue: %w", err)
	}
	return nil
}

func (s *SeedStore) CreateUser(ctx context.Context, u *model.User, roles []string, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, tenant_id, username, email, password_hash, allowed_ips,
			is_superuser, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.TenantID, u.Username, u.Email, passwordHash, pq.StringArray(u.AllowedIPs),
		u.IsSuperuser, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: seed user: %w", err)
	}
	for _, roleName := range roles {
		roleID, err := s.ensureRole(ctx, roleName)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO user_roles (tenant_id, user_id, role_id)
			VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`, u.TenantID, u.ID, roleID); err != nil {
			return fmt.Errorf("pgstore: seed user role: %w", err)
		}
	}
	return nil
}

func (s *SeedStore) ensureRole(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("pgstore: lookup role: %w", err)
	}
	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO roles (id, name) VALUES ($1,$2)`, id, name); err != nil {
		return "", fmt.Errorf("pgstore: seed role: %w", err)
	}
	for _, perm := range defaultRolePermissions[name] {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, resource, action)
			VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`, id, perm.Resource, perm.Action); err != nil {
			return "", fmt.Errorf("pgstore: seed role permission: %w", err)
		}
	}
	return id, nil
}

// defaultRolePermissions maps the well-known role names fixtures use onto
// the static permission catalog.
var defaultRolePermissions = map[string][]model.Permission{
	"reviewer": {
		model.PermCheckItemView, model.PermCheckItemReview, model.PermCheckItemDecide,
		model.PermCheckImageView,
	},
	"approver": {
		model.PermCheckItemView, model.PermCheckItemReview, model.PermCheckItemDecide,
		model.PermCheckImageView, model.PermCheckItemAssign,
	},
	"supervisor": {
		model.PermCheckItemView, model.PermCheckItemReview, model.PermCheckItemDecide,
		model.PermCheckItemAssign, model.PermCheckImageView, model.PermDecisionOverride,
		model.PermAuditView, model.PermFraudView, model.PermFraudSubmit,
	},
	"admin": {
		model.PermCheckItemView, model.PermCheckItemAssign, model.PermPolicyManage,
		model.PermUserManage, model.PermAuditView, model.PermAuditExport,
		model.PermFraudView, model.PermFraudSubmit,
	},
}

func (s *SeedStore) CreateEntitlement(ctx context.Context, e *model.ApprovalEntitlement) error {
	var accountTypes, riskLevels pq.StringArray
	for _, at := range e.AllowedAccountTypes {
		accountTypes = append(accountTypes, string(at))
	}
	for _, rl := range e.AllowedRiskLevels {
		riskLevels = append(riskLevels, string(rl))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_entitlements (
			id, tenant_id, user_id, role_id, entitlement_type, min_amount, max_amount,
			allowed_account_types, allowed_queue_ids, allowed_risk_levels,
			allowed_business_lines, is_active, effective_from, effective_until
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.TenantID, e.UserID, e.RoleID, string(e.EntitlementType),
		moneyArg(e.MinAmount), moneyArg(e.MaxAmount),
		accountTypes, pq.StringArray(e.AllowedQueueIDs), riskLevels,
		pq.StringArray(e.AllowedBusinessLines), e.IsActive, e.EffectiveFrom, e.EffectiveUntil)
	if err != nil {
		return fmt.Errorf("pgstore: seed entitlement: %w", err)
	}
	return nil
}

func (s *SeedStore) CreatePolicy(ctx context.Context, p *model.Policy, version *model.PolicyVersion) error {
	if err := s.policies.CreatePolicy(ctx, p); err != nil {
		return err
	}
	return s.policies.CreateVersion(ctx, version)
}
