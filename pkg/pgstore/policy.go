package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/model"
)

// PolicyStore implements policyadmin.Store: CRUD over Policy/PolicyVersion
// /PolicyRule backing the admin surface (GET/POST/PATCH/DELETE
// /policies[...]). Engine selection (LoadPolicyContext) lives on
// CheckItemStore since it is read-only and tenant-scoped the same way the
// rest of C10's ingest path is; this store owns the mutating admin path.
type PolicyStore struct {
	db *sql.DB
}

func NewPolicyStore(db *sql.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

func (s *PolicyStore) ListPolicies(ctx context.Context, tenantID string) ([]model.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, status, is_default, applies_to_account_types
		FROM policies WHERE tenant_id = $1 ORDER BY name ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list policies: %w", err)
	}
	defer rows.Close()

	var out []model.Policy
	for rows.Next() {
		p, err := scanPolicyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PolicyStore) GetPolicy(ctx context.Context, tenantID, policyID string) (*model.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, status, is_default, applies_to_account_types
		FROM policies WHERE tenant_id = $1 AND id = $2`, tenantID, policyID)
	p, err := scanPolicyRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get policy: %w", err)
	}
	return &p, nil
}

type policyScanner interface {
	Scan(dest ...any) error
}

func scanPolicyRow(row policyScanner) (model.Policy, error) {
	var p model.Policy
	var status string
	var accountTypes pq.StringArray
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &status, &p.IsDefault, &accountTypes); err != nil {
		return model.Policy{}, err
	}
	p.Status = model.PolicyStatus(status)
	for _, v := range accountTypes {
		p.AppliesToAccountTypes = append(p.AppliesToAccountTypes, model.AccountType(v))
	}
	return p, nil
}

func (s *PolicyStore) CreatePolicy(ctx context.Context, p *model.Policy) error {
	accountTypes := make(pq.StringArray, len(p.AppliesToAccountTypes))
	for i, a := range p.AppliesToAccountTypes {
		accountTypes[i] = string(a)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (id, tenant_id, name, status, is_default, applies_to_account_types)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.TenantID, p.Name, string(p.Status), p.IsDefault, accountTypes)
	if err != nil {
		return fmt.Errorf("pgstore: create policy: %w", err)
	}
	return nil
}

func (s *PolicyStore) UpdatePolicy(ctx context.Context, p *model.Policy) error {
	accountTypes := make(pq.StringArray, len(p.AppliesToAccountTypes))
	for i, a := range p.AppliesToAccountTypes {
		accountTypes[i] = string(a)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE policies SET name = $3, status = $4, is_default = $5, applies_to_account_types = $6
		WHERE tenant_id = $1 AND id = $2`,
		p.TenantID, p.ID, p.Name, string(p.Status), p.IsDefault, accountTypes)
	if err != nil {
		return fmt.Errorf("pgstore: update policy: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PolicyStore) DeletePolicy(ctx context.Context, tenantID, policyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE tenant_id = $1 AND id = $2`, tenantID, policyID)
	if err != nil {
		return fmt.Errorf("pgstore: delete policy: %w", err)
	}
	return nil
}

func (s *PolicyStore) ListVersions(ctx context.Context, tenantID, policyID string) ([]model.PolicyVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, tenant_id, effective_date, is_current
		FROM policy_versions WHERE tenant_id = $1 AND policy_id = $2
		ORDER BY effective_date DESC`, tenantID, policyID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list policy versions: %w", err)
	}
	defer rows.Close()

	var out []model.PolicyVersion
	for rows.Next() {
		var v model.PolicyVersion
		if err := rows.Scan(&v.ID, &v.PolicyID, &v.TenantID, &v.EffectiveDate, &v.IsCurrent); err != nil {
			return nil, fmt.Errorf("pgstore: scan policy version: %w", err)
		}
		rules, err := s.loadRules(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		v.Rules = rules
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PolicyStore) loadRules(ctx context.Context, versionID string) ([]model.PolicyRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_version_id, name, rule_type, priority, is_enabled,
		       conditions, actions, amount_threshold, created_at
		FROM policy_rules WHERE policy_version_id = $1
		ORDER BY priority DESC, created_at ASC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list policy rules: %w", err)
	}
	defer rows.Close()

	var out []model.PolicyRule
	for rows.Next() {
		var r model.PolicyRule
		var ruleType string
		var conditionsJSON, actionsJSON []byte
		var amountThreshold sql.NullInt64
		if err := rows.Scan(&r.ID, &r.PolicyVersionID, &r.Name, &ruleType, &r.Priority, &r.IsEnabled,
			&conditionsJSON, &actionsJSON, &amountThreshold, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan policy rule: %w", err)
		}
		r.RuleType = model.RuleType(ruleType)
		if err := json.Unmarshal(conditionsJSON, &r.Conditions); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal conditions: %w", err)
		}
		if err := json.Unmarshal(actionsJSON, &r.Actions); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal actions: %w", err)
		}
		if amountThreshold.Valid {
			v := model.Money(amountThreshold.Int64)
			r.AmountThreshold = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateVersion inserts v and every rule it carries, and — if v.IsCurrent
// — demotes every other version of the same policy within the same
// transaction so "exactly one current version per policy" never lapses.
func (s *PolicyStore) CreateVersion(ctx context.Context, v *model.PolicyVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin create version: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO policy_versions (id, policy_id, tenant_id, effective_date, is_current)
		VALUES ($1,$2,$3,$4,$5)`,
		v.ID, v.PolicyID, v.TenantID, v.EffectiveDate, v.IsCurrent); err != nil {
		return fmt.Errorf("pgstore: insert policy version: %w", err)
	}

	if v.IsCurrent {
		if _, err := tx.ExecContext(ctx, `
			UPDATE policy_versions SET is_current = false
			WHERE tenant_id = $1 AND policy_id = $2 AND id != $3`,
			v.TenantID, v.PolicyID, v.ID); err != nil {
			return fmt.Errorf("pgstore: demote prior versions: %w", err)
		}
	}

	for i := range v.Rules {
		r := &v.Rules[i]
		r.PolicyVersionID = v.ID
		conditionsJSON, err := json.Marshal(r.Conditions)
		if err != nil {
			return fmt.Errorf("pgstore: marshal conditions: %w", err)
		}
		actionsJSON, err := json.Marshal(r.Actions)
		if err != nil {
			return fmt.Errorf("pgstore: marshal actions: %w", err)
		}
		var amountThreshold any
		if r.AmountThreshold != nil {
			amountThreshold = int64(*r.AmountThreshold)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO policy_rules (
				id, policy_version_id, name, rule_type, priority, is_enabled,
				conditions, actions, amount_threshold, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			r.ID, r.PolicyVersionID, r.Name, string(r.RuleType), r.Priority, r.IsEnabled,
			conditionsJSON, actionsJSON, amountThreshold, r.CreatedAt); err != nil {
			return fmt.Errorf("pgstore: insert policy rule: %w", err)
		}
	}

	return tx.Commit()
}

// ActivateVersion sets versionID as the sole current version of policyID,
// demoting every sibling version in the same statement's transaction.
func (s *PolicyStore) ActivateVersion(ctx context.Context, tenantID, policyID, versionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin activate version: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE policy_versions SET is_current = true
		WHERE tenant_id = $1 AND policy_id = $2 AND id = $3`,
		tenantID, policyID, versionID)
	if err != nil {
		return fmt.Errorf("pgstore: activate version: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE policy_versions SET is_current = false
		WHERE tenant_id = $1 AND policy_id = $2 AND id != $3`,
		tenantID, policyID, versionID); err != nil {
		return fmt.Errorf("pgstore: demote siblings: %w", err)
	}
	return tx.Commit()
}
