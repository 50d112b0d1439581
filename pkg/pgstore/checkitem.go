package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/checkitem"
	"github.com/jmalloway/checksub001/pkg/database"
	"github.com/jmalloway/checksub001/pkg/model"
)

// CheckItemStore implements checkitem.Store.
type CheckItemStore struct {
	db *sql.DB
}

// priorityExpr derives a queue-ordering priority from risk_level since
// check_items has no stored priority column; it mirrors model.riskSeverity.
const priorityExpr = `(CASE risk_level
	WHEN 'critical' THEN 3
	WHEN 'high' THEN 2
	WHEN 'medium' THEN 1
	ELSE 0 END)`

func NewCheckItemStore(db *sql.DB) *CheckItemStore {
	return &CheckItemStore{db: db}
}

func (s *CheckItemStore) PriorCheckNumbers(ctx context.Context, tenantID, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT check_number FROM check_items
		WHERE tenant_id = $1 AND account_id = $2
		ORDER BY presented_date DESC LIMIT 50`, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: prior check numbers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("pgstore: scan check number: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *CheckItemStore) LoadPolicyContext(ctx context.Context, tenantID string) ([]model.PolicyVersion, map[string]model.Policy, error) {
	policyRows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, status, is_default, applies_to_account_types
		FROM policies WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: load policies: %w", err)
	}
	defer policyRows.Close()

	policies := make(map[string]model.Policy)
	for policyRows.Next() {
		var p model.Policy
		var status string
		var accountTypes pq.StringArray
		if err := policyRows.Scan(&p.ID, &p.TenantID, &p.Name, &status, &p.IsDefault, &accountTypes); err != nil {
			return nil, nil, fmt.Errorf("pgstore: scan policy: %w", err)
		}
		p.Status = model.PolicyStatus(status)
		for _, v := range accountTypes {
			p.AppliesToAccountTypes = append(p.AppliesToAccountTypes, model.AccountType(v))
		}
		policies[p.ID] = p
	}
	if err := policyRows.Err(); err != nil {
		return nil, nil, err
	}

	versionRows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, tenant_id, effective_date, is_current
		FROM policy_versions WHERE tenant_id = $1 AND is_current = true`, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: load policy versions: %w", err)
	}
	defer versionRows.Close()

	var versions []model.PolicyVersion
	for versionRows.Next() {
		var v model.PolicyVersion
		if err := versionRows.Scan(&v.ID, &v.PolicyID, &v.TenantID, &v.EffectiveDate, &v.IsCurrent); err != nil {
			return nil, nil, fmt.Errorf("pgstore: scan policy version: %w", err)
		}
		rules, err := s.loadRules(ctx, v.ID)
		if err != nil {
			return nil, nil, err
		}
		v.Rules = rules
		versions = append(versions, v)
	}
	return versions, policies, versionRows.Err()
}

func (s *CheckItemStore) loadRules(ctx context.Context, versionID string) ([]model.PolicyRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_version_id, name, rule_type, priority, is_enabled,
		       conditions, actions, amount_threshold, created_at
		FROM policy_rules WHERE policy_version_id = $1 ORDER BY priority DESC, created_at ASC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load policy rules: %w", err)
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
		if amountThreshold.Valid {
			v := model.Money(amountThreshold.Int64)
			r.AmountThreshold = &v
		}
		if err := unmarshalJSONColumn(conditionsJSON, &r.Conditions); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal rule conditions: %w", err)
		}
		if err := unmarshalJSONColumn(actionsJSON, &r.Actions); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal rule actions: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CheckItemStore) Upsert(ctx context.Context, item *model.CheckItem) error {
	_, err := s.db.ExecContext(ctx, upsertCheckItemSQL, checkItemArgs(item)...)
	if err != nil {
		return fmt.Errorf("pgstore: upsert check item: %w", err)
	}
	return nil
}

// CheckItemReadStore implements checkitem.ReadStore for the list and
// adjacent-navigation endpoints. It runs every query through TenantDB's
// scoped helpers: the tenant predicate's value is always bound from the
// request context, never from a caller-supplied argument, and a request
// with no bound tenant fails closed before any SQL runs.
type CheckItemReadStore struct {
	db *database.TenantDB
}

func NewCheckItemReadStore(db *database.TenantDB) *CheckItemReadStore {
	return &CheckItemReadStore{db: db}
}

func (s *CheckItemReadStore) List(ctx context.Context, filter checkitem.Filter, page checkitem.Page) (checkitem.ListResult, error) {
	where, args := filterClause(filter)
	// The scoped helpers append the context tenant as the final argument.
	countRow, err := s.db.QueryRowScoped(ctx,
		fmt.Sprintf(`SELECT count(*) FROM check_items %s tenant_id = $%d`, andWhere(where), len(args)+1),
		args...)
	if err != nil {
		return checkitem.ListResult{}, err
	}
	var total int
	if err := countRow.Scan(&total); err != nil {
		return checkitem.ListResult{}, fmt.Errorf("pgstore: count check items: %w", err)
	}

	args = append(args, page.PageSize, (page.PageNumber-1)*page.PageSize)
	query := fmt.Sprintf(`
		SELECT %s FROM check_items %s tenant_id = $%d
		ORDER BY `+priorityExpr+` DESC, presented_date ASC, id ASC
		LIMIT $%d OFFSET $%d`, checkItemColumns, andWhere(where), len(args)+1, len(args)-1, len(args))
	rows, err := s.db.QueryScoped(ctx, query, args...)
	if err != nil {
		return checkitem.ListResult{}, fmt.Errorf("pgstore: list check items: %w", err)
	}
	defer rows.Close()

	items, err := scanCheckItems(rows)
	if err != nil {
		return checkitem.ListResult{}, err
	}
	return checkitem.ListResult{Items: items, TotalCount: total}, nil
}

func (s *CheckItemReadStore) Adjacent(ctx context.Context, itemID string, filter checkitem.Filter) (*model.CheckItem, *model.CheckItem, error) {
	where, args := filterClause(filter)
	args = append(args, itemID)
	anchor := len(args)
	tenantIdx := len(args) + 1
	prevQuery := fmt.Sprintf(`
		SELECT %s FROM check_items %s tenant_id = $%d AND (-`+priorityExpr+`, presented_date, id) <
			(SELECT -`+priorityExpr+`, presented_date, id FROM check_items WHERE id = $%d AND tenant_id = $%d)
		ORDER BY `+priorityExpr+` ASC, presented_date DESC, id DESC LIMIT 1`,
		checkItemColumns, andWhere(where), tenantIdx, anchor, tenantIdx)
	nextQuery := fmt.Sprintf(`
		SELECT %s FROM check_items %s tenant_id = $%d AND (-`+priorityExpr+`, presented_date, id) >
			(SELECT -`+priorityExpr+`, presented_date, id FROM check_items WHERE id = $%d AND tenant_id = $%d)
		ORDER BY `+priorityExpr+` DESC, presented_date ASC, id ASC LIMIT 1`,
		checkItemColumns, andWhere(where), tenantIdx, anchor, tenantIdx)

	prev, err := s.scanOne(ctx, prevQuery, args...)
	if err != nil {
		return nil, nil, err
	}
	next, err := s.scanOne(ctx, nextQuery, args...)
	if err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

// GetByID scopes the lookup to the context tenant, so a cross-tenant probe
// resolves to no rows and surfaces as not-found.
func (s *CheckItemReadStore) GetByID(ctx context.Context, itemID string) (*model.CheckItem, error) {
	return s.scanOne(ctx,
		fmt.Sprintf(`SELECT %s FROM check_items WHERE id = $1 AND tenant_id = $2`, checkItemColumns),
		itemID)
}

func (s *CheckItemReadStore) scanOne(ctx context.Context, query string, args ...any) (*model.CheckItem, error) {
	row, err := s.db.QueryRowScoped(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	item, err := scanCheckItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan check item: %w", err)
	}
	return item, nil
}

// andWhere glues the tenant predicate onto an optional filter clause.
func andWhere(where string) string {
	if where == "" {
		return "WHERE"
	}
	return where + " AND"
}

func filterClause(f checkitem.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(f.Status) > 0 {
		statuses := make([]string, len(f.Status))
		for i, st := range f.Status {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", pq.StringArray(statuses))
	}
	if len(f.RiskLevel) > 0 {
		levels := make([]string, len(f.RiskLevel))
		for i, rl := range f.RiskLevel {
			levels[i] = string(rl)
		}
		add("risk_level = ANY($%d)", pq.StringArray(levels))
	}
	if f.AmountMin != nil {
		add("amount >= $%d", int64(*f.AmountMin))
	}
	if f.AmountMax != nil {
		add("amount <= $%d", int64(*f.AmountMax))
	}
	if f.QueueID != nil {
		add("queue_id = $%d", *f.QueueID)
	}
	if f.AssignedUserID != nil {
		args = append(args, *f.AssignedUserID)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(assigned_reviewer_id = $%d OR assigned_approver_id = $%d)", n, n))
	}
	if f.HasAIFlags != nil {
		if *f.HasAIFlags {
			conds = append(conds, "cardinality(ai_flags_reviewed) > 0")
		} else {
			conds = append(conds, "cardinality(ai_flags_reviewed) = 0")
		}
	}
	if f.SLABreachedOnly != nil && *f.SLABreachedOnly {
		conds = append(conds, "sla_breached = true")
	}
	if f.PresentedFrom != nil {
		add("presented_date >= $%d", *f.PresentedFrom)
	}
	if f.PresentedTo != nil {
		add("presented_date <= $%d", *f.PresentedTo)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func unmarshalJSONColumn(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
