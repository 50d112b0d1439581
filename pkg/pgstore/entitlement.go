package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/model"
)

// EntitlementStore implements entitlement.Store.
type EntitlementStore struct {
	db *sql.DB
}

func NewEntitlementStore(db *sql.DB) *EntitlementStore {
	return &EntitlementStore{db: db}
}

func (s *EntitlementStore) ListForUser(ctx context.Context, tenantID, userID string, roleIDs []string, entType model.EntitlementType) ([]model.ApprovalEntitlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, role_id, entitlement_type, min_amount, max_amount,
		       allowed_account_types, allowed_queue_ids, allowed_risk_levels,
		       allowed_business_lines, is_active, effective_from, effective_until
		FROM approval_entitlements
		WHERE tenant_id = $1 AND entitlement_type = $2 AND is_active = true
		  AND (user_id = $3 OR role_id = ANY($4))`,
		tenantID, string(entType), userID, pq.StringArray(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("pgstore: list entitlements: %w", err)
	}
	defer rows.Close()

	var out []model.ApprovalEntitlement
	for rows.Next() {
		var e model.ApprovalEntitlement
		var entTypeStr string
		var accountTypes, queueIDs, riskLevels, businessLines pq.StringArray
		var minAmount, maxAmount sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.RoleID, &entTypeStr,
			&minAmount, &maxAmount, &accountTypes, &queueIDs, &riskLevels, &businessLines,
			&e.IsActive, &e.EffectiveFrom, &e.EffectiveUntil); err != nil {
			return nil, fmt.Errorf("pgstore: scan entitlement: %w", err)
		}
		e.EntitlementType = model.EntitlementType(entTypeStr)
		if minAmount.Valid {
			v := model.Money(minAmount.Int64)
			e.MinAmount = &v
		}
		if maxAmount.Valid {
			v := model.Money(maxAmount.Int64)
			e.MaxAmount = &v
		}
		for _, v := range accountTypes {
			e.AllowedAccountTypes = append(e.AllowedAccountTypes, model.AccountType(v))
		}
		e.AllowedQueueIDs = []string(queueIDs)
		for _, v := range riskLevels {
			e.AllowedRiskLevels = append(e.AllowedRiskLevels, model.RiskLevel(v))
		}
		e.AllowedBusinessLines = []string(businessLines)
		out = append(out, e)
	}
	return out, rows.Err()
}
