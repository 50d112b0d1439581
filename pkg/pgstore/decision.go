package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/decision"
	"github.com/jmalloway/checksub001/pkg/model"
)

// DecisionStore implements decision.Store, running the full decision write
// procedure inside one *sql.Tx per call.
type DecisionStore struct {
	db *sql.DB
}

func NewDecisionStore(db *sql.DB) *DecisionStore {
	return &DecisionStore{db: db}
}

// WithTx opens a transaction, takes a per-tenant advisory lock (so two
// concurrent decisions on different items of the same tenant still
// serialize their audit-chain append), and runs fn against a txStore bound
// to it. Any error from fn rolls the transaction back; a nil error commits.
func (s *DecisionStore) WithTx(ctx context.Context, tenantID string, fn func(decision.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin decision tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return fmt.Errorf("pgstore: decision advisory lock: %w", err)
	}

	if err := fn(&txStore{tx: tx, tenantID: tenantID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit decision tx: %w", err)
	}
	return nil
}

// GetDecision reads one decision outside any transaction, for the
// dual-control approve and override endpoints that resolve the item an
// existing decision belongs to.
func (s *DecisionStore) GetDecision(ctx context.Context, tenantID, decisionID string) (*model.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, check_item_id, decision_type, action, user_id, previous_status,
		       new_status, is_dual_control_required, dual_control_approver_id, notes,
		       reason_codes, ai_assisted, evidence_snapshot, created_at
		FROM decisions WHERE tenant_id = $1 AND id = $2`, tenantID, decisionID)
	return scanDecision(row)
}

// ListByItem returns every decision on an item oldest-first, the order the
// evidence chain verifier expects.
func (s *DecisionStore) ListByItem(ctx context.Context, tenantID, itemID string) ([]model.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, check_item_id, decision_type, action, user_id, previous_status,
		       new_status, is_dual_control_required, dual_control_approver_id, notes,
		       reason_codes, ai_assisted, evidence_snapshot, created_at
		FROM decisions WHERE tenant_id = $1 AND check_item_id = $2
		ORDER BY created_at ASC`, tenantID, itemID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list decisions by item: %w", err)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var d model.Decision
		var decisionType, action, previousStatus, newStatus string
		var reasonCodes pq.StringArray
		if err := rows.Scan(&d.ID, &d.TenantID, &d.CheckItemID, &decisionType, &action, &d.UserID, &previousStatus,
			&newStatus, &d.IsDualControlRequired, &d.DualControlApproverID, &d.Notes,
			&reasonCodes, &d.AIAssisted, &d.EvidenceSnapshot, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan decision: %w", err)
		}
		d.DecisionType = model.DecisionType(decisionType)
		d.Action = model.Action(action)
		d.PreviousStatus = model.Status(previousStatus)
		d.NewStatus = model.Status(newStatus)
		d.ReasonCodes = []string(reasonCodes)
		out = append(out, d)
	}
	return out, rows.Err()
}

type txStore struct {
	tx       *sql.Tx
	tenantID string
}

func (t *txStore) GetItemForUpdate(ctx context.Context, itemID string) (*model.CheckItem, error) {
	row := t.tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM check_items WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, checkItemColumns),
		t.tenantID, itemID)
	item, err := scanCheckItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get item for update: %w", err)
	}
	return item, nil
}

func (t *txStore) LatestDecision(ctx context.Context, itemID string) (*model.Decision, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, check_item_id, decision_type, action, user_id, previous_status,
		       new_status, is_dual_control_required, dual_control_approver_id, notes,
		       reason_codes, ai_assisted, evidence_snapshot, created_at
		FROM decisions WHERE tenant_id = $1 AND check_item_id = $2
		ORDER BY created_at DESC LIMIT 1`, t.tenantID, itemID)
	return scanDecision(row)
}

func (t *txStore) GetDecision(ctx context.Context, decisionID string) (*model.Decision, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, check_item_id, decision_type, action, user_id, previous_status,
		       new_status, is_dual_control_required, dual_control_approver_id, notes,
		       reason_codes, ai_assisted, evidence_snapshot, created_at
		FROM decisions WHERE tenant_id = $1 AND id = $2`, t.tenantID, decisionID)
	return scanDecision(row)
}

func scanDecision(row *sql.Row) (*model.Decision, error) {
	var d model.Decision
	var decisionType, action, previousStatus, newStatus string
	var reasonCodes pq.StringArray
	err := row.Scan(&d.ID, &d.TenantID, &d.CheckItemID, &decisionType, &action, &d.UserID, &previousStatus,
		&newStatus, &d.IsDualControlRequired, &d.DualControlApproverID, &d.Notes,
		&reasonCodes, &d.AIAssisted, &d.EvidenceSnapshot, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan decision: %w", err)
	}
	d.DecisionType = model.DecisionType(decisionType)
	d.Action = model.Action(action)
	d.PreviousStatus = model.Status(previousStatus)
	d.NewStatus = model.Status(newStatus)
	d.ReasonCodes = []string(reasonCodes)
	return &d, nil
}

func (t *txStore) InsertDecision(ctx context.Context, d *model.Decision) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO decisions (
			id, tenant_id, check_item_id, decision_type, action, user_id, previous_status,
			new_status, is_dual_control_required, dual_control_approver_id, notes,
			reason_codes, ai_assisted, evidence_snapshot, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		d.ID, d.TenantID, d.CheckItemID, string(d.DecisionType), string(d.Action), d.UserID, string(d.PreviousStatus),
		string(d.NewStatus), d.IsDualControlRequired, d.DualControlApproverID, d.Notes,
		pq.StringArray(d.ReasonCodes), d.AIAssisted, d.EvidenceSnapshot, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: insert decision: %w", err)
	}
	return nil
}

func (t *txStore) UpdateItem(ctx context.Context, item *model.CheckItem) error {
	_, err := t.tx.ExecContext(ctx, upsertCheckItemSQL, checkItemArgs(item)...)
	if err != nil {
		return fmt.Errorf("pgstore: update item: %w", err)
	}
	return nil
}

// AuditStore returns an audit.Store bound to this same *sql.Tx, so the
// chained audit insert in Decide's step (h) commits or rolls back
// atomically with the rest of the decision write.
func (t *txStore) AuditStore() audit.Store {
	return NewAuditStore(t.tx)
}
