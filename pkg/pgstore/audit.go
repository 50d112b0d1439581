// Package pgstore implements every Store interface declared by the
// service packages (audit, auth, imagetoken, entitlement, fraud,
// checkitem, decision, dispatch) against PostgreSQL via database/sql and
// lib/pq: no ORM, $N placeholders, fmt.Errorf("...: %w", err) wrapping,
// sql.ErrNoRows mapped to a nil result rather than an error where the
// caller treats absence as valid.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// AuditStore implements audit.Store. LatestHash and Append are each called
// from within a serialized per-tenant unit of work by the caller (the
// decision package runs both inside its own transaction, under the same
// advisory lock that guards the item row); AuditStore itself takes an
// advisory lock keyed on the chain partition so a bare Service.Log call
// outside a wider transaction is still safe against concurrent writers.
type AuditStore struct {
	db dbtx
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so store implementations
// can run either as top-level stores or bound to an in-flight transaction
// (see decision.go's txStore.AuditStore()).
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewAuditStore(db dbtx) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) LatestHash(ctx context.Context, tenantID string) (string, bool, error) {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return "", false, fmt.Errorf("pgstore: audit advisory lock: %w", err)
	}
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT integrity_hash FROM audit_logs
		WHERE chain_key = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, tenantID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pgstore: latest audit hash: %w", err)
	}
	return hash, true, nil
}

func (s *AuditStore) Append(ctx context.Context, row *model.AuditLog) error {
	chainKey := "\x00system"
	if row.TenantID != nil {
		chainKey = *row.TenantID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, chain_key, tenant_id, timestamp, user_id, username, ip_address,
			user_agent, action, resource_type, resource_id, description,
			before_value, after_value, extra_data, session_id,
			previous_hash, integrity_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		row.ID, chainKey, row.TenantID, row.Timestamp, row.UserID, row.Username, row.IPAddress,
		row.UserAgent, string(row.Action), row.ResourceType, row.ResourceID, row.Description,
		nullBytes(row.BeforeValue), nullBytes(row.AfterValue), nullBytes(row.ExtraData), row.SessionID,
		row.PreviousHash, row.IntegrityHash)
	if err != nil {
		return fmt.Errorf("pgstore: append audit row: %w", err)
	}
	return nil
}

// ListByItem returns every audit row referencing a check item, oldest
// first, for the GET /audit/items/{id} endpoint.
func (s *AuditStore) ListByItem(ctx context.Context, tenantID, itemID string) ([]model.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, timestamp, user_id, username, ip_address, user_agent,
		       action, resource_type, resource_id, description, before_value,
		       after_value, extra_data, session_id, previous_hash, integrity_hash
		FROM audit_logs
		WHERE tenant_id = $1 AND resource_type = 'check_item' AND resource_id = $2
		ORDER BY timestamp ASC, id ASC`, tenantID, itemID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list audit by item: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// ListByFilter backs the GET /audit/logs endpoint.
func (s *AuditStore) ListByFilter(ctx context.Context, tenantID string, action *model.AuditAction, limit, offset int) ([]model.AuditLog, error) {
	query := `
		SELECT id, tenant_id, timestamp, user_id, username, ip_address, user_agent,
		       action, resource_type, resource_id, description, before_value,
		       after_value, extra_data, session_id, previous_hash, integrity_hash
		FROM audit_logs WHERE tenant_id = $1`
	args := []any{tenantID}
	if action != nil {
		args = append(args, string(*action))
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list audit by filter: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// ListRange returns a tenant's chain in chronological order within an
// optional [from, to] window, for verify_chain and the evidence-pack
// exporter. A nil bound is unbounded on that side.
func (s *AuditStore) ListRange(ctx context.Context, tenantID string, from, to *time.Time) ([]model.AuditLog, error) {
	query := `
		SELECT id, tenant_id, timestamp, user_id, username, ip_address, user_agent,
		       action, resource_type, resource_id, description, before_value,
		       after_value, extra_data, session_id, previous_hash, integrity_hash
		FROM audit_logs WHERE chain_key = $1`
	args := []any{tenantID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list audit range: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for rows.Next() {
		var r model.AuditLog
		var action string
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Timestamp, &r.UserID, &r.Username, &r.IPAddress,
			&r.UserAgent, &action, &r.ResourceType, &r.ResourceID, &r.Description, &r.BeforeValue,
			&r.AfterValue, &r.ExtraData, &r.SessionID, &r.PreviousHash, &r.IntegrityHash); err != nil {
			return nil, fmt.Errorf("pgstore: scan audit row: %w", err)
		}
		r.Action = model.AuditAction(action)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
