package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// AssignmentStore implements checkitem.AssignmentStore with targeted
// column updates, never the full ingest upsert.
type AssignmentStore struct {
	db *sql.DB
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

func (s *AssignmentStore) GetByID(ctx context.Context, tenantID, itemID string) (*model.CheckItem, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM check_items WHERE tenant_id = $1 AND id = $2`, checkItemColumns),
		tenantID, itemID)
	item, err := scanCheckItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get item: %w", err)
	}
	return item, nil
}

func (s *AssignmentStore) UpdateAssignment(ctx context.Context, tenantID, itemID string, reviewerID, approverID *string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE check_items
		SET assigned_reviewer_id = $3, assigned_approver_id = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, itemID, reviewerID, approverID, now)
	if err != nil {
		return fmt.Errorf("pgstore: update assignment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *AssignmentStore) UpdateStatus(ctx context.Context, tenantID, itemID string, status model.Status, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE check_items SET status = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, itemID, string(status), now)
	if err != nil {
		return fmt.Errorf("pgstore: update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
