package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmalloway/checksub001/pkg/model"
)

// ItemViewStore records reviewer view sessions. Append-only: there is no
// update or delete path, matching the audit posture of the table.
type ItemViewStore struct {
	db *sql.DB
}

func NewItemViewStore(db *sql.DB) *ItemViewStore {
	return &ItemViewStore{db: db}
}

func (s *ItemViewStore) Insert(ctx context.Context, v *model.ItemView) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_views (
			id, tenant_id, check_item_id, user_id, view_started_at,
			view_ended_at, zoomed_image, read_full_detail
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.TenantID, v.CheckItemID, v.UserID, v.ViewStartedAt,
		v.ViewEndedAt, v.ZoomedImage, v.ReadFullDetail)
	if err != nil {
		return fmt.Errorf("pgstore: insert item view: %w", err)
	}
	return nil
}

func (s *ItemViewStore) ListByItem(ctx context.Context, tenantID, itemID string) ([]model.ItemView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, check_item_id, user_id, view_started_at,
		       view_ended_at, zoomed_image, read_full_detail
		FROM item_views WHERE tenant_id = $1 AND check_item_id = $2
		ORDER BY view_started_at ASC`, tenantID, itemID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list item views: %w", err)
	}
	defer rows.Close()

	var out []model.ItemView
	for rows.Next() {
		var v model.ItemView
		if err := rows.Scan(&v.ID, &v.TenantID, &v.CheckItemID, &v.UserID,
			&v.ViewStartedAt, &v.ViewEndedAt, &v.ZoomedImage, &v.ReadFullDetail); err != nil {
			return nil, fmt.Errorf("pgstore: scan item view: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
