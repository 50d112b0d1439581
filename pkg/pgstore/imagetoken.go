package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// ImageTokenStore implements imagetoken.Store.
type ImageTokenStore struct {
	db *sql.DB
}

func NewImageTokenStore(db *sql.DB) *ImageTokenStore {
	return &ImageTokenStore{db: db}
}

func (s *ImageTokenStore) Insert(ctx context.Context, tok *model.ImageAccessToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_access_tokens (
			id, tenant_id, image_id, created_by_user_id, expires_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		tok.ID, tok.TenantID, tok.ImageID, tok.CreatedByUserID, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: insert image token: %w", err)
	}
	return nil
}

// Consume implements the atomic conditional UPDATE imagetoken.Store
// requires: it returns the row as it stood immediately before the update
// by using a writable CTE, so the check (used_at IS NULL AND expires_at >
// now()) and the mutation happen as a single statement with no race
// window between them.
func (s *ImageTokenStore) Consume(ctx context.Context, tokenID, usedByIP, usedByUserAgent string, now time.Time) (*model.ImageAccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE image_access_tokens
			SET used_at = $2, used_by_ip = $3, used_by_user_agent = $4
			WHERE id = $1 AND used_at IS NULL AND expires_at > $2
			RETURNING id, tenant_id, image_id, created_by_user_id, expires_at, created_at
		)
		SELECT id, tenant_id, image_id, created_by_user_id, expires_at, created_at
		FROM updated`,
		tokenID, now, usedByIP, usedByUserAgent)

	var tok model.ImageAccessToken
	err := row.Scan(&tok.ID, &tok.TenantID, &tok.ImageID, &tok.CreatedByUserID, &tok.ExpiresAt, &tok.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: consume image token: %w", err)
	}
	return &tok, nil
}

func (s *ImageTokenStore) Get(ctx context.Context, tokenID string) (*model.ImageAccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, image_id, created_by_user_id, expires_at, used_at,
		       used_by_ip, used_by_user_agent, created_at
		FROM image_access_tokens WHERE id = $1`, tokenID)
	var tok model.ImageAccessToken
	err := row.Scan(&tok.ID, &tok.TenantID, &tok.ImageID, &tok.CreatedByUserID, &tok.ExpiresAt,
		&tok.UsedAt, &tok.UsedByIP, &tok.UsedByUserAgent, &tok.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get image token: %w", err)
	}
	return &tok, nil
}
