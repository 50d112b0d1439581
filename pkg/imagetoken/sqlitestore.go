package imagetoken

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// SQLiteStore is an embedded Store for single-binary demo deployments and
// tests, backed by modernc.org/sqlite (no cgo). The consumption UPDATE is
// conditional exactly like the Postgres store's, and SQLite's single-writer
// model serializes it per database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the token table on db, which the caller opens
// with the "sqlite" driver.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS image_access_tokens (
			id                 TEXT PRIMARY KEY,
			tenant_id          TEXT NOT NULL,
			image_id           TEXT NOT NULL,
			created_by_user_id TEXT NOT NULL,
			expires_at         INTEGER NOT NULL,
			used_at            INTEGER,
			used_by_ip         TEXT NOT NULL DEFAULT '',
			used_by_user_agent TEXT NOT NULL DEFAULT '',
			created_at         INTEGER NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("imagetoken: init sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, tok *model.ImageAccessToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_access_tokens (
			id, tenant_id, image_id, created_by_user_id, expires_at, created_at
		) VALUES (?,?,?,?,?,?)`,
		tok.ID, tok.TenantID, tok.ImageID, tok.CreatedByUserID,
		tok.ExpiresAt.UnixNano(), tok.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("imagetoken: sqlite insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Consume(ctx context.Context, tokenID, usedByIP, usedByUserAgent string, now time.Time) (*model.ImageAccessToken, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE image_access_tokens
		SET used_at = ?, used_by_ip = ?, used_by_user_agent = ?
		WHERE id = ? AND used_at IS NULL AND expires_at > ?`,
		now.UnixNano(), usedByIP, usedByUserAgent, tokenID, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("imagetoken: sqlite consume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("imagetoken: sqlite rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	tok, err := s.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if tok != nil {
		// Callers expect the row as it stood before the update.
		tok.UsedAt = nil
		tok.UsedByIP = ""
		tok.UsedByUserAgent = ""
	}
	return tok, nil
}

func (s *SQLiteStore) Get(ctx context.Context, tokenID string) (*model.ImageAccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, image_id, created_by_user_id, expires_at, used_at,
		       used_by_ip, used_by_user_agent, created_at
		FROM image_access_tokens WHERE id = ?`, tokenID)

	var tok model.ImageAccessToken
	var expiresAt, createdAt int64
	var usedAt sql.NullInt64
	err := row.Scan(&tok.ID, &tok.TenantID, &tok.ImageID, &tok.CreatedByUserID,
		&expiresAt, &usedAt, &tok.UsedByIP, &tok.UsedByUserAgent, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("imagetoken: sqlite get: %w", err)
	}
	tok.ExpiresAt = time.Unix(0, expiresAt).UTC()
	tok.CreatedAt = time.Unix(0, createdAt).UTC()
	if usedAt.Valid {
		t := time.Unix(0, usedAt.Int64).UTC()
		tok.UsedAt = &t
	}
	return &tok, nil
}
