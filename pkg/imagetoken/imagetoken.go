// Package imagetoken mints and consumes one-time-use image access tokens.
// Consumption is an atomic conditional UPDATE so two concurrent fetches of
// the same token can never both succeed.
package imagetoken

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/model"
)

// ErrNotFound means no token with that ID exists.
var ErrNotFound = errors.New("imagetoken: not found")

// ErrGone means the token exists but has already been used or expired: the
// caller should map this to HTTP 410, distinct from a plain 404.
var ErrGone = errors.New("imagetoken: gone")

// Store is the persistence surface. Consume must be implemented as a
// single conditional UPDATE (WHERE used_at IS NULL AND expires_at > now())
// so the check-and-set is atomic at the database layer, not in Go.
type Store interface {
	Insert(ctx context.Context, tok *model.ImageAccessToken) error
	// Consume atomically marks the token used and returns the token row as
	// it stood immediately before the update, or (nil, nil) if the
	// conditional UPDATE matched zero rows (already used, expired, or
	// never existed — the store cannot distinguish these without a second
	// read, which callers do separately only when producing a log entry).
	Consume(ctx context.Context, tokenID, usedByIP, usedByUserAgent string, now time.Time) (*model.ImageAccessToken, error)
	// Get is used only for building 404 vs 410 diagnostics (e.g. audit
	// logging); never for the consumption decision itself.
	Get(ctx context.Context, tokenID string) (*model.ImageAccessToken, error)
}

type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// Mint creates a new one-time token for imageID.
func (s *Service) Mint(ctx context.Context, tenantID, imageID, createdByUserID string) (*model.ImageAccessToken, error) {
	now := s.now()
	tok := &model.ImageAccessToken{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ImageID:         imageID,
		CreatedByUserID: createdByUserID,
		ExpiresAt:       now.Add(s.ttl),
		CreatedAt:       now,
	}
	if err := s.store.Insert(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// MaxBatchMint is the largest number of tokens a single mint request may
// ask for.
const MaxBatchMint = 10

// ErrBatchTooLarge is returned by MintBatch when count exceeds MaxBatchMint.
var ErrBatchTooLarge = errors.New("imagetoken: batch mint request exceeds maximum of 10")

// MintBatch mints up to MaxBatchMint tokens for imageIDs in one call. On
// the first store failure, the tokens already minted are returned
// alongside the error so the caller can still serve what succeeded or
// choose to discard all of them.
func (s *Service) MintBatch(ctx context.Context, tenantID, createdByUserID string, imageIDs []string) ([]*model.ImageAccessToken, error) {
	if len(imageIDs) > MaxBatchMint {
		return nil, ErrBatchTooLarge
	}
	out := make([]*model.ImageAccessToken, 0, len(imageIDs))
	for _, imageID := range imageIDs {
		tok, err := s.Mint(ctx, tenantID, imageID, createdByUserID)
		if err != nil {
			return out, err
		}
		out = append(out, tok)
	}
	return out, nil
}

// Peek reads a token without consuming it, for audit diagnostics that
// need to distinguish an expired token from an already-used one. Never
// use it to gate image serving.
func (s *Service) Peek(ctx context.Context, tokenID string) (*model.ImageAccessToken, error) {
	return s.store.Get(ctx, tokenID)
}

// Consume redeems tokenID for one fetch. On success it returns the token
// row as it stood before consumption (UsedAt still nil); on failure it returns ErrNotFound or ErrGone, from
// which the HTTP layer derives a 404 or 410 without ever revealing which
// tenant's image the token named.
func (s *Service) Consume(ctx context.Context, tokenID, ip, userAgent string) (*model.ImageAccessToken, error) {
	now := s.now()
	tok, err := s.store.Consume(ctx, tokenID, ip, userAgent, now)
	if err != nil {
		return nil, err
	}
	if tok != nil {
		return tok, nil
	}

	existing, err := s.store.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, ErrGone
}
