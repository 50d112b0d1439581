// Package audit implements the append-only, per-tenant hash-chained audit
// log: every write reads its predecessor's
// integrity hash within the same transaction the insert happens in, so the
// chain is always linear even under concurrent writers (the store is
// expected to serialize per-tenant writes with an advisory lock or
// equivalent — see Store.Append).
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/model"
)

// Genesis is the previous_hash value stored on a tenant's first audit row.
const Genesis = "genesis"

// Store is the persistence surface. Append must serialize writes per
// tenant (advisory lock keyed on tenant_id, or an outer queue) so the
// "read latest hash, then insert" sequence below never races with itself.
type Store interface {
	// LatestHash returns the integrity_hash of the most recent AuditLog row
	// for tenantID ordered by (timestamp DESC, id DESC), or ("", false) if
	// the tenant has no prior rows. For system events tenantID is the
	// reserved "system" partition key from chainKey, so they chain
	// independently.
	LatestHash(ctx context.Context, tenantID string) (string, bool, error)
	// Append inserts row. Implementations must run LatestHash and the
	// insert within one serialized unit (e.g. an advisory-locked
	// transaction) so two concurrent writers for the same tenant cannot
	// both observe the same LatestHash.
	Append(ctx context.Context, row *model.AuditLog) error
}

// Service writes and verifies the audit chain.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Entry is the caller-supplied content of one audit write; chain fields
// are computed by Log.
type Entry struct {
	TenantID     *string
	UserID       *string
	Username     string
	IPAddress    string
	UserAgent    string
	Action       model.AuditAction
	ResourceType string
	ResourceID   string
	Description  string
	Before       any
	After        any
	Extra        any
	SessionID    *string
}

// chainKey is the per-tenant hash-chain partition key; system events (nil
// TenantID) chain under their own reserved partition so they never borrow
// a genesis hash from a real tenant's chain.
func chainKey(tenantID *string) string {
	if tenantID == nil {
		return "\x00system"
	}
	return *tenantID
}

// Log performs one chained write: look up the tenant's chain tail,
// compute this row's integrity hash over the pipe-separated serialization
// of its fields plus the previous hash, and append.
func (s *Service) Log(ctx context.Context, e Entry) (*model.AuditLog, error) {
	prevHash, ok, err := s.store.LatestHash(ctx, chainKey(e.TenantID))
	if err != nil {
		return nil, fmt.Errorf("audit: latest hash: %w", err)
	}
	previousHash := Genesis
	if ok {
		previousHash = prevHash
	}

	beforeJSON, err := canonicalOrNull(e.Before)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize before: %w", err)
	}
	afterJSON, err := canonicalOrNull(e.After)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize after: %w", err)
	}
	extraJSON, err := canonicalOrNull(e.Extra)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize extra: %w", err)
	}

	row := &model.AuditLog{
		ID:           uuid.NewString(),
		TenantID:     e.TenantID,
		Timestamp:    s.now().UTC(),
		UserID:       e.UserID,
		Username:     e.Username,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Description:  e.Description,
		BeforeValue:  beforeJSON,
		AfterValue:   afterJSON,
		ExtraData:    extraJSON,
		SessionID:    e.SessionID,
		PreviousHash: previousHash,
	}
	row.IntegrityHash = integrityHash(row)

	if err := s.store.Append(ctx, row); err != nil {
		return nil, fmt.Errorf("audit: append: %w", err)
	}
	return row, nil
}

func canonicalOrNull(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// integrityHash computes SHA-256 over the pipe-separated serialization of
// id, tenant_id, timestamp, user_id, action, resource_type, resource_id,
// before/after/extra values and previous_hash, in that order. Description,
// username, IP address, user agent and session_id are not part of the hash.
func integrityHash(row *model.AuditLog) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{'|'})
	}
	write(row.ID)
	write(ptrOrNull(row.TenantID))
	write(row.Timestamp.UTC().Format(time.RFC3339Nano))
	write(ptrOrNull(row.UserID))
	write(string(row.Action))
	write(row.ResourceType)
	write(row.ResourceID)
	write(bytesOrNull(row.BeforeValue))
	write(bytesOrNull(row.AfterValue))
	write(bytesOrNull(row.ExtraData))
	write(row.PreviousHash)
	return hex.EncodeToString(h.Sum(nil))
}

func ptrOrNull(p *string) string {
	if p == nil {
		return "null"
	}
	return *p
}

func bytesOrNull(b []byte) string {
	if b == nil {
		return "null"
	}
	return string(b)
}

// VerifyRow recomputes row's integrity hash and compares it to the stored
// value, independent of chain linkage.
func VerifyRow(row *model.AuditLog) bool {
	return integrityHash(row) == row.IntegrityHash
}

// VerifyResult is the outcome of verifying a chronological run of audit
// rows for one tenant.
type VerifyResult struct {
	Valid      bool
	BrokenAt   int // index into the input slice of the first break, -1 if valid
	BrokenRowID string
}

// VerifyChain walks rows in chronological order, recomputing each row's
// own hash and comparing its stored previous_hash against the prior row's
// integrity_hash (or Genesis for the first row). Reports the index of the
// first break.
func VerifyChain(rows []model.AuditLog) VerifyResult {
	prev := Genesis
	for i := range rows {
		row := &rows[i]
		if !VerifyRow(row) {
			return VerifyResult{Valid: false, BrokenAt: i, BrokenRowID: row.ID}
		}
		if row.PreviousHash != prev {
			return VerifyResult{Valid: false, BrokenAt: i, BrokenRowID: row.ID}
		}
		prev = row.IntegrityHash
	}
	return VerifyResult{Valid: true, BrokenAt: -1}
}
