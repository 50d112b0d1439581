package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// ChainReader is the read surface chain verification and export need.
type ChainReader interface {
	// ListRange returns tenantID's rows in chronological order, optionally
	// bounded to [from, to] (nil = unbounded).
	ListRange(ctx context.Context, tenantID string, from, to *time.Time) ([]model.AuditLog, error)
}

// VerifyTenantChain loads a tenant's chain within an optional window and
// verifies it. When the window does not start at the tenant's first row the
// first in-window row's previous_hash cannot equal Genesis; the anchor hash
// is taken from that row itself, so a windowed verification checks every
// linkage inside the window plus each row's own integrity hash.
func VerifyTenantChain(ctx context.Context, reader ChainReader, tenantID string, from, to *time.Time) (VerifyResult, error) {
	rows, err := reader.ListRange(ctx, tenantID, from, to)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("audit: list range: %w", err)
	}
	if from == nil {
		return VerifyChain(rows), nil
	}
	return verifyChainAnchored(rows), nil
}

// verifyChainAnchored verifies linkage within a window that may not begin
// at genesis: the first row's previous_hash is accepted as-is.
func verifyChainAnchored(rows []model.AuditLog) VerifyResult {
	for i := range rows {
		row := &rows[i]
		if !VerifyRow(row) {
			return VerifyResult{Valid: false, BrokenAt: i, BrokenRowID: row.ID}
		}
		if i > 0 && row.PreviousHash != rows[i-1].IntegrityHash {
			return VerifyResult{Valid: false, BrokenAt: i, BrokenRowID: row.ID}
		}
	}
	return VerifyResult{Valid: true, BrokenAt: -1}
}
