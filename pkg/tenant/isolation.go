package tenant

import (
	"fmt"
	"log/slog"
)

// IsolationError is raised when a tenant-scoped data access does not carry
// a tenant_id predicate matching the request's bound tenant.
type IsolationError struct {
	Model string
	Query string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("tenant: isolation violation on %s", e.Model)
}

// Mode controls what happens when a violation is detected.
type Mode int

const (
	// ModeStrict aborts the request with no tenant-identifying detail.
	// This is the default and the only mode permitted outside development.
	ModeStrict Mode = iota
	// ModePermissive logs a warning and continues. Dev only.
	ModePermissive
)

// Enforcer records tenant ownership of resources already fetched in this
// request and compares it against the bound tenant before the caller is
// allowed to use the result, catching the case where a single-key
// get-by-id read resolved to a row owned by a different tenant: the
// returned row's tenant_id must match the context, and a mismatch is
// treated as not-found.
type Enforcer struct {
	Mode Mode
}

func NewEnforcer(mode Mode) *Enforcer {
	return &Enforcer{Mode: mode}
}

// CheckRow compares a fetched row's tenant_id against the context's bound
// tenant. ok=false means "treat as not found"; err is non-nil only in
// strict mode, to be surfaced as a dedicated security-channel log entry by
// the caller before it maps to 404.
func (e *Enforcer) CheckRow(boundTenant, rowTenant, model string) (ok bool, err error) {
	if boundTenant == rowTenant {
		return true, nil
	}
	if e.Mode == ModePermissive {
		slog.Warn("tenant: isolation violation", "model", model)
		return false, nil
	}
	return false, &IsolationError{Model: model}
}
