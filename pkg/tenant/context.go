// Package tenant carries the authenticated caller's tenant through a
// request and enforces that every tenant-scoped data access names it.
//
// A violation of the enforcement contract is a security incident, not a
// bug: it is routed to IsolationError and, in strict mode, aborts the
// request without disclosing which tenant was probed.
package tenant

import (
	"context"
	"errors"
)

type ctxKey struct{}

// ErrNoTenant is returned by FromContext when no tenant has been bound.
var ErrNoTenant = errors.New("tenant: no tenant bound to context")

// WithTenant returns a context carrying tenantID as the active tenant.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// FromContext extracts the active tenant ID, or ErrNoTenant.
func FromContext(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ctxKey{}).(string)
	if !ok || v == "" {
		return "", ErrNoTenant
	}
	return v, nil
}

// MustFromContext panics if no tenant is bound. Reserved for code paths
// that are only reachable after dispatch-layer authentication has already
// bound a tenant (e.g. deep in a transaction helper); using it on an
// unauthenticated path is a bug.
func MustFromContext(ctx context.Context) string {
	v, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return v
}
