package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/tenant"
)

// TenantDB wraps *sql.DB and requires every scoped query to go through a
// method that takes a tenant ID, so a developer cannot write a query that
// forgets the tenant_id predicate without naming a method that visibly
// bypasses it (Unscoped).
type TenantDB struct {
	DB *sql.DB
}

func Open(dsn string) (*TenantDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	return &TenantDB{DB: db}, nil
}

// QueryScoped runs a query, appending "AND tenant_id = $N" is the caller's
// responsibility in the query text; QueryScoped's job is to guarantee the
// tenant value bound is always the one the context carries, never a value
// a handler could smuggle in from the request body.
func (t *TenantDB) QueryScoped(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	tid, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	var rows *sql.Rows
	retryErr := WithRetry(ctx, func() error {
		var qerr error
		rows, qerr = t.DB.QueryContext(ctx, query, append(args, tid)...)
		return qerr
	})
	return rows, retryErr
}

// QueryRowScoped is the single-row counterpart to QueryScoped.
func (t *TenantDB) QueryRowScoped(ctx context.Context, query string, args ...interface{}) (*sql.Row, error) {
	tid, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return t.DB.QueryRowContext(ctx, query, append(args, tid)...), nil
}

// ExecScoped runs a tenant-scoped write, retrying transient failures.
func (t *TenantDB) ExecScoped(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tid, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	var res sql.Result
	retryErr := WithRetry(ctx, func() error {
		var execErr error
		res, execErr = t.DB.ExecContext(ctx, query, append(args, tid)...)
		return execErr
	})
	return res, retryErr
}

// Unscoped runs a query with no tenant binding. Reserved for system-level
// operations: superuser admin actions, cross-tenant audit export jobs, and
// migrations. Every call site is expected to justify itself at the
// call site, not here.
func (t *TenantDB) Unscoped() *sql.DB {
	return t.DB
}

// BeginTx starts a transaction without binding tenant scope; callers use
// TenantDB methods against the *sql.Tx's context or guard manually.
func (t *TenantDB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return t.DB.BeginTx(ctx, nil)
}
