// Package database wraps *sql.DB with tenant-scoping helpers and a retry
// policy for transient Postgres errors, following the direct
// database/sql + lib/pq access style used throughout this codebase (no
// ORM).
package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/lib/pq"
)

const maxRetries = 3

// transientPQCodes are Postgres SQLSTATE classes worth retrying:
// connection failures, serialization/deadlock conflicts, and
// too-many-connections.
var transientPQCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
}

// IsTransient reports whether err is a Postgres error worth retrying.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientPQCodes[string(pqErr.Code)]
	}
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded)
}

// WithRetry runs fn up to maxRetries+1 times, backing off exponentially
// with jitter between attempts, and only retries errors IsTransient
// considers safe to retry (idempotent read or single-statement writes
// guarded by unique constraints upstream).
func WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return err
}

func backoff(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt))) * 50 * time.Millisecond
	jitter := time.Duration(0)
	if n, err := rand.Int(rand.Reader, big.NewInt(25)); err == nil {
		jitter = time.Duration(n.Int64()) * time.Millisecond
	}
	return base + jitter
}
