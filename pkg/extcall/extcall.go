// Package extcall wraps calls to external collaborators (the image
// connector and the core-banking CheckItemProvider) with a shared
// resilience policy: 30s default timeout, up to 3 attempts with
// exponential backoff on transient errors, and a breaker that opens
// after N consecutive failures.
package extcall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without attempting the call while the breaker
// is open.
var ErrCircuitOpen = errors.New("extcall: circuit open")

// Transient marks an error as retryable. External adapters wrap timeouts
// and connection resets with it; anything else fails fast.
type Transient struct {
	Err error
}

func (t *Transient) Error() string { return "extcall: transient: " + t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// IsTransient reports whether err (or something it wraps) is retryable.
// Context deadline expiry on the per-attempt timeout also counts: the next
// attempt gets a fresh deadline.
func IsTransient(err error) bool {
	var tr *Transient
	if errors.As(err, &tr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Policy is the retry/timeout/breaker configuration for one external
// dependency. The zero value is unusable; use DefaultPolicy.
type Policy struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	// BreakAfter consecutive failed calls (all attempts exhausted) open the
	// circuit for CoolDown.
	BreakAfter int
	CoolDown   time.Duration
}

// DefaultPolicy is the standard external-call policy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		BreakAfter:     5,
		CoolDown:       30 * time.Second,
	}
}

// Caller applies a Policy to calls against one external dependency. It is
// safe for concurrent use; the breaker state is shared across callers of
// the same dependency by sharing the Caller.
type Caller struct {
	policy Policy
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	mu           sync.Mutex
	consecutive  int
	openUntil    time.Time
	halfOpenBusy bool
}

func NewCaller(policy Policy) *Caller {
	return &Caller{
		policy: policy,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn under the policy: per-attempt timeout, exponential backoff
// between transient failures, and breaker accounting around the whole
// call. A non-transient error fails immediately without further attempts.
func (c *Caller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.beforeCall(); err != nil {
		return err
	}

	var lastErr error
	backoff := c.policy.InitialBackoff
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			c.afterCall(true)
			return nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == c.policy.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if err := c.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
	}

	c.afterCall(false)
	return fmt.Errorf("extcall: call failed: %w", lastErr)
}

// beforeCall checks the breaker: closed passes, open fails fast, and an
// elapsed cool-down admits exactly one probe (half-open).
func (c *Caller) beforeCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openUntil.IsZero() {
		return nil
	}
	if c.now().Before(c.openUntil) {
		return ErrCircuitOpen
	}
	if c.halfOpenBusy {
		return ErrCircuitOpen
	}
	c.halfOpenBusy = true
	return nil
}

func (c *Caller) afterCall(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halfOpenBusy = false
	if ok {
		c.consecutive = 0
		c.openUntil = time.Time{}
		return
	}
	c.consecutive++
	if c.consecutive >= c.policy.BreakAfter {
		c.openUntil = c.now().Add(c.policy.CoolDown)
	}
}
