package extcall

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPolicy() Policy {
	return Policy{
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		BreakAfter:     2,
		CoolDown:       time.Minute,
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	c := NewCaller(testPolicy())
	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &Transient{Err: errors.New("connection reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_NonTransientFailsWithoutRetry(t *testing.T) {
	c := NewCaller(testPolicy())
	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt for a non-transient error, got %d", attempts)
	}
}

func TestDo_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := NewCaller(testPolicy())
	fail := func(ctx context.Context) error { return errors.New("down") }

	for i := 0; i < 2; i++ {
		if err := c.Do(context.Background(), fail); err == nil {
			t.Fatalf("expected failure")
		}
	}

	err := c.Do(context.Background(), fail)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after %d consecutive failures, got %v", 2, err)
	}
}

func TestDo_HalfOpenProbeClosesBreakerOnSuccess(t *testing.T) {
	c := NewCaller(testPolicy())
	now := time.Now()
	c.now = func() time.Time { return now }

	fail := func(ctx context.Context) error { return errors.New("down") }
	for i := 0; i < 2; i++ {
		_ = c.Do(context.Background(), fail)
	}

	// Cool-down elapses; the next call is the half-open probe.
	now = now.Add(2 * time.Minute)
	if err := c.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to run, got %v", err)
	}
	if err := c.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("expected breaker to be closed after successful probe, got %v", err)
	}
}
