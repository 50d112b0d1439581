package tenant

import (
	"context"
	"testing"
)

func TestEnforcer_CheckRow_SameTenant(t *testing.T) {
	e := NewEnforcer(ModeStrict)
	ok, err := e.CheckRow("t1", "t1", "CheckItem")
	if !ok || err != nil {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
}

func TestEnforcer_CheckRow_CrossTenant_Strict(t *testing.T) {
	e := NewEnforcer(ModeStrict)
	ok, err := e.CheckRow("t1", "t2", "CheckItem")
	if ok {
		t.Fatalf("expected mismatch to deny")
	}
	var isoErr *IsolationError
	if err == nil {
		t.Fatalf("expected IsolationError in strict mode")
	}
	if !asIsolationError(err, &isoErr) {
		t.Fatalf("expected *IsolationError, got %T", err)
	}
}

func TestEnforcer_CheckRow_CrossTenant_Permissive(t *testing.T) {
	e := NewEnforcer(ModePermissive)
	ok, err := e.CheckRow("t1", "t2", "CheckItem")
	if ok {
		t.Fatalf("expected mismatch to deny")
	}
	if err != nil {
		t.Fatalf("permissive mode must not error, got %v", err)
	}
}

func asIsolationError(err error, target **IsolationError) bool {
	e, ok := err.(*IsolationError)
	if ok {
		*target = e
	}
	return ok
}

func TestContext_RoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), "tenant-xyz")
	got, err := FromContext(ctx)
	if err != nil || got != "tenant-xyz" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestContext_Missing(t *testing.T) {
	_, err := FromContext(context.Background())
	if err != ErrNoTenant {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}
}
