package apierr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatus_KnownCode(t *testing.T) {
	if got := Status(CodeResourceNotFound); got != http.StatusNotFound {
		t.Fatalf("got %d", got)
	}
}

func TestStatus_TenantMismatchMapsTo404(t *testing.T) {
	if got := Status(CodeAuthzTenantMismatch); got != http.StatusNotFound {
		t.Fatalf("tenant mismatch must not be distinguishable from not-found, got %d", got)
	}
}

func TestAs_UnwrapsWrappedError(t *testing.T) {
	cause := New(CodeResourceNotFound, "item not found")
	wrapped := Wrap(CodeSystemInternal, "failed to load item", cause)
	got, ok := As(wrapped)
	if !ok || got.Code != CodeSystemInternal {
		t.Fatalf("expected to unwrap to the outer *Error, got %v ok=%v", got, ok)
	}
}

func TestWrite_RendersProblemDetailWithCode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/check-items/123", nil)

	Write(rec, req, New(CodeResourceNotFound, "check item not found"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d", rec.Code)
	}
	var body ProblemDetail
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != CodeResourceNotFound || body.Status != http.StatusNotFound {
		t.Fatalf("got %+v", body)
	}
}

func TestWrite_OpaqueErrorNeverLeaksDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/check-items/123", nil)

	Write(rec, req, errNonAPI{})

	var body ProblemDetail
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != CodeSystemInternal {
		t.Fatalf("expected opaque internal code, got %q", body.Code)
	}
}

type errNonAPI struct{}

func (errNonAPI) Error() string { return "raw database connection refused at 10.0.0.5:5432" }
