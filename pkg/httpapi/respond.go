package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/advisory"
	"github.com/jmalloway/checksub001/pkg/auth"
	"github.com/jmalloway/checksub001/pkg/checkitem"
	"github.com/jmalloway/checksub001/pkg/decision"
	"github.com/jmalloway/checksub001/pkg/imagetoken"
	"github.com/jmalloway/checksub001/pkg/tenant"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON strictly decodes the request body into dst, rejecting unknown
// fields and oversized payloads.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.Wrap(apierr.CodeValidationBadRequest, "Malformed request body", err)
	}
	// A second value means trailing garbage after the JSON document.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return apierr.New(apierr.CodeValidationBadRequest, "Request body must contain a single JSON document")
	}
	return nil
}

// writeServiceError maps service-layer sentinel errors onto the closed
// apierr taxonomy before rendering. Anything unmapped renders as an opaque
// 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if mapped := mapServiceError(err); mapped != nil {
		apierr.Write(w, r, mapped)
		return
	}
	apierr.Write(w, r, err)
}

func mapServiceError(err error) error {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, auth.ErrInvalidCredentials):
		return apierr.Wrap(apierr.CodeAuthInvalidCredentials, "Invalid username or password", err)
	case errors.Is(err, auth.ErrAccountLocked):
		return apierr.Wrap(apierr.CodeAuthAccountLocked, "Account is temporarily locked", err)
	case errors.Is(err, auth.ErrAccountInactive):
		return apierr.Wrap(apierr.CodeAuthAccountInactive, "Account is deactivated", err)
	case errors.Is(err, auth.ErrIPNotAllowed):
		return apierr.Wrap(apierr.CodeAuthIPNotAllowed, "Access denied from this network location", err)
	case errors.Is(err, auth.ErrMFAInvalid):
		return apierr.Wrap(apierr.CodeAuthMFAInvalid, "Invalid MFA code", err)
	case errors.Is(err, auth.ErrMFARequired):
		return apierr.Wrap(apierr.CodeAuthMFARequired, "MFA code required", err)
	case errors.Is(err, auth.ErrTokenInvalid):
		return apierr.Wrap(apierr.CodeAuthTokenInvalid, "Invalid token", err)
	case errors.Is(err, auth.ErrSessionExpired):
		return apierr.Wrap(apierr.CodeAuthSessionExpired, "Session expired or revoked", err)

	case errors.Is(err, decision.ErrSelfApproval):
		return apierr.Wrap(apierr.CodeAuthzSelfApproval, "The reviewer of a dual-control item cannot approve it", err)
	case errors.Is(err, decision.ErrEntitlementDenied):
		return apierr.Wrap(apierr.CodeAuthzEntitlementDenied, "No entitlement covers this item", err)
	case errors.Is(err, decision.ErrInvalidTransition):
		return apierr.Wrap(apierr.CodeValidationInvalidState, "Invalid state transition", err)
	case errors.Is(err, decision.ErrAIFlagsUnreviewed):
		return apierr.Wrap(apierr.CodeBusinessAIFlagsUnacknowledged, "AI-generated flags must be acknowledged", err)
	case errors.Is(err, decision.ErrItemNotFound):
		return apierr.Wrap(apierr.CodeResourceNotFound, "Not found", err)
	case errors.Is(err, decision.ErrJustificationRequired):
		return apierr.Wrap(apierr.CodeValidationMissingField, "An override requires a justification", err)

	case errors.Is(err, advisory.ErrAcknowledgedWithNoAnalysis),
		errors.Is(err, advisory.ErrAnalysisNotAcknowledged),
		errors.Is(err, advisory.ErrFlagsNotReviewed):
		return apierr.Wrap(apierr.CodeBusinessAIFlagsUnacknowledged, "AI advisory acknowledgment invalid", err)

	case errors.Is(err, checkitem.ErrNotFound):
		return apierr.Wrap(apierr.CodeResourceNotFound, "Not found", err)
	case errors.Is(err, checkitem.ErrInvalidTransition):
		return apierr.Wrap(apierr.CodeValidationInvalidState, "Invalid status transition", err)

	case errors.Is(err, imagetoken.ErrNotFound):
		return apierr.Wrap(apierr.CodeResourceNotFound, "Not found", err)
	case errors.Is(err, imagetoken.ErrGone):
		return apierr.Wrap(apierr.CodeResourceGone, "Token expired or already used", err)
	case errors.Is(err, imagetoken.ErrBatchTooLarge):
		return apierr.Wrap(apierr.CodeValidationOutOfRange, "At most 10 tokens may be minted per request", err)

	case errors.Is(err, tenant.ErrNoTenant):
		return apierr.Wrap(apierr.CodeAuthTokenInvalid, "Authentication required", err)

	default:
		var isolation *tenant.IsolationError
		if errors.As(err, &isolation) {
			// Never confirm the probed resource exists.
			return apierr.Wrap(apierr.CodeAuthzTenantMismatch, "Not found", err)
		}
		return nil
	}
}
