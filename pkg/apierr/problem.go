package apierr

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs), the
// response shape every handler error funnels through.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     Code   `json:"code,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Write renders err as an RFC 7807 problem response. If err is an *Error its
// Code determines the status and title; any other error is treated as an
// opaque internal failure and its detail is never sent to the client.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := As(err)
	if !ok {
		slog.Error("unhandled internal error", "error", err, "path", r.URL.Path)
		apiErr = New(CodeSystemInternal, "An unexpected error occurred. Please try again later.")
	} else if apiErr.Cause != nil {
		slog.Error("request failed", "code", apiErr.Code, "cause", apiErr.Cause, "path", r.URL.Path)
	}

	status := Status(apiErr.Code)
	problem := &ProblemDetail{
		Type:     "https://checkops.internal/errors/" + string(apiErr.Code),
		Title:    titleForCode(apiErr.Code),
		Status:   status,
		Detail:   apiErr.Detail,
		Instance: r.URL.Path,
		Code:     apiErr.Code,
		TraceID:  w.Header().Get("X-Request-ID"),
	}

	if status == http.StatusTooManyRequests {
		// Retry-After is set by the rate limiter middleware before Write is
		// called; left alone here.
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

var titles = map[Code]string{
	CodeAuthInvalidCredentials: "Invalid Credentials",
	CodeAuthAccountLocked:      "Account Locked",
	CodeAuthMFARequired:        "MFA Required",
	CodeAuthMFAInvalid:         "MFA Invalid",
	CodeAuthSessionExpired:     "Session Expired",
	CodeAuthCSRFMismatch:       "CSRF Token Mismatch",
	CodeAuthIPNotAllowed:       "IP Address Not Allowed",
	CodeAuthTokenInvalid:       "Invalid Token",

	CodeAuthzForbidden:         "Forbidden",
	CodeAuthzEntitlementDenied: "Entitlement Denied",
	CodeAuthzSelfApproval:      "Self-Approval Not Permitted",
	CodeAuthzTenantMismatch:    "Not Found",

	CodeValidationBadRequest:   "Bad Request",
	CodeValidationInvalidState: "Invalid State Transition",
	CodeValidationSchemaError:  "Schema Validation Failed",

	CodeResourceNotFound: "Not Found",
	CodeResourceConflict: "Conflict",
	CodeResourceGone:     "Gone",

	CodeRateLimited: "Too Many Requests",

	CodeAuthTokenExpired:              "Token Expired",
	CodeAuthAccountInactive:           "Account Inactive",
	CodeAuthzInsufficientRole:         "Insufficient Role",
	CodeAuthzDualControlRequired:      "Dual Control Required",
	CodeValidationInvalidInput:        "Invalid Input",
	CodeValidationMissingField:        "Missing Required Field",
	CodeValidationInvalidFormat:       "Invalid Format",
	CodeValidationOutOfRange:          "Out Of Range",
	CodeValidationDuplicate:           "Duplicate Entry",
	CodeResourceAlreadyExists:         "Already Exists",
	CodeResourceLocked:                "Locked",
	CodeBusinessPolicyViolation:       "Policy Violation",
	CodeBusinessAIFlagsUnacknowledged: "AI Flags Not Acknowledged",
	CodeBusinessWorkflow:              "Workflow Error",
	CodeBusinessLimitExceeded:         "Limit Exceeded",
	CodeSystemDatabase:                "Database Error",
	CodeSystemExternalService:         "External Service Error",

	CodeSystemInternal:       "Internal Server Error",
	CodeSystemUnavailable:    "Service Unavailable",
	CodeSystemDecisionFailed: "Decision Processing Failed",
}

func titleForCode(c Code) string {
	if t, ok := titles[c]; ok {
		return t
	}
	return "Internal Server Error"
}
