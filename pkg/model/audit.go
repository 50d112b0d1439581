package model

import "time"

// AuditAction is the closed taxonomy of events the audit log may record.
// The constants are grouped by category.
type AuditAction string

const (
	// Auth
	AuditLoginSuccess      AuditAction = "LOGIN_SUCCESS"
	AuditLoginFailure      AuditAction = "LOGIN_FAILURE"
	AuditLogout            AuditAction = "LOGOUT"
	AuditAccountLocked     AuditAction = "ACCOUNT_LOCKED"
	AuditMFAFailure        AuditAction = "MFA_FAILURE"
	AuditMFASuccess        AuditAction = "MFA_SUCCESS"
	AuditTokenRefreshed    AuditAction = "TOKEN_REFRESHED"
	AuditPasswordChanged   AuditAction = "PASSWORD_CHANGED"
	AuditSessionRevoked    AuditAction = "SESSION_REVOKED"

	// Authorization
	AuditPermissionDenied AuditAction = "AUTH_PERMISSION_DENIED"
	AuditAccessCrossTenant AuditAction = "ACCESS_CROSS_TENANT"

	// Item lifecycle
	AuditItemIngested AuditAction = "ITEM_INGESTED"
	AuditItemViewed   AuditAction = "ITEM_VIEWED"
	AuditItemAssigned AuditAction = "ITEM_ASSIGNED"
	AuditItemStatusChanged AuditAction = "ITEM_STATUS_CHANGED"

	// Decisions
	AuditDecisionMade       AuditAction = "DECISION_MADE"
	AuditDecisionFailed     AuditAction = "DECISION_FAILED"
	AuditDecisionOverridden AuditAction = "DECISION_OVERRIDDEN"
	AuditDecisionReversed   AuditAction = "DECISION_REVERSED"

	// Dual control
	AuditDualControlPending  AuditAction = "DUAL_CONTROL_PENDING"
	AuditDualControlApproved AuditAction = "DUAL_CONTROL_APPROVED"
	AuditSelfApprovalDenied  AuditAction = "SELF_APPROVAL_DENIED"

	// Image access
	AuditImageViewed       AuditAction = "IMAGE_VIEWED"
	AuditImageZoomed       AuditAction = "IMAGE_ZOOMED"
	AuditImageTokenMinted  AuditAction = "IMAGE_TOKEN_MINTED"
	AuditImageTokenUsed    AuditAction = "IMAGE_TOKEN_USED"
	AuditImageTokenExpired AuditAction = "IMAGE_TOKEN_EXPIRED"
	AuditImageTokenInvalid AuditAction = "IMAGE_TOKEN_INVALID"

	// Admin
	AuditAdminMutation AuditAction = "ADMIN_MUTATION"
	AuditExport        AuditAction = "EXPORT"

	// AI inference
	AuditAIInferenceRequested AuditAction = "AI_INFERENCE_REQUESTED"
	AuditAIInferenceCompleted AuditAction = "AI_INFERENCE_COMPLETED"
	AuditAIInferenceFailed    AuditAction = "AI_INFERENCE_FAILED"
	AuditAIInferenceAccepted  AuditAction = "AI_INFERENCE_ACCEPTED"
	AuditAIInferenceRejected  AuditAction = "AI_INFERENCE_REJECTED"
	AuditAIInferenceOverridden AuditAction = "AI_INFERENCE_OVERRIDDEN"

	// Security
	AuditUnauthorizedAccess  AuditAction = "SECURITY_UNAUTHORIZED_ACCESS"
	AuditSuspiciousActivity  AuditAction = "SECURITY_SUSPICIOUS_ACTIVITY"
	AuditRateLimitExceeded   AuditAction = "SECURITY_RATE_LIMIT_EXCEEDED"
	AuditTenantViolation     AuditAction = "SECURITY_TENANT_VIOLATION"

	// Fraud
	AuditFraudEventCreated AuditAction = "FRAUD_EVENT_CREATED"
	AuditFraudMatchFound   AuditAction = "FRAUD_MATCH_FOUND"

	// System
	AuditSystemStartup  AuditAction = "SYSTEM_STARTUP"
	AuditSystemShutdown AuditAction = "SYSTEM_SHUTDOWN"
)

// AuditLog is one immutable, hash-chained entry in a tenant's append-only
// audit log. TenantID is nil only for system events.
type AuditLog struct {
	ID       string
	TenantID *string

	Timestamp   time.Time
	UserID      *string
	Username    string
	IPAddress   string
	UserAgent   string
	Action      AuditAction
	ResourceType string
	ResourceID  string
	Description string

	BeforeValue []byte // canonical JSON, may be nil
	AfterValue  []byte
	ExtraData   []byte

	SessionID *string

	PreviousHash  string
	IntegrityHash string
}

// ItemView is an append-only record of a reviewer view session.
type ItemView struct {
	ID              string
	TenantID        string
	CheckItemID     string
	UserID          string
	ViewStartedAt   time.Time
	ViewEndedAt     *time.Time
	ZoomedImage     bool
	ReadFullDetail  bool
}
