package model

import "time"

// Permission is a (resource, action) pair checked at the dispatch layer
// (C11). The catalog is closed and defined in code, not in the database.
type Permission struct {
	Resource string
	Action   string
}

func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Well-known permissions exercised by the decision and dispatch flows.
var (
	PermCheckItemView     = Permission{"check_item", "view"}
	PermCheckItemDecide   = Permission{"check_item", "decide"}
	PermCheckItemAssign   = Permission{"check_item", "assign"}
	PermCheckItemReview   = Permission{"check_item", "review"}
	PermCheckImageView    = Permission{"check_image", "view"}
	PermPolicyManage      = Permission{"policy", "manage"}
	PermUserManage        = Permission{"user", "manage"}
	PermAuditView         = Permission{"audit", "view"}
	PermAuditExport       = Permission{"audit", "export"}
	PermFraudView         = Permission{"fraud", "view"}
	PermFraudSubmit       = Permission{"fraud", "submit"}
	PermDecisionOverride  = Permission{"decision", "override"}
)

// Role is a named bundle of permissions. The catalog of role names is
// global; grants of a role to a user are tenant-local.
type Role struct {
	ID          string
	Name        string
	Permissions []Permission
}

// HasPermission reports whether the role directly carries perm.
func (r Role) HasPermission(perm Permission) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// User is a tenant-scoped reviewer/approver/admin account.
type User struct {
	ID       string
	TenantID string
	Username string
	Email    string

	PasswordHash       string
	MFAEnabled         bool
	MFASecret          string
	FailedLoginAttempts int
	LockedUntil        *time.Time
	LastLogin          *time.Time
	AllowedIPs         []string
	IsSuperuser        bool
	IsActive           bool

	RoleIDs []string
	Roles   []Role

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPermission reports whether any of the user's roles carries perm, or
// the user is a superuser.
func (u User) HasPermission(perm Permission) bool {
	if u.IsSuperuser {
		return true
	}
	for _, r := range u.Roles {
		if r.HasPermission(perm) {
			return true
		}
	}
	return false
}

// UserSession is one live refresh-token handle.
type UserSession struct {
	ID               string
	TenantID         string
	UserID           string
	RefreshTokenHash string
	DeviceFingerprint string
	IPAddress        string
	UserAgent        string
	ExpiresAt        time.Time
	IsActive         bool
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// Queue is a work queue items are routed into.
type Queue struct {
	ID       string
	TenantID string
	Name     string
}

// QueueAssignment grants a user review/approval rights within a queue.
type QueueAssignment struct {
	ID                string
	TenantID          string
	QueueID           string
	UserID            string
	CanReview         bool
	CanApprove        bool
	MaxConcurrentItems int
}

// EntitlementType mirrors the three dual-control-relevant grants.
type EntitlementType string

const (
	EntitlementReview   EntitlementType = "review"
	EntitlementApprove  EntitlementType = "approve"
	EntitlementOverride EntitlementType = "override"
)

// ApprovalEntitlement scopes a user's (or role's) right to review, approve,
// or override an item by amount/account type/queue/risk/business line.
type ApprovalEntitlement struct {
	ID       string
	TenantID string

	UserID *string
	RoleID *string

	EntitlementType EntitlementType

	MinAmount           *Money
	MaxAmount           *Money
	AllowedAccountTypes []AccountType
	AllowedQueueIDs     []string
	AllowedRiskLevels   []RiskLevel
	AllowedBusinessLines []string

	IsActive        bool
	EffectiveFrom   time.Time
	EffectiveUntil  *time.Time
}
