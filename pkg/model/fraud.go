package model

import "time"

// SharingLevel gates how much of a fraud artifact is exposed to the network.
type SharingLevel int

const (
	SharingPrivate      SharingLevel = 0
	SharingAggregate    SharingLevel = 1
	SharingNetworkMatch SharingLevel = 2
)

// FraudEvent is private, full-detail and never shared across tenants.
type FraudEvent struct {
	ID          string
	TenantID    string
	CheckItemID *string
	ReportedBy  string
	FraudType   string
	Channel     string
	Description string
	RawIndicators map[string]string
	CreatedAt   time.Time
}

// FraudSharedArtifact carries only hashed indicators and coarsened buckets;
// it intentionally crosses tenant boundaries.
type FraudSharedArtifact struct {
	ID                 string
	SourceTenantID     string
	FraudType          string
	Channel            string
	SharingLevel       SharingLevel
	RoutingHash        *string
	PayeeHash          *string
	AccountHash        *string
	CheckNumberHash    *string
	FingerprintHash    string
	AmountBucket       string
	MonthBucket        string
	PepperVersion      int
	CreatedAt          time.Time
}

// NetworkMatchAlert is a per-tenant view of aggregate matches; it never
// exposes artifact IDs or counterpart tenant identities to the user.
type NetworkMatchAlert struct {
	ID                    string
	TenantID              string
	FingerprintHash       string
	MatchReasons          []string
	DistinctInstitutions  int
	OccurrenceCount       int
	CreatedAt             time.Time
}

// TenantFraudConfig holds a tenant's sharing defaults and eligible pepper
// versions.
type TenantFraudConfig struct {
	TenantID              string
	ShareByDefault        bool
	AllowAccountHashing   bool
	EligiblePepperVersions []int
}
