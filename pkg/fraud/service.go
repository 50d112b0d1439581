package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/model"
)

// ErrBelowPrivacyThreshold is returned by NetworkMatches when an alert's
// aggregate statistics have not yet crossed FRAUD_PRIVACY_THRESHOLD
// distinct contributing institutions (default 3): the aggregate is
// withheld entirely rather than shown with a small, re-identifiable
// count.
var ErrBelowPrivacyThreshold = errors.New("fraud: aggregate below privacy threshold")

// Store persists fraud events, shared artifacts and match alerts.
// FraudEvent never crosses the Store's tenant boundary; FraudSharedArtifact
// intentionally does, which is why InsertSharedArtifact takes no tenant
// filter argument beyond what is already on the artifact.
type Store interface {
	InsertEvent(ctx context.Context, e *model.FraudEvent) error
	InsertSharedArtifact(ctx context.Context, a *model.FraudSharedArtifact) error
	// FindArtifactsByFingerprint returns every shared artifact across all
	// tenants matching fingerprintHash, used to build a match alert.
	FindArtifactsByFingerprint(ctx context.Context, fingerprintHash string) ([]model.FraudSharedArtifact, error)
	InsertMatchAlert(ctx context.Context, a *model.NetworkMatchAlert) error
	ListAlerts(ctx context.Context, tenantID string, limit, offset int) ([]model.NetworkMatchAlert, error)
	GetTenantConfig(ctx context.Context, tenantID string) (*model.TenantFraudConfig, error)
}

// Service implements fraud-event intake and network-match computation.
type Service struct {
	store            Store
	hasher           *Hasher
	privacyThreshold int
	now              func() time.Time
}

func NewService(store Store, hasher *Hasher, privacyThreshold int) *Service {
	return &Service{store: store, hasher: hasher, privacyThreshold: privacyThreshold, now: time.Now}
}

// ReportInput is the raw (un-normalized) content of a fraud submission.
type ReportInput struct {
	TenantID      string
	CheckItemID   *string
	ReportedBy    string
	FraudType     string
	Channel       string
	Description   string
	RoutingNumber string
	PayeeName     string
	AccountNumber string
	CheckNumber   string
	Amount        model.Money
	CheckDate     time.Time
	ShareToNetwork bool
}

// Report records a private FraudEvent and, if the tenant opts in (either
// per-call or via its TenantFraudConfig default), mints a hashed
// FraudSharedArtifact with no raw PII.
func (s *Service) Report(ctx context.Context, in ReportInput) (*model.FraudEvent, *model.FraudSharedArtifact, error) {
	now := s.now()
	event := &model.FraudEvent{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		CheckItemID: in.CheckItemID,
		ReportedBy:  in.ReportedBy,
		FraudType:   in.FraudType,
		Channel:     in.Channel,
		Description: in.Description,
		RawIndicators: map[string]string{
			"routing_number": in.RoutingNumber,
			"payee_name":     in.PayeeName,
			"account_number": in.AccountNumber,
			"check_number":   in.CheckNumber,
		},
		CreatedAt: now,
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return nil, nil, fmt.Errorf("fraud: insert event: %w", err)
	}

	share := in.ShareToNetwork
	cfg, err := s.store.GetTenantConfig(ctx, in.TenantID)
	if err == nil && cfg != nil && !in.ShareToNetwork {
		share = cfg.ShareByDefault
	}
	if !share {
		return event, nil, nil
	}

	artifact, err := s.buildArtifact(in)
	if err != nil {
		return event, nil, fmt.Errorf("fraud: build artifact: %w", err)
	}
	if err := s.store.InsertSharedArtifact(ctx, artifact); err != nil {
		return event, nil, fmt.Errorf("fraud: insert artifact: %w", err)
	}
	return event, artifact, nil
}

func (s *Service) buildArtifact(in ReportInput) (*model.FraudSharedArtifact, error) {
	var routingHash, payeeHash, accountHash, checkHash *string
	var normRouting, normCheck string

	if in.RoutingNumber != "" {
		r, err := NormalizeRoutingNumber(in.RoutingNumber)
		if err != nil {
			return nil, err
		}
		normRouting = r
		h, _ := s.hasher.RoutingHash(r)
		routingHash = &h
	}
	if in.PayeeName != "" {
		p := NormalizePayeeName(in.PayeeName)
		h, _ := s.hasher.PayeeHash(p)
		payeeHash = &h
	}
	if in.AccountNumber != "" {
		a, err := NormalizeAccountNumber(in.AccountNumber)
		if err != nil {
			return nil, err
		}
		h, _ := s.hasher.AccountHash(a)
		accountHash = &h
	}
	if in.CheckNumber != "" {
		normCheck = NormalizeCheckNumber(in.CheckNumber)
		h, _ := s.hasher.CheckNumberHash(normCheck)
		checkHash = &h
	}

	amountBucket := AmountBucket(in.Amount)
	monthBucket := MonthBucket(in.CheckDate)
	fingerprint, version := s.hasher.Fingerprint(normRouting, amountBucket, monthBucket, normCheck)

	return &model.FraudSharedArtifact{
		ID:              uuid.NewString(),
		SourceTenantID:  in.TenantID,
		FraudType:       in.FraudType,
		Channel:         in.Channel,
		SharingLevel:    model.SharingNetworkMatch,
		RoutingHash:     routingHash,
		PayeeHash:       payeeHash,
		AccountHash:     accountHash,
		CheckNumberHash: checkHash,
		FingerprintHash: fingerprint,
		AmountBucket:    amountBucket,
		MonthBucket:     monthBucket,
		PepperVersion:   version,
		CreatedAt:       s.now(),
	}, nil
}

// NetworkMatches builds an aggregate NetworkMatchAlert for fingerprintHash,
// withholding it entirely unless distinct contributing institutions meet
// the configured privacy threshold (default 3). The returned alert never
// names counterpart tenants or artifact IDs.
func (s *Service) NetworkMatches(ctx context.Context, tenantID, fingerprintHash string) (*model.NetworkMatchAlert, error) {
	artifacts, err := s.store.FindArtifactsByFingerprint(ctx, fingerprintHash)
	if err != nil {
		return nil, fmt.Errorf("fraud: find artifacts: %w", err)
	}

	distinct := map[string]bool{}
	var reasons []string
	for _, a := range artifacts {
		distinct[a.SourceTenantID] = true
		reasons = append(reasons, a.FraudType)
	}
	if len(distinct) < s.privacyThreshold {
		return nil, ErrBelowPrivacyThreshold
	}

	alert := &model.NetworkMatchAlert{
		ID:                   uuid.NewString(),
		TenantID:             tenantID,
		FingerprintHash:      fingerprintHash,
		MatchReasons:         dedupeStrings(reasons),
		DistinctInstitutions: len(distinct),
		OccurrenceCount:      len(artifacts),
		CreatedAt:            s.now(),
	}
	if err := s.store.InsertMatchAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("fraud: insert alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns the tenant's stored network match alerts, newest
// first.
func (s *Service) ListAlerts(ctx context.Context, tenantID string, limit, offset int) ([]model.NetworkMatchAlert, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.store.ListAlerts(ctx, tenantID, limit, offset)
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
