package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

type memFraudStore struct {
	events    []*model.FraudEvent
	artifacts []*model.FraudSharedArtifact
	alerts    []*model.NetworkMatchAlert
	configs   map[string]*model.TenantFraudConfig
}

func (m *memFraudStore) InsertEvent(ctx context.Context, e *model.FraudEvent) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memFraudStore) InsertSharedArtifact(ctx context.Context, a *model.FraudSharedArtifact) error {
	m.artifacts = append(m.artifacts, a)
	return nil
}

func (m *memFraudStore) FindArtifactsByFingerprint(ctx context.Context, fingerprintHash string) ([]model.FraudSharedArtifact, error) {
	var out []model.FraudSharedArtifact
	for _, a := range m.artifacts {
		if a.FingerprintHash == fingerprintHash {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memFraudStore) InsertMatchAlert(ctx context.Context, a *model.NetworkMatchAlert) error {
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memFraudStore) ListAlerts(ctx context.Context, tenantID string, limit, offset int) ([]model.NetworkMatchAlert, error) {
	var out []model.NetworkMatchAlert
	for _, a := range m.alerts {
		if a.TenantID == tenantID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memFraudStore) GetTenantConfig(ctx context.Context, tenantID string) (*model.TenantFraudConfig, error) {
	if c, ok := m.configs[tenantID]; ok {
		return c, nil
	}
	return &model.TenantFraudConfig{TenantID: tenantID}, nil
}

func reportFor(tenant string) ReportInput {
	return ReportInput{
		TenantID:       tenant,
		ReportedBy:     "u1",
		FraudType:      "counterfeit",
		Channel:        "branch",
		RoutingNumber:  "021000021",
		PayeeName:      "Acme Plumbing LLC",
		AccountNumber:  "123456789",
		CheckNumber:    "001234",
		Amount:         model.Money(2500_00),
		CheckDate:      time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		ShareToNetwork: true,
	}
}

func TestReport_PrivateEventKeepsRawIndicators(t *testing.T) {
	store := &memFraudStore{}
	svc := NewService(store, testHasher(), 3)

	in := reportFor("t1")
	in.ShareToNetwork = false
	event, artifact, err := svc.Report(context.Background(), in)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if artifact != nil {
		t.Fatalf("no artifact may be minted without opt-in")
	}
	if event.RawIndicators["routing_number"] != "021000021" {
		t.Fatalf("private event must keep full detail")
	}
}

func TestReport_SharedArtifactCarriesNoRawPII(t *testing.T) {
	store := &memFraudStore{}
	svc := NewService(store, testHasher(), 3)

	_, artifact, err := svc.Report(context.Background(), reportFor("t1"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if artifact == nil {
		t.Fatalf("expected a shared artifact")
	}
	if artifact.RoutingHash == nil || len(*artifact.RoutingHash) != 64 {
		t.Fatalf("routing indicator must be a sha256 hex hash")
	}
	if artifact.AmountBucket != "1000-5000" {
		t.Fatalf("amount must be bucketed, got %q", artifact.AmountBucket)
	}
	if artifact.MonthBucket != "2026-02" {
		t.Fatalf("date must be coarsened to month, got %q", artifact.MonthBucket)
	}
	if artifact.PepperVersion != 2 {
		t.Fatalf("artifact must record the pepper version it was minted with")
	}
}

func TestNetworkMatches_WithholdsBelowPrivacyThreshold(t *testing.T) {
	store := &memFraudStore{}
	svc := NewService(store, testHasher(), 3)

	// Two distinct institutions report the same instrument: still below
	// the default threshold of 3.
	_, a1, _ := svc.Report(context.Background(), reportFor("t1"))
	_, _, _ = svc.Report(context.Background(), reportFor("t2"))

	if _, err := svc.NetworkMatches(context.Background(), "t1", a1.FingerprintHash); err != ErrBelowPrivacyThreshold {
		t.Fatalf("expected ErrBelowPrivacyThreshold, got %v", err)
	}

	// The third institution crosses it.
	_, _, _ = svc.Report(context.Background(), reportFor("t3"))
	alert, err := svc.NetworkMatches(context.Background(), "t1", a1.FingerprintHash)
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if alert.DistinctInstitutions != 3 || alert.OccurrenceCount != 3 {
		t.Fatalf("got %d institutions / %d occurrences", alert.DistinctInstitutions, alert.OccurrenceCount)
	}
	if len(alert.MatchReasons) != 1 || alert.MatchReasons[0] != "counterfeit" {
		t.Fatalf("match reasons must be deduplicated fraud types, got %v", alert.MatchReasons)
	}
}

func TestReport_TenantDefaultOptInShares(t *testing.T) {
	store := &memFraudStore{configs: map[string]*model.TenantFraudConfig{
		"t1": {TenantID: "t1", ShareByDefault: true},
	}}
	svc := NewService(store, testHasher(), 3)

	in := reportFor("t1")
	in.ShareToNetwork = false
	_, artifact, err := svc.Report(context.Background(), in)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if artifact == nil {
		t.Fatalf("tenant-level default opt-in must mint an artifact")
	}
}
