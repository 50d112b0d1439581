package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/model"
)

// FraudStore implements fraud.Store.
type FraudStore struct {
	db *sql.DB
}

func NewFraudStore(db *sql.DB) *FraudStore {
	return &FraudStore{db: db}
}

func (s *FraudStore) InsertEvent(ctx context.Context, e *model.FraudEvent) error {
	indicators, err := json.Marshal(e.RawIndicators)
	if err != nil {
		return fmt.Errorf("pgstore: marshal fraud indicators: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fraud_events (
			id, tenant_id, check_item_id, reported_by, fraud_type, channel,
			description, raw_indicators, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.TenantID, e.CheckItemID, e.ReportedBy, e.FraudType, e.Channel,
		e.Description, indicators, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: insert fraud event: %w", err)
	}
	return nil
}

func (s *FraudStore) InsertSharedArtifact(ctx context.Context, a *model.FraudSharedArtifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_shared_artifacts (
			id, source_tenant_id, fraud_type, channel, sharing_level,
			routing_hash, payee_hash, account_hash, check_number_hash,
			fingerprint_hash, amount_bucket, month_bucket, pepper_version, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.SourceTenantID, a.FraudType, a.Channel, int(a.SharingLevel),
		a.RoutingHash, a.PayeeHash, a.AccountHash, a.CheckNumberHash,
		a.FingerprintHash, a.AmountBucket, a.MonthBucket, a.PepperVersion, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: insert fraud shared artifact: %w", err)
	}
	return nil
}

func (s *FraudStore) FindArtifactsByFingerprint(ctx context.Context, fingerprintHash string) ([]model.FraudSharedArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_tenant_id, fraud_type, channel, sharing_level, routing_hash,
		       payee_hash, account_hash, check_number_hash, fingerprint_hash,
		       amount_bucket, month_bucket, pepper_version, created_at
		FROM fraud_shared_artifacts WHERE fingerprint_hash = $1`, fingerprintHash)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find artifacts by fingerprint: %w", err)
	}
	defer rows.Close()

	var out []model.FraudSharedArtifact
	for rows.Next() {
		var a model.FraudSharedArtifact
		var sharingLevel int
		if err := rows.Scan(&a.ID, &a.SourceTenantID, &a.FraudType, &a.Channel, &sharingLevel,
			&a.RoutingHash, &a.PayeeHash, &a.AccountHash, &a.CheckNumberHash, &a.FingerprintHash,
			&a.AmountBucket, &a.MonthBucket, &a.PepperVersion, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan shared artifact: %w", err)
		}
		a.SharingLevel = model.SharingLevel(sharingLevel)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *FraudStore) InsertMatchAlert(ctx context.Context, a *model.NetworkMatchAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO network_match_alerts (
			id, tenant_id, fingerprint_hash, match_reasons, distinct_institutions,
			occurrence_count, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.TenantID, a.FingerprintHash, pq.StringArray(a.MatchReasons),
		a.DistinctInstitutions, a.OccurrenceCount, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: insert match alert: %w", err)
	}
	return nil
}

func (s *FraudStore) ListAlerts(ctx context.Context, tenantID string, limit, offset int) ([]model.NetworkMatchAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, fingerprint_hash, match_reasons, distinct_institutions,
		       occurrence_count, created_at
		FROM network_match_alerts WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list match alerts: %w", err)
	}
	defer rows.Close()

	var out []model.NetworkMatchAlert
	for rows.Next() {
		var a model.NetworkMatchAlert
		var reasons pq.StringArray
		if err := rows.Scan(&a.ID, &a.TenantID, &a.FingerprintHash, &reasons,
			&a.DistinctInstitutions, &a.OccurrenceCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan match alert: %w", err)
		}
		a.MatchReasons = []string(reasons)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *FraudStore) GetTenantConfig(ctx context.Context, tenantID string) (*model.TenantFraudConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, share_by_default, allow_account_hashing, eligible_pepper_versions
		FROM tenant_fraud_configs WHERE tenant_id = $1`, tenantID)
	var c model.TenantFraudConfig
	var versions pq.Int64Array
	err := row.Scan(&c.TenantID, &c.ShareByDefault, &c.AllowAccountHashing, &versions)
	if err == sql.ErrNoRows {
		return &model.TenantFraudConfig{TenantID: tenantID, ShareByDefault: false, EligiblePepperVersions: []int{1}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get tenant fraud config: %w", err)
	}
	for _, v := range versions {
		c.EligiblePepperVersions = append(c.EligiblePepperVersions, int(v))
	}
	return &c, nil
}
