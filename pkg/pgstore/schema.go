package pgstore

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates every table, index and trigger the stores in this
// package expect. It is idempotent and intended for startup and test
// bootstrap; production rollouts run the same statements through their own
// migration tooling.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: ensure schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                    TEXT PRIMARY KEY,
		tenant_id             TEXT NOT NULL,
		username              TEXT NOT NULL,
		email                 TEXT NOT NULL,
		password_hash         TEXT NOT NULL,
		mfa_enabled           BOOLEAN NOT NULL DEFAULT false,
		mfa_secret            TEXT NOT NULL DEFAULT '',
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until          TIMESTAMPTZ,
		last_login            TIMESTAMPTZ,
		allowed_ips           TEXT[],
		is_superuser          BOOLEAN NOT NULL DEFAULT false,
		is_active             BOOLEAN NOT NULL DEFAULT true,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (tenant_id, username)
	)`,

	`CREATE TABLE IF NOT EXISTS roles (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id  TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		resource TEXT NOT NULL,
		action   TEXT NOT NULL,
		PRIMARY KEY (role_id, resource, action)
	)`,

	`CREATE TABLE IF NOT EXISTS user_roles (
		tenant_id TEXT NOT NULL,
		user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role_id   TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		PRIMARY KEY (tenant_id, user_id, role_id)
	)`,

	`CREATE TABLE IF NOT EXISTS user_sessions (
		id                 TEXT PRIMARY KEY,
		tenant_id          TEXT NOT NULL,
		user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		refresh_token_hash TEXT NOT NULL UNIQUE,
		device_fingerprint TEXT NOT NULL DEFAULT '',
		ip_address         TEXT NOT NULL DEFAULT '',
		user_agent         TEXT NOT NULL DEFAULT '',
		expires_at         TIMESTAMPTZ NOT NULL,
		is_active          BOOLEAN NOT NULL DEFAULT true,
		revoked_at         TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions (user_id, is_active)`,

	`CREATE TABLE IF NOT EXISTS queues (
		id        TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name      TEXT NOT NULL,
		UNIQUE (tenant_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS queue_assignments (
		id                   TEXT PRIMARY KEY,
		tenant_id            TEXT NOT NULL,
		queue_id             TEXT NOT NULL REFERENCES queues(id) ON DELETE CASCADE,
		user_id              TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		can_review           BOOLEAN NOT NULL DEFAULT true,
		can_approve          BOOLEAN NOT NULL DEFAULT false,
		max_concurrent_items INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS approval_entitlements (
		id                     TEXT PRIMARY KEY,
		tenant_id              TEXT NOT NULL,
		user_id                TEXT,
		role_id                TEXT,
		entitlement_type       TEXT NOT NULL,
		min_amount             BIGINT,
		max_amount             BIGINT,
		allowed_account_types  TEXT[],
		allowed_queue_ids      TEXT[],
		allowed_risk_levels    TEXT[],
		allowed_business_lines TEXT[],
		is_active              BOOLEAN NOT NULL DEFAULT true,
		effective_from         TIMESTAMPTZ NOT NULL,
		effective_until        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entitlements_lookup ON approval_entitlements (tenant_id, entitlement_type, is_active)`,

	`CREATE TABLE IF NOT EXISTS policies (
		id                       TEXT PRIMARY KEY,
		tenant_id                TEXT NOT NULL,
		name                     TEXT NOT NULL,
		status                   TEXT NOT NULL DEFAULT 'draft',
		is_default               BOOLEAN NOT NULL DEFAULT false,
		applies_to_account_types TEXT[]
	)`,

	`CREATE TABLE IF NOT EXISTS policy_versions (
		id             TEXT PRIMARY KEY,
		policy_id      TEXT NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
		tenant_id      TEXT NOT NULL,
		effective_date TIMESTAMPTZ NOT NULL,
		is_current     BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_policy_versions_current ON policy_versions (tenant_id, is_current)`,

	`CREATE TABLE IF NOT EXISTS policy_rules (
		id                TEXT PRIMARY KEY,
		policy_version_id TEXT NOT NULL REFERENCES policy_versions(id) ON DELETE CASCADE,
		name              TEXT NOT NULL,
		rule_type         TEXT NOT NULL,
		priority          INTEGER NOT NULL DEFAULT 0,
		is_enabled        BOOLEAN NOT NULL DEFAULT true,
		conditions        JSONB NOT NULL DEFAULT '[]',
		actions           JSONB NOT NULL DEFAULT '[]',
		amount_threshold  BIGINT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS check_items (
		id                          TEXT PRIMARY KEY,
		tenant_id                   TEXT NOT NULL,
		external_item_id            TEXT NOT NULL,
		amount                      BIGINT NOT NULL,
		currency                    TEXT NOT NULL DEFAULT 'USD',
		account_id                  TEXT NOT NULL,
		masked_account              TEXT NOT NULL DEFAULT '',
		routing_number              TEXT NOT NULL DEFAULT '',
		check_number                TEXT NOT NULL DEFAULT '',
		presented_date              TIMESTAMPTZ NOT NULL,
		check_date                  TIMESTAMPTZ NOT NULL,
		micr_raw                    TEXT NOT NULL DEFAULT '',
		item_type                   TEXT NOT NULL,
		account_type                TEXT NOT NULL DEFAULT '',
		payee_name                  TEXT NOT NULL DEFAULT '',
		memo                        TEXT NOT NULL DEFAULT '',
		status                      TEXT NOT NULL DEFAULT 'new',
		risk_level                  TEXT NOT NULL DEFAULT 'low',
		account_tenure_days         INTEGER,
		current_balance             BIGINT,
		average_balance_30d         BIGINT,
		avg_check_amount_30d        BIGINT,
		avg_check_amount_90d        BIGINT,
		avg_check_amount_365d       BIGINT,
		check_std_dev_30d           DOUBLE PRECISION,
		max_check_amount_90d        BIGINT,
		check_frequency_30d         DOUBLE PRECISION,
		check_count_7d              INTEGER,
		check_count_14d             INTEGER,
		total_check_amount_7d       BIGINT,
		total_check_amount_14d      BIGINT,
		returned_item_count_90d     INTEGER,
		exception_count_90d         INTEGER,
		overdraft_count_30d         INTEGER,
		overdraft_count_90d         INTEGER,
		nsf_count_90d               INTEGER,
		relationship_tenure_yrs     DOUBLE PRECISION,
		is_payroll_account          BOOLEAN,
		has_direct_deposit          BOOLEAN,
		deposit_regularity_score    DOUBLE PRECISION,
		check_number_gap            INTEGER,
		is_duplicate_check_number   BOOLEAN,
		is_out_of_sequence          BOOLEAN,
		check_age_days              INTEGER,
		is_stale_dated              BOOLEAN,
		is_post_dated               BOOLEAN,
		has_micr_anomaly            BOOLEAN,
		micr_confidence_score       DOUBLE PRECISION,
		has_alteration_flag         BOOLEAN,
		signature_match_score       DOUBLE PRECISION,
		prior_review_count          INTEGER,
		prior_approval_count        INTEGER,
		prior_rejection_count       INTEGER,
		ai_recommendation           TEXT NOT NULL DEFAULT '',
		ai_confidence               DOUBLE PRECISION,
		ai_explanation              TEXT NOT NULL DEFAULT '',
		ai_risk_factors             JSONB,
		ai_flags_reviewed           TEXT[],
		assigned_reviewer_id        TEXT,
		assigned_approver_id        TEXT,
		queue_id                    TEXT,
		sla_due_at                  TIMESTAMPTZ,
		sla_breached                BOOLEAN NOT NULL DEFAULT false,
		requires_dual_control       BOOLEAN NOT NULL DEFAULT false,
		pending_dual_control_dec_id TEXT,
		dual_control_reason         TEXT NOT NULL DEFAULT '',
		policy_version_id           TEXT,
		created_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (tenant_id, external_item_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_check_items_tenant_status ON check_items (tenant_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_check_items_tenant_queue ON check_items (tenant_id, queue_id)`,
	`CREATE INDEX IF NOT EXISTS idx_check_items_account ON check_items (tenant_id, account_id)`,

	`CREATE TABLE IF NOT EXISTS check_images (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		check_item_id TEXT NOT NULL REFERENCES check_items(id) ON DELETE CASCADE,
		side          TEXT NOT NULL,
		storage_ref   TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS decisions (
		id                       TEXT PRIMARY KEY,
		tenant_id                TEXT NOT NULL,
		check_item_id            TEXT NOT NULL REFERENCES check_items(id) ON DELETE CASCADE,
		decision_type            TEXT NOT NULL,
		action                   TEXT NOT NULL,
		user_id                  TEXT NOT NULL,
		previous_status          TEXT NOT NULL,
		new_status               TEXT NOT NULL,
		is_dual_control_required BOOLEAN NOT NULL DEFAULT false,
		dual_control_approver_id TEXT,
		notes                    TEXT NOT NULL DEFAULT '',
		reason_codes             TEXT[],
		ai_assisted              BOOLEAN NOT NULL DEFAULT false,
		evidence_snapshot        JSONB NOT NULL,
		created_at               TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_item ON decisions (tenant_id, check_item_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS image_access_tokens (
		id                 TEXT PRIMARY KEY,
		tenant_id          TEXT NOT NULL,
		image_id           TEXT NOT NULL,
		created_by_user_id TEXT NOT NULL,
		expires_at         TIMESTAMPTZ NOT NULL,
		used_at            TIMESTAMPTZ,
		used_by_ip         TEXT NOT NULL DEFAULT '',
		used_by_user_agent TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_image_tokens_lookup ON image_access_tokens (tenant_id, image_id, expires_at)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id             TEXT PRIMARY KEY,
		chain_key      TEXT NOT NULL,
		tenant_id      TEXT,
		timestamp      TIMESTAMPTZ NOT NULL,
		user_id        TEXT,
		username       TEXT NOT NULL DEFAULT '',
		ip_address     TEXT NOT NULL DEFAULT '',
		user_agent     TEXT NOT NULL DEFAULT '',
		action         TEXT NOT NULL,
		resource_type  TEXT NOT NULL DEFAULT '',
		resource_id    TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		before_value   JSONB,
		after_value    JSONB,
		extra_data     JSONB,
		session_id     TEXT,
		previous_hash  TEXT NOT NULL,
		integrity_hash TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_chain ON audit_logs (chain_key, timestamp DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_ts ON audit_logs (tenant_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs (tenant_id, resource_type, resource_id)`,

	// The application role is only ever granted INSERT and SELECT on
	// audit_logs; this trigger is the second line of defense so even a
	// superuser session running application code cannot silently mutate
	// the chain. Rows are never deleted: the trigger blocks DELETE as well
	// as UPDATE.
	`CREATE OR REPLACE FUNCTION audit_logs_block_mutation() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'audit_logs is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_logs_no_update ON audit_logs`,
	`CREATE TRIGGER audit_logs_no_update
		BEFORE UPDATE OR DELETE ON audit_logs
		FOR EACH ROW EXECUTE FUNCTION audit_logs_block_mutation()`,

	`CREATE TABLE IF NOT EXISTS item_views (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		check_item_id   TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		view_started_at TIMESTAMPTZ NOT NULL,
		view_ended_at   TIMESTAMPTZ,
		zoomed_image    BOOLEAN NOT NULL DEFAULT false,
		read_full_detail BOOLEAN NOT NULL DEFAULT false
	)`,

	`CREATE TABLE IF NOT EXISTS fraud_events (
		id             TEXT PRIMARY KEY,
		tenant_id      TEXT NOT NULL,
		check_item_id  TEXT,
		reported_by    TEXT NOT NULL,
		fraud_type     TEXT NOT NULL,
		channel        TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		raw_indicators JSONB,
		created_at     TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS fraud_shared_artifacts (
		id                TEXT PRIMARY KEY,
		source_tenant_id  TEXT NOT NULL,
		fraud_type        TEXT NOT NULL,
		channel           TEXT NOT NULL DEFAULT '',
		sharing_level     INTEGER NOT NULL DEFAULT 0,
		routing_hash      TEXT,
		payee_hash        TEXT,
		account_hash      TEXT,
		check_number_hash TEXT,
		fingerprint_hash  TEXT NOT NULL,
		amount_bucket     TEXT NOT NULL,
		month_bucket      TEXT NOT NULL,
		pepper_version    INTEGER NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fraud_artifacts_fingerprint ON fraud_shared_artifacts (fingerprint_hash)`,

	`CREATE TABLE IF NOT EXISTS network_match_alerts (
		id                    TEXT PRIMARY KEY,
		tenant_id             TEXT NOT NULL,
		fingerprint_hash      TEXT NOT NULL,
		match_reasons         TEXT[],
		distinct_institutions INTEGER NOT NULL,
		occurrence_count      INTEGER NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tenant_fraud_configs (
		tenant_id                TEXT PRIMARY KEY,
		share_by_default         BOOLEAN NOT NULL DEFAULT false,
		allow_account_hashing    BOOLEAN NOT NULL DEFAULT true,
		eligible_pepper_versions INTEGER[]
	)`,
}
