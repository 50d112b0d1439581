package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

var (
	ErrEmptyTenantID    = errors.New("audit: tenant_id must not be empty")
	ErrInvalidTimeRange = errors.New("audit: start_time must be before end_time")
)

// ExportRequest defines what to export.
type ExportRequest struct {
	TenantID  string     `json:"tenant_id"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Exporter builds the audit-packet bundle behind POST /audit/packet: a zip
// of the tenant's chain (or a window of it), a manifest with checksums, and
// the chain-verification result computed at export time, so an examiner can
// see whether the chain was intact when the packet was cut.
type Exporter struct {
	reader ChainReader
	now    func() time.Time
}

func NewExporter(reader ChainReader) *Exporter {
	return &Exporter{reader: reader, now: time.Now}
}

// GeneratePack creates a zip containing the audit rows and a manifest, and
// returns it with its SHA-256 checksum.
func (e *Exporter) GeneratePack(ctx context.Context, req ExportRequest) ([]byte, string, error) {
	if req.TenantID == "" {
		return nil, "", ErrEmptyTenantID
	}
	if req.StartTime != nil && req.EndTime != nil && req.StartTime.After(*req.EndTime) {
		return nil, "", ErrInvalidTimeRange
	}

	rows, err := e.reader.ListRange(ctx, req.TenantID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, "", fmt.Errorf("audit: export query: %w", err)
	}

	verification, err := VerifyTenantChain(ctx, e.reader, req.TenantID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, "", err
	}

	eventsJSON, err := json.MarshalIndent(exportRows(rows), "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal events: %w", err)
	}

	generatedAt := e.now().UTC()
	manifest := map[string]any{
		"tenant_id":    req.TenantID,
		"generated_at": generatedAt,
		"event_count":  len(rows),
		"chain_valid":  verification.Valid,
		"period": map[string]any{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}
	if !verification.Valid {
		manifest["chain_broken_at"] = verification.BrokenRowID
	}
	if n := len(rows); n > 0 {
		manifest["chain_head"] = rows[n-1].IntegrityHash
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	f, err := w.Create("events.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(eventsJSON)

	f, err = w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(manifestJSON)

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(f, "Audit packet for tenant %s\nGenerated at %s\nVerify each record's integrity_hash against its serialized fields and the previous record's hash.\n",
		req.TenantID, generatedAt.Format(time.RFC3339))

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	sum := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(sum[:]), nil
}

// exportRow flattens an AuditLog for the packet; []byte JSON columns are
// embedded as raw JSON rather than base64.
type exportRow struct {
	ID            string          `json:"id"`
	TenantID      *string         `json:"tenant_id"`
	Timestamp     time.Time       `json:"timestamp"`
	UserID        *string         `json:"user_id"`
	Username      string          `json:"username"`
	IPAddress     string          `json:"ip_address"`
	UserAgent     string          `json:"user_agent"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	Description   string          `json:"description"`
	BeforeValue   json.RawMessage `json:"before_value,omitempty"`
	AfterValue    json.RawMessage `json:"after_value,omitempty"`
	ExtraData     json.RawMessage `json:"extra_data,omitempty"`
	SessionID     *string         `json:"session_id,omitempty"`
	PreviousHash  string          `json:"previous_hash"`
	IntegrityHash string          `json:"integrity_hash"`
}

func exportRows(rows []model.AuditLog) []exportRow {
	out := make([]exportRow, len(rows))
	for i, r := range rows {
		out[i] = exportRow{
			ID:            r.ID,
			TenantID:      r.TenantID,
			Timestamp:     r.Timestamp,
			UserID:        r.UserID,
			Username:      r.Username,
			IPAddress:     r.IPAddress,
			UserAgent:     r.UserAgent,
			Action:        string(r.Action),
			ResourceType:  r.ResourceType,
			ResourceID:    r.ResourceID,
			Description:   r.Description,
			BeforeValue:   json.RawMessage(r.BeforeValue),
			AfterValue:    json.RawMessage(r.AfterValue),
			ExtraData:     json.RawMessage(r.ExtraData),
			SessionID:     r.SessionID,
			PreviousHash:  r.PreviousHash,
			IntegrityHash: r.IntegrityHash,
		}
	}
	return out
}
