// Package evidenceseal implements evidence snapshot sealing and
// verification: every Decision carries a canonicalized, SHA-256-hashed
// snapshot of its surrounding context, chained to the previous decision on
// the same check item so tampering with any snapshot breaks the chain.
package evidenceseal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/canonicalize"
)

const SealVersion = "sha256-v1"

// Snapshot is the sealed evidence document stored on Decision.EvidenceSnapshot.
// Fields are ordered for readability only; sealing canonicalizes key order.
type Snapshot struct {
	ItemSnapshot      map[string]any `json:"item_snapshot"`
	PolicyVersionID   string         `json:"policy_version_id,omitempty"`
	RulesTriggered    []string       `json:"rules_triggered,omitempty"`
	AdvisoryRef       string         `json:"advisory_ref,omitempty"`
	ReviewerNotes     string         `json:"reviewer_notes,omitempty"`
	ReasonCodes       []string       `json:"reason_codes,omitempty"`
	PreviousEvidenceHash *string     `json:"previous_evidence_hash"`
	SealVersion       string         `json:"seal_version"`
	EvidenceHash       string        `json:"evidence_hash"`
	SealTimestamp      time.Time     `json:"seal_timestamp"`
}

// Input is the unsealed content a Decision's sealing step is built from.
type Input struct {
	ItemSnapshot    map[string]any
	PolicyVersionID string
	RulesTriggered  []string
	AdvisoryRef     string
	ReviewerNotes   string
	ReasonCodes     []string

	// PreviousHash is the evidence_hash of the most recent Decision on
	// this (check_item_id, tenant_id), or nil for the first decision.
	PreviousHash *string
}

// Seal builds the unsealed fields, canonicalizes
// and hash them, then attach the hash and chain pointer.
func Seal(in Input, now time.Time) (*Snapshot, error) {
	unsealed := struct {
		ItemSnapshot         map[string]any `json:"item_snapshot"`
		PolicyVersionID      string         `json:"policy_version_id,omitempty"`
		RulesTriggered       []string       `json:"rules_triggered,omitempty"`
		AdvisoryRef          string         `json:"advisory_ref,omitempty"`
		ReviewerNotes        string         `json:"reviewer_notes,omitempty"`
		ReasonCodes          []string       `json:"reason_codes,omitempty"`
		PreviousEvidenceHash *string        `json:"previous_evidence_hash"`
	}{
		ItemSnapshot:         in.ItemSnapshot,
		PolicyVersionID:      in.PolicyVersionID,
		RulesTriggered:       in.RulesTriggered,
		AdvisoryRef:          in.AdvisoryRef,
		ReviewerNotes:        in.ReviewerNotes,
		ReasonCodes:          in.ReasonCodes,
		PreviousEvidenceHash: in.PreviousHash,
	}

	hash, err := canonicalize.Hash(unsealed)
	if err != nil {
		return nil, fmt.Errorf("evidenceseal: hash: %w", err)
	}

	return &Snapshot{
		ItemSnapshot:         in.ItemSnapshot,
		PolicyVersionID:      in.PolicyVersionID,
		RulesTriggered:       in.RulesTriggered,
		AdvisoryRef:          in.AdvisoryRef,
		ReviewerNotes:        in.ReviewerNotes,
		ReasonCodes:          in.ReasonCodes,
		PreviousEvidenceHash: in.PreviousHash,
		SealVersion:          SealVersion,
		EvidenceHash:         hash,
		SealTimestamp:        now,
	}, nil
}

// Marshal serializes a sealed Snapshot for storage in
// Decision.EvidenceSnapshot.
func Marshal(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal is the inverse of Marshal, used by verification and by the
// "previous decision's evidence_hash" lookup in Seal's caller.
func Unmarshal(raw []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("evidenceseal: unmarshal: %w", err)
	}
	return &s, nil
}

// Verify recomputes the hash over s's unsealed fields and compares it to
// the stored evidence_hash.
func Verify(s *Snapshot) (bool, error) {
	unsealed := struct {
		ItemSnapshot         map[string]any `json:"item_snapshot"`
		PolicyVersionID      string         `json:"policy_version_id,omitempty"`
		RulesTriggered       []string       `json:"rules_triggered,omitempty"`
		AdvisoryRef          string         `json:"advisory_ref,omitempty"`
		ReviewerNotes        string         `json:"reviewer_notes,omitempty"`
		ReasonCodes          []string       `json:"reason_codes,omitempty"`
		PreviousEvidenceHash *string        `json:"previous_evidence_hash"`
	}{
		ItemSnapshot:         s.ItemSnapshot,
		PolicyVersionID:      s.PolicyVersionID,
		RulesTriggered:       s.RulesTriggered,
		AdvisoryRef:          s.AdvisoryRef,
		ReviewerNotes:        s.ReviewerNotes,
		ReasonCodes:          s.ReasonCodes,
		PreviousEvidenceHash: s.PreviousEvidenceHash,
	}
	hash, err := canonicalize.Hash(unsealed)
	if err != nil {
		return false, fmt.Errorf("evidenceseal: hash: %w", err)
	}
	return hash == s.EvidenceHash, nil
}

// VerifyChain checks linkage across an ordered (oldest-first) sequence
// of Decision evidence snapshots for one check item: every snapshot's own
// hash must recompute correctly, and each snapshot's previous_evidence_hash
// must equal its predecessor's evidence_hash (nil for the first).
func VerifyChain(snapshots []*Snapshot) (bool, int) {
	var prevHash *string
	for i, s := range snapshots {
		ok, err := Verify(s)
		if err != nil || !ok {
			return false, i
		}
		if i == 0 {
			if s.PreviousEvidenceHash != nil {
				return false, i
			}
		} else {
			if prevHash == nil || s.PreviousEvidenceHash == nil || *s.PreviousEvidenceHash != *prevHash {
				return false, i
			}
		}
		h := s.EvidenceHash
		prevHash = &h
	}
	return true, -1
}
