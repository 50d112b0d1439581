package evidenceseal

import (
	"testing"
	"time"
)

func sealOne(t *testing.T, prev *string, notes string) *Snapshot {
	t.Helper()
	s, err := Seal(Input{
		ItemSnapshot:  map[string]any{"amount": "1234.56", "status": "in_review"},
		ReviewerNotes: notes,
		ReasonCodes:   []string{"verified"},
		PreviousHash:  prev,
	}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return s
}

func TestSeal_VerifyRoundTrip(t *testing.T) {
	s := sealOne(t, nil, "looks fine")
	if s.SealVersion != SealVersion {
		t.Fatalf("got seal version %q", s.SealVersion)
	}
	ok, err := Verify(s)
	if err != nil || !ok {
		t.Fatalf("expected sealed snapshot to verify, ok=%v err=%v", ok, err)
	}
}

func TestSeal_DeterministicForSameInput(t *testing.T) {
	a := sealOne(t, nil, "same")
	b := sealOne(t, nil, "same")
	if a.EvidenceHash != b.EvidenceHash {
		t.Fatalf("identical inputs must produce identical hashes")
	}
}

func TestVerify_DetectsTamperedField(t *testing.T) {
	s := sealOne(t, nil, "original")
	s.ReviewerNotes = "tampered"
	if ok, _ := Verify(s); ok {
		t.Fatalf("tampered snapshot must not verify")
	}
}

func TestMarshalUnmarshal_PreservesVerification(t *testing.T) {
	s := sealOne(t, nil, "persisted")
	raw, err := Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := Verify(back); !ok {
		t.Fatalf("snapshot must survive a storage round-trip")
	}
}

func TestVerifyChain_Valid(t *testing.T) {
	first := sealOne(t, nil, "first")
	second := sealOne(t, &first.EvidenceHash, "second")
	third := sealOne(t, &second.EvidenceHash, "third")

	ok, broken := VerifyChain([]*Snapshot{first, second, third})
	if !ok {
		t.Fatalf("expected valid chain, broken at %d", broken)
	}
}

func TestVerifyChain_FirstMustHaveNilPrevious(t *testing.T) {
	bogus := "deadbeef"
	first := sealOne(t, &bogus, "first")
	if ok, broken := VerifyChain([]*Snapshot{first}); ok || broken != 0 {
		t.Fatalf("chain starting with non-nil previous hash must break at 0, got ok=%v broken=%d", ok, broken)
	}
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	first := sealOne(t, nil, "first")
	wrong := "0000000000000000"
	second := sealOne(t, &wrong, "second")

	ok, broken := VerifyChain([]*Snapshot{first, second})
	if ok || broken != 1 {
		t.Fatalf("expected break at index 1, got ok=%v broken=%d", ok, broken)
	}
}

func TestVerifyChain_DetectsMidChainTamper(t *testing.T) {
	first := sealOne(t, nil, "first")
	second := sealOne(t, &first.EvidenceHash, "second")
	third := sealOne(t, &second.EvidenceHash, "third")

	second.ReviewerNotes = "rewritten history"
	ok, broken := VerifyChain([]*Snapshot{first, second, third})
	if ok || broken != 1 {
		t.Fatalf("expected break at the tampered snapshot, got ok=%v broken=%d", ok, broken)
	}
}
