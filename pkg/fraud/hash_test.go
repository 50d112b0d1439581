package fraud

import (
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

func testHasher() *Hasher {
	return NewHasher(PepperSet{Current: "current-pepper", CurrentVersion: 2, Prior: "prior-pepper", PriorVersion: 1})
}

func TestHash_SemanticallyEqualInputsCollide(t *testing.T) {
	h := testHasher()
	a, _ := h.PayeeHash(NormalizePayeeName("Acme Plumbing, LLC"))
	b, _ := h.PayeeHash(NormalizePayeeName("ACME  plumbing llc"))
	if a != b {
		t.Fatalf("semantically identical payees must hash identically")
	}
}

func TestHash_PrefixesSeparateDomains(t *testing.T) {
	h := testHasher()
	r, _ := h.RoutingHash("021000021")
	c, _ := h.CheckNumberHash("021000021")
	if r == c {
		t.Fatalf("routing and check-number hashes of the same digits must differ")
	}
}

func TestHash_VersionTracksCurrentPepper(t *testing.T) {
	h := testHasher()
	_, version := h.RoutingHash("021000021")
	if version != 2 {
		t.Fatalf("expected pepper version 2, got %d", version)
	}
}

func TestMatchesEither_AcceptsPriorPepperDuringRotation(t *testing.T) {
	old := NewHasher(PepperSet{Current: "prior-pepper", CurrentVersion: 1})
	mintedBeforeRotation, _ := old.RoutingHash("021000021")

	h := testHasher()
	if !h.MatchesEither("routing", "021000021", mintedBeforeRotation) {
		t.Fatalf("hash minted under the prior pepper must still match during rotation")
	}

	fresh, _ := h.RoutingHash("021000021")
	if !h.MatchesEither("routing", "021000021", fresh) {
		t.Fatalf("hash minted under the current pepper must match")
	}

	if h.MatchesEither("routing", "021000021", "not-a-real-hash") {
		t.Fatalf("unrelated value must not match")
	}
}

func TestFingerprint_DeterministicAndComponentSensitive(t *testing.T) {
	h := testHasher()
	// Equal component sets produce equal fingerprints, and dropping
	// components produces a different one.
	a, _ := h.Fingerprint("021000021", "1000-5000", "2026-03", "1234")
	b, _ := h.Fingerprint("021000021", "1000-5000", "2026-03", "1234")
	if a != b {
		t.Fatalf("identical component sets must produce identical fingerprints")
	}

	partial, _ := h.Fingerprint("021000021", "", "2026-03", "")
	if partial == a {
		t.Fatalf("omitting components must change the fingerprint")
	}
}

func TestAmountBucket_Boundaries(t *testing.T) {
	cases := []struct {
		amount model.Money
		want   string
	}{
		{model.Money(99_99), "0-100"},
		{model.Money(100_00), "100-500"},
		{model.Money(999_99), "500-1000"},
		{model.Money(1000_00), "1000-5000"},
		{model.Money(5000_00), "5000-25000"},
		{model.Money(25_000_00), "25000+"},
	}
	for _, c := range cases {
		if got := AmountBucket(c.amount); got != c.want {
			t.Errorf("AmountBucket(%s) = %q, want %q", c.amount, got, c.want)
		}
	}
}

func TestMonthBucket(t *testing.T) {
	d := time.Date(2026, 3, 17, 23, 50, 0, 0, time.UTC)
	if got := MonthBucket(d); got != "2026-03" {
		t.Fatalf("got %q", got)
	}
}
