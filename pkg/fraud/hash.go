package fraud

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// PepperSet holds the current and (during rotation) prior network pepper,
// for the two-peppers-active rotation model: mint with current, match
// against both. It is read-only process-wide state loaded at
// startup; rotation requires a restart or an explicit hot-reload swap.
type PepperSet struct {
	Current        string
	CurrentVersion int
	Prior          string // empty when no rotation is in progress
	PriorVersion   int
}

// Hasher computes HMAC-SHA256 indicator hashes with a prefixed domain
// separator, so "routing:123456789" and a payee that happens to normalize
// to the literal string "123456789" never collide.
type Hasher struct {
	peppers PepperSet
}

func NewHasher(peppers PepperSet) *Hasher {
	return &Hasher{peppers: peppers}
}

// HashCurrent computes HMAC(currentPepper, prefix+":"+normalized) and
// returns it alongside the pepper version it was minted with.
func (h *Hasher) HashCurrent(prefix, normalized string) (hash string, version int) {
	return hmacHex(h.peppers.Current, prefix+":"+normalized), h.peppers.CurrentVersion
}

// MatchesEither reports whether candidateHash equals the hash of
// prefix+":"+normalized under either the current or prior pepper, for
// verifying artifacts minted before a rotation.
func (h *Hasher) MatchesEither(prefix, normalized, candidateHash string) bool {
	if hmacHex(h.peppers.Current, prefix+":"+normalized) == candidateHash {
		return true
	}
	if h.peppers.Prior != "" && hmacHex(h.peppers.Prior, prefix+":"+normalized) == candidateHash {
		return true
	}
	return false
}

// RoutingHash hashes a normalized routing number.
func (h *Hasher) RoutingHash(normalizedRouting string) (string, int) {
	return h.HashCurrent("routing", normalizedRouting)
}

// PayeeHash hashes a normalized payee name.
func (h *Hasher) PayeeHash(normalizedPayee string) (string, int) {
	return h.HashCurrent("payee", normalizedPayee)
}

// AccountHash hashes a normalized (already partial) account indicator.
func (h *Hasher) AccountHash(normalizedAccount string) (string, int) {
	return h.HashCurrent("account", normalizedAccount)
}

// CheckNumberHash hashes a normalized check number.
func (h *Hasher) CheckNumberHash(normalizedCheckNumber string) (string, int) {
	return h.HashCurrent("check", normalizedCheckNumber)
}

// Fingerprint computes the composite check fingerprint: a single
// HMAC over the sorted, pipe-joined set of available component strings.
// Components absent from the indicators are simply omitted, not zeroed.
func (h *Hasher) Fingerprint(routing, amountBucket, monthBucket, checkNumber string) (string, int) {
	var components []string
	if routing != "" {
		components = append(components, "routing:"+routing)
	}
	if amountBucket != "" {
		components = append(components, "amount:"+amountBucket)
	}
	if monthBucket != "" {
		components = append(components, "date:"+monthBucket)
	}
	if checkNumber != "" {
		components = append(components, "check:"+checkNumber)
	}
	sort.Strings(components)
	joined := strings.Join(components, "|")
	return h.HashCurrent("fingerprint", joined)
}

func hmacHex(pepper, message string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
