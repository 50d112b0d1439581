// Package canonicalize produces RFC 8785 (JSON Canonicalization Scheme)
// style deterministic serialization for hashes that must be reproducible
// across processes; evidence-snapshot sealing is its caller.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the canonical JSON representation of v per RFC 8785: map
// keys sorted by UTF-16 code unit, no HTML escaping, no extraneous
// whitespace, numbers rendered in RFC 8785's canonical form.
//
// v is first passed through the standard encoder (so struct json tags are
// honored), then transformed by gowebpki/jcs, which implements the ECMA-262
// number-to-string algorithm RFC 8785 mandates — something a hand-rolled
// re-encoder gets wrong at the float edges.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 hex digest of the canonical JSON form of v.
func Hash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
