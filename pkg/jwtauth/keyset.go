// Package jwtauth issues and verifies the access/refresh/image-url JWTs
// used across the API.
package jwtauth

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet signs with the current key and verifies against any key still in
// its acceptance window, so a secret can be rotated without invalidating
// tokens issued moments before.
type KeySet interface {
	Sign(claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

// HMACKeySet is an HS256 KeySet backed by one or two secrets (current and
// prior), matching the SECRET_KEY / NETWORK_PEPPER-style single-secret
// configuration model: no asymmetric key material, no external KMS.
type HMACKeySet struct {
	mu      sync.RWMutex
	current []byte
	prior   []byte // accepted for verification only, never used to sign
}

func NewHMACKeySet(secret string) *HMACKeySet {
	return &HMACKeySet{current: []byte(secret)}
}

// Rotate installs newSecret as the signing key, keeping the previous
// current as the prior verification-only key for one rotation window.
func (ks *HMACKeySet) Rotate(newSecret string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.prior = ks.current
	ks.current = []byte(newSecret)
}

func (ks *HMACKeySet) Sign(claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.current
	ks.mu.RUnlock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

func (ks *HMACKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwtauth: unexpected signing method %v", token.Header["alg"])
		}
		ks.mu.RLock()
		defer ks.mu.RUnlock()
		return ks.current, nil
	}
}

// priorKey is used internally by Manager.validate to fall back to the
// prior secret when verification against current fails, avoiding a second
// exported KeyFunc variant.
func (ks *HMACKeySet) priorKey() []byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.prior
}
