package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// CSRF generates a double-submit CSRF token bound to a caller identifier
// (the HTTP handlers pass the user ID as sessionID): a random nonce plus
// an HMAC over (sessionID, nonce) keyed by the CSRF secret. The server never stores the token; it just recomputes the HMAC
// on the next request and compares in constant time.
type CSRF struct {
	secret []byte
}

func NewCSRF(secretKey string) *CSRF {
	return &CSRF{secret: []byte(secretKey)}
}

// Issue returns a token to set as a readable (non-HttpOnly) cookie and to
// require back on state-changing requests via a header.
func (c *CSRF) Issue(sessionID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	nonceHex := hex.EncodeToString(nonce)
	return nonceHex + "." + c.sign(sessionID, nonceHex), nil
}

// Verify reports whether token was issued by Issue for sessionID.
func (c *CSRF) Verify(sessionID, token string) bool {
	dot := -1
	for i := range token {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return false
	}
	nonceHex, mac := token[:dot], token[dot+1:]
	expected := c.sign(sessionID, nonceHex)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(mac)) == 1
}

func (c *CSRF) sign(sessionID, nonceHex string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{0})
	mac.Write([]byte(nonceHex))
	return hex.EncodeToString(mac.Sum(nil))
}
