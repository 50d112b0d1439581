package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrWrongTokenType = errors.New("jwtauth: token type mismatch")
	ErrTokenInvalid   = errors.New("jwtauth: token invalid")
)

const issuer = "checkops"

// Manager issues and validates the access/refresh/image-url token triad.
type Manager struct {
	accessKeys   *HMACKeySet
	refreshKeys  *HMACKeySet
	imageKeys    *HMACKeySet
	accessTTL    time.Duration
	refreshTTL   time.Duration
	imageURLTTL  time.Duration
}

func NewManager(secretKey, imageSigningKey string, accessTTL, refreshTTL, imageURLTTL time.Duration) *Manager {
	// Access and refresh tokens are signed with the same SECRET_KEY but are
	// never interchangeable: Type is checked on every Validate call, and
	// the refresh path additionally requires a session lookup.
	return &Manager{
		accessKeys:  NewHMACKeySet(secretKey),
		refreshKeys: NewHMACKeySet(secretKey),
		imageKeys:   NewHMACKeySet(imageSigningKey),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		imageURLTTL: imageURLTTL,
	}
}

// RotateSecretKey rotates the key used for access and refresh tokens.
func (m *Manager) RotateSecretKey(newSecret string) {
	m.accessKeys.Rotate(newSecret)
	m.refreshKeys.Rotate(newSecret)
}

func (m *Manager) IssueAccessToken(tenantID, userID, sessionID string, roles []string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		Type:      TokenAccess,
		TenantID:  tenantID,
		UserID:    userID,
		SessionID: sessionID,
		Roles:     roles,
	}
	return m.accessKeys.Sign(claims)
}

func (m *Manager) IssueRefreshToken(tenantID, userID, sessionID string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
		Type:      TokenRefresh,
		TenantID:  tenantID,
		UserID:    userID,
		SessionID: sessionID,
	}
	return m.refreshKeys.Sign(claims)
}

// ValidateAccessToken parses an access token and enforces its Type.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, m.accessKeys, TokenAccess)
}

// ValidateRefreshToken parses a refresh token and enforces its Type. The
// caller is still responsible for checking the session/rotation record:
// token validity alone does not mean the refresh token hasn't already
// been rotated out from under it.
func (m *Manager) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, m.refreshKeys, TokenRefresh)
}

func (m *Manager) validate(tokenString string, ks *HMACKeySet, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, ks.KeyFunc())
	if err != nil || !token.Valid {
		if prior := ks.priorKey(); len(prior) > 0 {
			token, err = jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
				return prior, nil
			})
		}
		if err != nil || !token.Valid {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// IssueImageURLToken signs a short-lived bearer token naming one specific
// image, used by the signed-URL image-serving path.
func (m *Manager) IssueImageURLToken(tenantID, checkItemID, imageID, userID string) (string, error) {
	now := time.Now().UTC()
	claims := ImageURLClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.imageURLTTL)),
		},
		Type:        TokenImageURL,
		TenantID:    tenantID,
		CheckItemID: checkItemID,
		ImageID:     imageID,
		UserID:      userID,
	}
	return m.imageKeys.Sign(claims)
}

func (m *Manager) ValidateImageURLToken(tokenString string) (*ImageURLClaims, error) {
	claims := &ImageURLClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.imageKeys.KeyFunc())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Type != TokenImageURL {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
