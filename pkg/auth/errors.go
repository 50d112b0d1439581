package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrAccountInactive    = errors.New("auth: account is deactivated")
	ErrIPNotAllowed       = errors.New("auth: access denied from this IP address")
	ErrMFAInvalid         = errors.New("auth: invalid MFA code")
	ErrMFARequired        = errors.New("auth: MFA code required")
	ErrTokenInvalid       = errors.New("auth: token invalid")
	ErrSessionExpired     = errors.New("auth: session expired or revoked")
)
