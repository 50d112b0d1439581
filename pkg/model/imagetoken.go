package model

import "time"

// ImageAccessToken is a one-time-use UUID token minted for a single image
// fetch. Invariant: UsedAt transitions from nil to set at most once.
type ImageAccessToken struct {
	ID              string // the token itself
	TenantID        string
	ImageID         string
	CreatedByUserID string
	ExpiresAt       time.Time
	UsedAt          *time.Time
	UsedByIP        string
	UsedByUserAgent string
	CreatedAt       time.Time
}

// Expired reports whether the token's TTL has elapsed as of now.
func (t ImageAccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Used reports whether the token has already been consumed.
func (t ImageAccessToken) Used() bool {
	return t.UsedAt != nil
}
