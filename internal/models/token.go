package models

import "time"

// SessionToken is the rotating credential displayed as a QR code during a
// session. Only the digest of the secret is persisted.
type SessionToken struct {
	ID           string     `db:"id" json:"id"`
	SessionID    string     `db:"session_id" json:"session_id"`
	SecretDigest string     `db:"secret_digest" json:"-"`
	IssuedAt     time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	Active       bool       `db:"active" json:"active"`
	ConsumedAt   *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
}

// Expired reports whether now is past the token's expiry.
func (t *SessionToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IssuedToken is returned once, at issuance. Secret is never readable again.
type IssuedToken struct {
	TokenID   string    `json:"token_id"`
	SessionID string    `json:"session_id"`
	Secret    string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
