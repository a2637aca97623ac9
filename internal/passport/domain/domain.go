// Package domain holds the records the passport service works with.
package domain

import "time"

// User is an administrator that can log in to the admin API.
type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2id PHC string
	Scopes       []string
	TOTPSecret   string // base32, empty when login takes no one-time code
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is the stored record of an issued refresh token. The opaque
// value is never stored, only its fingerprint.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // base64url SHA-256 of the opaque token
	Scopes    []string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usable reports whether the token may still be exchanged at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	ExpireAt     int64  `json:"expire_at"` // seconds until the access token expires
	RefreshToken string `json:"refresh_token"`
}
