package jwtx

import (
	"slices"
	"time"

	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of access tokens unless configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims are the access-token claims issued by the passport service.
type Claims struct {
	jwt.RegisteredClaims

	// Username for the authenticated admin
	Username string `json:"username,omitempty"`

	// Permission scopes, e.g. "admin:read admin:write"
	Scopes []string `json:"scopes,omitempty"`
}

// NewAccessClaims builds claims valid from now for ttl.
func NewAccessClaims(subject, username string, scopes []string, ttl time.Duration, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        idx.NewAt(now).String(),
		},
		Username: username,
		Scopes:   scopes,
	}
}

// HasScope reports whether scope was granted.
func (c Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
