package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PeekExpiry reads the exp claim of a JWT without verifying it. Clients use
// it only as a hint for when a token they already hold runs out.
func PeekExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, ErrMalformed
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
