// Package credstore holds the session credentials of an admin API client and
// persists them across process restarts.
package credstore

import (
	"context"
	"fmt"
	"time"
)

// Durable cache keys shared by every persistent driver.
const (
	KeyToken        = "token"
	KeyExpire       = "expire"
	KeyRefreshToken = "refresh_token"
)

// Credentials is the token set of one session. An empty AccessToken means
// the session is logged out.
type Credentials struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expire"` // unix seconds, 0 when unknown
}

// Active reports whether the credentials represent a logged in session.
func (c Credentials) Active() bool { return c.AccessToken != "" }

// Expired reports whether the access token has passed its expiry at now.
// Unknown expiry is treated as not expired; the server is the authority.
func (c Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt > 0 && now.Unix() >= c.ExpiresAt
}

// Store is the process-wide holder of the current credentials. Set must be
// atomic with respect to concurrent Get calls.
type Store interface {
	Get(ctx context.Context) (Credentials, error)
	Set(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// StoreError reports a failed store operation.
type StoreError struct {
	Op  string // "get", "set", "clear", "open"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("credstore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
