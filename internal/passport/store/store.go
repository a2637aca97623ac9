package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/passport/internal/passport/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the drivers. Work
// that must be atomic goes through WithTx.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// WithTx runs fn in a transaction, committing when it returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped view of the repositories.
type Tx interface {
	Users() Users
	RefreshTokens() RefreshTokens
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user; ErrAlreadyExists when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser replaces the password hash and scopes and bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash looks a token up by fingerprint, revoked or not.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked; ErrNotFound if no token has that hash.
	RevokeRefreshToken(ctx context.Context, hash string) error

	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens removes tokens expired or revoked before
	// now and returns how many were deleted.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
