package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aussiebroadwan/passport/internal/passport/domain"
	"github.com/aussiebroadwan/passport/internal/passport/store"
	"github.com/aussiebroadwan/passport/pkg/cryptox"
	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

// dummyHash is verified against when a username does not exist.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$c29tZXNhbHRzb21lc2FsdA$2Vv8rPZ0CkS4b4tPxrGEXQ5D+TbaL8cR9YkC8X5cY1E"

// DefaultAdminScopes are granted to the seeded administrator.
var DefaultAdminScopes = []string{"admin:read", "admin:write"}

type UserService struct {
	Store  store.Store
	Hasher cryptox.Hasher
}

// EnsureAdmin creates the seed administrator, or brings an existing one in
// line with the configured password, scopes and TOTP secret. An empty
// secret turns one-time codes off.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string, scopes []string, totpSecret string) (domain.User, error) {
	if username == "" || password == "" {
		return domain.User{}, errors.New("service: admin username and password are required")
	}
	if len(scopes) == 0 {
		scopes = DefaultAdminScopes
	}
	if totpSecret != "" {
		if _, err := totp.GenerateCode(totpSecret, time.Now()); err != nil {
			return domain.User{}, fmt.Errorf("service: admin TOTP secret: %w", err)
		}
	}
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hash, err := s.Hasher.Hash(password)
		if err != nil {
			return domain.User{}, fmt.Errorf("service: hash admin password: %w", err)
		}
		u = domain.User{ID: idx.New().String(), Username: username, PasswordHash: hash, Scopes: scopes, TOTPSecret: totpSecret}
		if err := s.Store.Users().CreateUser(ctx, u); err != nil {
			return domain.User{}, err
		}
		l.Info("seed admin created", "username", username)
		return u, nil

	case err != nil:
		return domain.User{}, err
	}

	if s.Hasher.Verify(password, u.PasswordHash) == nil && slices.Equal(u.Scopes, scopes) && u.TOTPSecret == totpSecret {
		return u, nil
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("service: hash admin password: %w", err)
	}
	u.PasswordHash = hash
	u.Scopes = scopes
	u.TOTPSecret = totpSecret
	if err := s.Store.Users().UpdateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	l.Info("seed admin updated", "username", username)
	return u, nil
}

// Profile returns the user with the given ID.
func (s *UserService) Profile(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}
