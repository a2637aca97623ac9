package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/passport/internal/passport/domain"
	"github.com/aussiebroadwan/passport/internal/passport/store"
	"github.com/aussiebroadwan/passport/pkg/cryptox"
	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultRefreshTokenTTL bounds how long a session can be kept alive
// without logging in again.
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrInvalidOTP         = errors.New("invalid_otp")
)

// totpOpts matches what authenticator apps generate by default.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type TokenService struct {
	Store      store.Store
	Signer     jwtx.Signer
	Hasher     cryptox.Hasher
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login checks a username and password, plus a one-time code for users
// with a TOTP secret, and starts a new session.
func (s *TokenService) Login(ctx context.Context, username, password, code string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same time as a real check so unknown usernames are not revealed
			_ = s.Hasher.Verify(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		l.Info("login failed", "username", username)
		return nil, ErrInvalidCredentials
	}

	if u.TOTPSecret != "" {
		ok, err := totp.ValidateCustom(strings.TrimSpace(code), u.TOTPSecret, s.now().UTC(), totpOpts)
		if err != nil || !ok {
			l.Info("login failed, bad one-time code", "username", username)
			return nil, ErrInvalidOTP
		}
	}

	var pair *domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.issue(ctx, tx, u, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	l.Info("login succeeded", "user_id", u.ID)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked and replaced in the same transaction.
func (s *TokenService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenPair, error) {
	now := s.now()
	fp := cryptox.FingerprintToken(refreshOpaque)

	var pair *domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		if !rt.Usable(now) {
			if rt.Revoked {
				// A rotated token came back: someone else may hold the session.
				slogx.FromContext(ctx).Warn("revoked refresh token reused", "user_id", rt.UserID)
			}
			return ErrInvalidRefresh
		}

		u, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		if err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
			return err
		}
		pair, err = s.issue(ctx, tx, u, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes a refresh token owned by userID. Unknown tokens are ignored
// so logging out twice is harmless.
func (s *TokenService) Logout(ctx context.Context, userID, refreshOpaque string) error {
	if refreshOpaque == "" {
		return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
	}

	fp := cryptox.FingerprintToken(refreshOpaque)
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rt.UserID != userID {
			return nil
		}
		return tx.RefreshTokens().RevokeRefreshToken(ctx, fp)
	})
}

// issue signs an access token and stores a fresh refresh token for u.
func (s *TokenService) issue(ctx context.Context, tx store.Tx, u domain.User, now time.Time) (*domain.TokenPair, error) {
	claims := jwtx.NewAccessClaims(u.ID, u.Username, u.Scopes, s.AccessTTL, s.Issuer, now)
	access, err := s.Signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	refresh, fp, err := cryptox.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	if err := tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    u.ID,
		TokenHash: fp,
		Scopes:    u.Scopes,
		ExpiresAt: now.Add(s.RefreshTTL),
	}); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		ExpireAt:     int64(s.AccessTTL / time.Second),
		RefreshToken: refresh,
	}, nil
}
