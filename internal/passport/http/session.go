package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/passport/service"
	"github.com/aussiebroadwan/passport/pkg/adminsdk"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

const maxBodyBytes = 1 << 16

// SessionHandler serves login, refresh and logout.
type SessionHandler struct {
	Tokens *service.TokenService
}

// Login serves POST /admin/passport/login. Bad credentials are a FAIL
// outcome, not UNAUTHORIZED, so clients never try to refresh on them.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adminsdk.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpx.WriteEnvelope(w, httpx.CodeFail, "invalid request body", nil)
		return
	}

	pair, err := h.Tokens.Login(ctx, req.Username, req.Password, req.OTP)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteEnvelope(w, httpx.CodeFail, "invalid username or password", nil)
		return
	case errors.Is(err, service.ErrInvalidOTP):
		httpx.WriteEnvelope(w, httpx.CodeFail, "invalid one-time code", nil)
		return
	case err != nil:
		slogx.FromContext(ctx).Error("login failed", "err", err)
		httpx.WriteEnvelope(w, httpx.CodeFail, "login failed", nil)
		return
	}

	httpx.WriteSuccess(w, pair)
}

// Refresh serves POST /admin/passport/refresh with the refresh token as the
// bearer credential.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteEnvelope(w, httpx.CodeUnauthorized, "missing refresh token", nil)
		return
	}

	pair, err := h.Tokens.Refresh(ctx, raw)
	switch {
	case errors.Is(err, service.ErrInvalidRefresh):
		httpx.WriteEnvelope(w, httpx.CodeUnauthorized, "refresh token invalid or expired", nil)
		return
	case err != nil:
		slogx.FromContext(ctx).Error("refresh failed", "err", err)
		httpx.WriteEnvelope(w, httpx.CodeFail, "refresh failed", nil)
		return
	}

	httpx.WriteSuccess(w, pair)
}

// Logout serves POST /admin/passport/logout. It always succeeds for an
// authenticated caller; an unknown refresh token is not an error.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adminsdk.LogoutRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteEnvelope(w, httpx.CodeFail, "invalid request body", nil)
		return
	}

	if err := h.Tokens.Logout(ctx, httpx.UserIDFromContext(ctx), req.RefreshToken); err != nil {
		slogx.FromContext(ctx).Warn("logout revoke failed", "err", err)
	}
	httpx.WriteSuccess(w, nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
