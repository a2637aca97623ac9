package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/passport/service"
	"github.com/aussiebroadwan/passport/internal/passport/store"
	"github.com/aussiebroadwan/passport/pkg/adminsdk"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// SettingsPath is readable only with the admin:write scope.
const SettingsPath = "/admin/system/settings"

// ProfileHandler serves GET /admin/profile for the token's subject.
type ProfileHandler struct {
	Users *service.UserService
}

func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.Users.Profile(ctx, httpx.UserIDFromContext(ctx))
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteEnvelope(w, httpx.CodeNotFound, "user not found", nil)
		return
	}
	if err != nil {
		slogx.FromContext(ctx).Error("load profile", "err", err)
		httpx.WriteEnvelope(w, httpx.CodeFail, "could not load profile", nil)
		return
	}

	httpx.WriteSuccess(w, adminsdk.Profile{ID: u.ID, Username: u.Username, Scopes: u.Scopes})
}

// Settings describes the running token configuration.
type Settings struct {
	Issuer          string `json:"issuer"`
	AccessTokenTTL  string `json:"access_token_ttl"`
	RefreshTokenTTL string `json:"refresh_token_ttl"`
	Version         string `json:"version"`
}

type SettingsHandler struct {
	Tokens  *service.TokenService
	Version string
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteSuccess(w, Settings{
		Issuer:          h.Tokens.Issuer,
		AccessTokenTTL:  h.Tokens.AccessTTL.String(),
		RefreshTokenTTL: h.Tokens.RefreshTTL.String(),
		Version:         h.Version,
	})
}
