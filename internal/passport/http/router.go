package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passport/internal/passport/service"
	"github.com/aussiebroadwan/passport/internal/passport/store"
	"github.com/aussiebroadwan/passport/pkg/adminsdk"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	TokenService *service.TokenService
	UserService  *service.UserService
}

func NewRouter(verifier jwtx.Verifier, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerAdmin()
	r.registerSystem()

	// Anything else under /admin/ still answers with an envelope
	r.Mux.HandleFunc("/admin/", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteEnvelope(w, httpx.CodeNotFound, "not found", nil)
	})
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// route registers h for path and answers other methods with a
// METHOD_NOT_ALLOWED envelope instead of the mux's plain-text 405.
func (r *Router) route(method, path string, h http.Handler) {
	r.Mux.Handle(method+" "+path, h)
	r.Mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", method)
		httpx.WriteEnvelope(w, httpx.CodeMethodNotAllowed, "method not allowed", nil)
	})
}

func (r *Router) registerSession() {
	h := &SessionHandler{Tokens: r.TokenService}

	// Credential guessing is throttled per address
	r.route(http.MethodPost, adminsdk.LoginPath,
		httpx.Chain(http.HandlerFunc(h.Login),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// The bearer on refresh is the refresh token itself, not a JWT
	r.route(http.MethodPost, adminsdk.RefreshPath,
		httpx.Chain(http.HandlerFunc(h.Refresh),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.route(http.MethodPost, adminsdk.LogoutPath,
		httpx.Chain(http.HandlerFunc(h.Logout),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	profile := &ProfileHandler{Users: r.UserService}
	r.route(http.MethodGet, adminsdk.ProfilePath,
		httpx.Chain(profile,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope("admin:read"),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	settings := &SettingsHandler{Tokens: r.TokenService, Version: r.buildVersion}
	r.route(http.MethodGet, SettingsPath,
		httpx.Chain(settings,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAllScopes("admin:write"),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
