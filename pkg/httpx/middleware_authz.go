package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RequireAnyScope admits a caller holding at least one of the scopes.
func RequireAnyScope(required ...string) Middleware {
	return requireScopes(required, func(have []string) bool {
		return slices.ContainsFunc(required, func(s string) bool { return slices.Contains(have, s) })
	})
}

// RequireAllScopes admits a caller holding every listed scope.
func RequireAllScopes(required ...string) Middleware {
	return requireScopes(required, func(have []string) bool {
		for _, s := range required {
			if !slices.Contains(have, s) {
				return false
			}
		}
		return true
	})
}

// requireScopes runs after AuthnMiddleware. A caller that fails the check
// gets a FORBIDDEN envelope: the token is fine, so clients must not refresh.
func requireScopes(required []string, allowed func(have []string) bool) Middleware {
	challenge := `Bearer error="insufficient_scope", scope="` + strings.Join(required, " ") + `"`

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(scopesFromCtx(r.Context())) {
				w.Header().Set("WWW-Authenticate", challenge)
				WriteEnvelope(w, CodeForbidden, "insufficient scope", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
