package httpapi

import (
	"net/http"
	"strings"

	"medcore.org/internal/auth"
	"medcore.org/internal/obs"
)

// withAuth is the request authenticator. It is strictly pass-through: a
// missing or invalid token leaves the request anonymous and lets it continue;
// only a valid token attaches a principal. Endpoint gates downstream decide
// whether anonymous requests are acceptable.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := auth.ParseAndValidate(raw)
		if err != nil {
			obs.LogEvent(map[string]any{
				"level": "warn",
				"msg":   "token rejected",
				"path":  r.URL.Path,
			})
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{
			Subject: claims.Subject,
			Role:    claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// requireAuth gates a handler on the presence of a principal. This is where
// anonymous requests actually get rejected.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="medcore"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// requireRole additionally demands a specific role.
func (a *API) requireRole(role auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.PrincipalFromContext(r.Context())
		if principal.Role != role {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
		next(w, r)
	})
}
