package middleware

import (
	"net/http"
)

// ObjectFunc derives the permission object for a request, typically from a
// URL parameter ("trip:"+chi.URLParam(r, "tripID")).
type ObjectFunc func(r *http.Request) string

// RequirePermission authorizes the request when the principal holds
// relation on the derived object. Superadmins bypass the engine entirely.
// Must run after Authenticate.
func (a *Authenticator) RequirePermission(relation string, object ObjectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			if principal.IsSuperAdmin {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := a.perms.Check(r.Context(), principal.UserID.String(), relation, object(r))
			if err != nil {
				a.log.Error().Err(err).Str("relation", relation).Msg("permission check failed")
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin rejects any principal without the global superadmin
// relation. Must run after Authenticate.
func (a *Authenticator) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}
		if !principal.IsSuperAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
