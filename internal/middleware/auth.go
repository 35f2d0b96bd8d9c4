// Package middleware carries the HTTP guards: bearer authentication with a
// Redis fast path, relation-based authorization, and the fixed-window rate
// limiter.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/metrics"
	"github.com/wayfarerhq/wayfarer/internal/permission"
	"github.com/wayfarerhq/wayfarer/internal/store"
	"github.com/wayfarerhq/wayfarer/internal/token"
)

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID       uuid.UUID
	Email        string
	Name         string
	IsSuperAdmin bool
}

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok
}

// Authenticator resolves bearer tokens into principals. The fast path is a
// single pipelined Redis round trip (cached entry + blacklist); the slow
// path verifies the JWT signature and primes the cache for the next call.
type Authenticator struct {
	cache  *cache.Service
	tokens *token.Issuer
	perms  *permission.Checker
	store  store.CredentialStore
	log    zerolog.Logger
}

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(
	cacheSvc *cache.Service,
	issuer *token.Issuer,
	perms *permission.Checker,
	credStore store.CredentialStore,
	log zerolog.Logger,
) *Authenticator {
	return &Authenticator{cache: cacheSvc, tokens: issuer, perms: perms, store: credStore, log: log}
}

// Authenticate rejects requests without a valid bearer token and attaches
// the resolved Principal to the context. A blacklist lookup failure rejects
// the request: a revoked token must never authenticate because Redis was
// briefly unreachable.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}

		ctx := r.Context()

		fast, err := a.cache.FastPathLookup(ctx, raw)
		if err != nil {
			a.log.Warn().Err(err).Msg("token fast path unavailable")
			unauthorized(w, "invalid or expired token")
			return
		}
		if fast.Blacklisted {
			metrics.AccessTokenLookups.WithLabelValues("fast", "blacklisted").Inc()
			unauthorized(w, "invalid or expired token")
			return
		}

		var userID string
		if fast.Entry != nil {
			metrics.AccessTokenLookups.WithLabelValues("fast", "hit").Inc()
			userID = fast.Entry.UserID
		} else {
			metrics.AccessTokenLookups.WithLabelValues("fast", "miss").Inc()
			claims, err := a.tokens.VerifyAccess(raw)
			if err != nil {
				if errors.Is(err, token.ErrTokenExpired) {
					// A stale cached entry must not outlive the token.
					if derr := a.cache.InvalidateAccessToken(ctx, raw); derr != nil {
						a.log.Warn().Err(derr).Msg("stale access entry not invalidated")
					}
				}
				metrics.AccessTokenLookups.WithLabelValues("slow", "invalid").Inc()
				unauthorized(w, "invalid or expired token")
				return
			}
			metrics.AccessTokenLookups.WithLabelValues("slow", "hit").Inc()
			userID = claims.UserID

			if err := a.cache.CacheAccessToken(ctx, userID, raw); err != nil {
				a.log.Warn().Err(err).Msg("access token not cached")
			}
		}

		principal, err := a.resolvePrincipal(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				unauthorized(w, "invalid or expired token")
				return
			}
			a.log.Error().Err(err).Str("userId", userID).Msg("principal resolution failed")
			serverError(w)
			return
		}

		ctx = context.WithValue(ctx, principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolvePrincipal loads the user record (cache first) and the superadmin
// flag. A permission-engine failure downgrades to a regular principal
// rather than failing the request.
func (a *Authenticator) resolvePrincipal(ctx context.Context, userID string) (*Principal, error) {
	principal := &Principal{}

	cached, found, err := a.cache.GetCachedUserByID(ctx, userID)
	if err != nil {
		a.log.Warn().Err(err).Msg("user cache read failed")
	}
	if found {
		id, err := uuid.Parse(cached.ID)
		if err != nil {
			return nil, store.ErrNotFound
		}
		principal.UserID = id
		principal.Email = cached.Email
		principal.Name = cached.Name
	} else {
		id, err := uuid.Parse(userID)
		if err != nil {
			return nil, store.ErrNotFound
		}
		user, err := a.store.FindUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		principal.UserID = user.ID
		principal.Email = user.Email
		principal.Name = user.Name

		if cerr := a.cache.CacheUser(ctx, cache.CachedUser{
			ID:            user.ID.String(),
			Email:         user.Email,
			Name:          user.Name,
			EmailVerified: user.EmailVerified,
		}); cerr != nil {
			a.log.Warn().Err(cerr).Msg("user cache write failed")
		}
	}

	super, err := a.perms.IsSuperAdmin(ctx, principal.UserID.String())
	if err != nil {
		a.log.Warn().Err(err).Str("userId", userID).Msg("superadmin check failed, treating as regular user")
		super = false
	}
	principal.IsSuperAdmin = super

	return principal, nil
}

func bearerToken(value string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return "", false
	}
	raw := value[len(prefix):]
	if raw == "" {
		return "", false
	}
	return raw, true
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func serverError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal server error")
}
