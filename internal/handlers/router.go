package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/middleware"
)

// RouterOptions bundles everything the router mounts.
type RouterOptions struct {
	Auth            *AuthHandler
	Authenticator   *middleware.Authenticator
	Cache           *cache.Service
	AllowedOrigins  []string
	RateLimitWindow time.Duration
	RateLimitMax    int64
	Log             zerolog.Logger
}

// Router builds the full HTTP surface: lifecycle endpoints under /api/auth,
// the admin grant endpoint, health, and Prometheus metrics. Two rate
// limiters stack: an in-process ceiling per instance (httprate) and the
// Redis fixed window shared across replicas.
func Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(opts.Log, "/healthz", "/metrics"))
	r.Use(middleware.Recoverer(opts.Log))

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Use(httprate.Limit(300, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := opts.Cache.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("cache unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Method("GET", "/metrics", promhttp.Handler())

	limit := middleware.RateLimit(opts.Cache, opts.RateLimitWindow, opts.RateLimitMax, opts.Log)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(limit).Post("/register", opts.Auth.Register)
		r.With(limit).Post("/login", opts.Auth.Login)
		r.With(limit).Post("/refresh-token", opts.Auth.Refresh)
		r.With(limit).Post("/forgot-password", opts.Auth.ForgotPassword)
		r.With(limit).Post("/reset-password", opts.Auth.ResetPassword)
		r.With(limit).Post("/resend-verification", opts.Auth.ResendVerification)
		r.With(limit).Get("/verify-email/{token}", opts.Auth.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(opts.Authenticator.Authenticate)
			r.Post("/logout", opts.Auth.Logout)
			r.Post("/change-password", opts.Auth.ChangePassword)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(opts.Authenticator.Authenticate)
		r.Use(opts.Authenticator.RequireSuperAdmin)
		r.Post("/superadmin/{userID}", opts.Auth.AssignSuperAdmin)
	})

	return r
}
