// Package metrics exposes the service's Prometheus collectors. Everything
// registers against the default registry so promhttp.Handler picks it up
// without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logins counts login attempts by outcome ("success", "invalid_credentials",
	// "error").
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfarer",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	// Registrations counts registration attempts by outcome.
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfarer",
		Subsystem: "auth",
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome.",
	}, []string{"outcome"})

	// Refreshes counts access-token refreshes by outcome ("success",
	// "rejected").
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfarer",
		Subsystem: "auth",
		Name:      "refreshes_total",
		Help:      "Refresh attempts by outcome.",
	}, []string{"outcome"})

	// AccessTokenLookups counts middleware token resolutions by path
	// ("fast", "slow") and result ("hit", "miss", "blacklisted", "invalid").
	AccessTokenLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfarer",
		Subsystem: "auth",
		Name:      "access_token_lookups_total",
		Help:      "Access-token validations by path and result.",
	}, []string{"path", "result"})

	// PermissionChecks counts permission-engine resolutions by source
	// ("cache", "engine") and result ("allowed", "denied", "error").
	PermissionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfarer",
		Subsystem: "auth",
		Name:      "permission_checks_total",
		Help:      "Permission checks by source and result.",
	}, []string{"source", "result"})

	// RateLimited counts requests rejected by the fixed-window limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wayfarer",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429 by the Redis rate limiter.",
	})
)
