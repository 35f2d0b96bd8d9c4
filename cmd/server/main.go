package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wayfarerhq/wayfarer/internal/auth"
	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/db"
	"github.com/wayfarerhq/wayfarer/internal/handlers"
	"github.com/wayfarerhq/wayfarer/internal/middleware"
	"github.com/wayfarerhq/wayfarer/internal/otel"
	"github.com/wayfarerhq/wayfarer/internal/permission"
	"github.com/wayfarerhq/wayfarer/internal/store"
	"github.com/wayfarerhq/wayfarer/internal/token"
)

const serviceName = "wayfarer-auth"

// purgeInterval paces the background sweep of expired refresh-token rows.
const purgeInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Production() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	cleanup, err := otel.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("init otel")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown otel")
		}
	}()

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer func() {
		if err := db.Close(database); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}()

	if err := db.Migrate(ctx, database); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	cacheSvc, err := cache.Connect(ctx, cfg.RedisURL, cache.Config{
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		PermissionTTL: cfg.PermissionCacheTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := cacheSvc.Close(); err != nil {
			log.Error().Err(err).Msg("close redis")
		}
	}()

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        serviceName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init token issuer")
	}

	var engine permission.Engine
	if cfg.PermissionEngineURL != "" {
		engine = permission.NewClient(cfg.PermissionEngineURL, cfg.PermissionEngineToken)
	} else {
		log.Warn().Msg("permission engine not configured, all permission checks deny")
		engine = permission.Disabled()
	}
	checker := permission.NewChecker(engine, cacheSvc, log.Logger)

	credStore := store.New(database)
	authSvc := auth.New(credStore, cacheSvc, issuer, checker, log.Logger, cfg.BcryptCost)

	mailer := handlers.LogMailer{Log: log.Logger, IncludeTokens: !cfg.Production()}

	router := handlers.Router(handlers.RouterOptions{
		Auth:            handlers.NewAuthHandler(authSvc, checker, mailer, log.Logger),
		Authenticator:   middleware.NewAuthenticator(cacheSvc, issuer, checker, credStore, log.Logger),
		Cache:           cacheSvc,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    int64(cfg.RateLimitMax),
		Log:             log.Logger,
	})

	go purgeLoop(ctx, authSvc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting wayfarer-auth")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
}

// purgeLoop hard-deletes expired refresh-token rows on a fixed cadence.
// Redis entries expire on their own; only the durable mirror needs sweeping.
func purgeLoop(ctx context.Context, svc *auth.Service) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := svc.PurgeExpiredRefreshTokens(ctx)
			if err != nil {
				log.Error().Err(err).Msg("refresh token purge failed")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("purged expired refresh tokens")
			}
		}
	}
}
