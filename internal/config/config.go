package config

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the wayfarer API service.
type Config struct {
	Addr         string `env:"ADDR,default=:8080"`
	Env          string `env:"APP_ENV,default=development"`
	DBDSN        string `env:"DB_DSN,required"`
	RedisURL     string `env:"REDIS_URL,default=redis://localhost:6379/0"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`

	AccessSecret    string        `env:"JWT_ACCESS_SECRET,required"`
	RefreshSecret   string        `env:"JWT_REFRESH_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL,default=24h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`

	BcryptCost int `env:"BCRYPT_COST,default=10"`

	PermissionEngineURL   string        `env:"PERMISSION_ENGINE_URL"`
	PermissionEngineToken string        `env:"PERMISSION_ENGINE_TOKEN"`
	PermissionCacheTTL    time.Duration `env:"PERMISSION_CACHE_TTL,default=5m"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX,default=60"`
}

// Load returns a Config populated from environment variables and validated
// for the invariants the auth core depends on.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh signing secrets must differ")
	}
	if len(c.AccessSecret) < 16 || len(c.RefreshSecret) < 16 {
		return errors.New("signing secrets must be at least 16 bytes")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return errors.New("refresh token TTL must not be shorter than access token TTL")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("bcrypt cost out of range")
	}
	if c.RateLimitWindow <= 0 || c.RateLimitMax <= 0 {
		return errors.New("rate limit window and max must be positive")
	}
	return nil
}

// Production reports whether the service is running with production settings.
// Error responses hide internal detail when this is true.
func (c Config) Production() bool {
	return c.Env == "production"
}
