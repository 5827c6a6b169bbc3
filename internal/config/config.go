package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"5000"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	RunMigrations     bool          `envconfig:"RUN_MIGRATIONS" default:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	DBConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SessionBackend  string        `envconfig:"SESSION_BACKEND" default:"memory"`
	RedisURL        string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	CookieSecure    *bool         `envconfig:"COOKIE_SECURE"`
	CookieCrossSite *bool         `envconfig:"COOKIE_CROSS_SITE"`
	TrustProxy      bool          `envconfig:"TRUST_PROXY" default:"false"`
	// SessionPruneInterval paces the in-process sweep; zero disables it.
	SessionPruneInterval time.Duration `envconfig:"SESSION_PRUNE_INTERVAL" default:"1h"`

	LoginMaxAttempts int           `envconfig:"LOGIN_MAX_ATTEMPTS" default:"5"`
	LoginLockWindow  time.Duration `envconfig:"LOGIN_LOCK_WINDOW" default:"15m"`
	HashConcurrency  int           `envconfig:"HASH_CONCURRENCY" default:"4"`

	APIRateLimitMax    int           `envconfig:"API_RATE_LIMIT_MAX"`
	APIRateLimitWindow time.Duration `envconfig:"API_RATE_LIMIT_WINDOW" default:"15m"`

	AccessTokenSecret string        `envconfig:"ACCESS_TOKEN_SECRET"`
	AccessTokenTTL    time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`

	AdminUsername string `envconfig:"ADMIN_USERNAME"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	CronSecret    string `envconfig:"CRON_SECRET"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

// Load reads the process environment. Call godotenv.Load first if a .env
// file should be honoured.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SecureCookies reports whether the session cookie carries the Secure flag.
// Unset means "only in production", the same rule the panel always used.
func (c *Config) SecureCookies() bool {
	if c.CookieSecure != nil {
		return *c.CookieSecure
	}
	return c.IsProduction()
}

// CrossSiteCookies reports whether the front end is served from another
// origin, which requires SameSite=None.
func (c *Config) CrossSiteCookies() bool {
	if c.CookieCrossSite != nil {
		return *c.CookieCrossSite
	}
	return c.IsProduction()
}

func (c *Config) applyDefaults() {
	if c.APIRateLimitMax <= 0 {
		if c.IsProduction() {
			c.APIRateLimitMax = 100
		} else {
			c.APIRateLimitMax = 1000
		}
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.AllowedOrigins = origins
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("missing required env: DATABASE_URL")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Port)
	}

	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend: %q", c.SessionBackend)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.SessionPruneInterval < 0 {
		return fmt.Errorf("session prune interval must not be negative")
	}
	if c.LoginMaxAttempts <= 0 || c.LoginLockWindow <= 0 {
		return fmt.Errorf("login throttle settings must be positive")
	}
	if c.HashConcurrency <= 0 {
		return fmt.Errorf("hash concurrency must be positive")
	}

	adminUser := strings.TrimSpace(c.AdminUsername)
	adminPass := strings.TrimSpace(c.AdminPassword)
	if (adminUser == "") != (adminPass == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	return nil
}
