package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"pharmacy-admin/internal/auth"
	"pharmacy-admin/internal/config"
	"pharmacy-admin/internal/db"
	"pharmacy-admin/internal/maintenance"
	"pharmacy-admin/internal/observability"
	"pharmacy-admin/internal/ratelimit"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations overrides RUN_MIGRATIONS when set.
	RunMigrations *bool
}

type Runtime struct {
	Config  *config.Config
	Logger  *observability.Logger
	Handler http.Handler
	// Pruner drops expired sessions and login counters. Long-running
	// processes sweep with it; serverless deployments hit the cron endpoint.
	Pruner maintenance.Pruner
	Close  func() error
}

// Build wires the whole application from the environment. The caller owns
// Runtime.Close.
func Build(ctx context.Context, options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runMigrations := cfg.RunMigrations
	if options.RunMigrations != nil {
		runMigrations = *options.RunMigrations
	}
	if runMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	sessions, redisClient, err := newSessionStore(ctx, cfg)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	closeAll := func() error {
		observability.FlushSentry()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return database.Close()
	}

	authService := auth.NewService(
		auth.NewRepository(database),
		sessions,
		auth.NewHasher(cfg.HashConcurrency),
		auth.NewLoginThrottle(cfg.LoginMaxAttempts, cfg.LoginLockWindow),
		logger,
	).WithMetrics(metrics)
	if cfg.AccessTokenSecret != "" {
		authService.WithAccessTokens(auth.NewTokenIssuer(cfg.AccessTokenSecret, cfg.AccessTokenTTL))
	}

	if err := authService.BootstrapAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	handler := newRouter(routerDeps{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		database:    database,
		redisClient: redisClient,
		authService: authService,
	})

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Pruner:  authService,
		Close:   closeAll,
	}, nil
}

type routerDeps struct {
	cfg         *config.Config
	logger      *observability.Logger
	metrics     *observability.Metrics
	database    *sql.DB
	redisClient *redis.Client
	authService *auth.Service
}

func newRouter(deps routerDeps) http.Handler {
	cfg := deps.cfg
	authHandler := auth.NewHandler(deps.authService, auth.CookieConfig{
		Secure:    cfg.SecureCookies(),
		CrossSite: cfg.CrossSiteCookies(),
		TTL:       cfg.SessionTTL,
	}, cfg.TrustProxy, deps.logger)
	cleanupHandler := maintenance.NewCleanupHandler(deps.authService, deps.logger, cfg.CronSecret)
	clientKey := auth.KeyFunc(cfg.TrustProxy)
	apiLimiter := ratelimit.New(cfg.APIRateLimitMax, cfg.APIRateLimitWindow, clientKey)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", authHandler.Register)
	mux.HandleFunc("POST /login", authHandler.Login)
	mux.HandleFunc("POST /logout", authHandler.Logout)

	api := apiLimiter.Middleware
	mux.Handle("GET /api/user", api(authHandler.RequireUser(http.HandlerFunc(authHandler.CurrentUser))))
	mux.Handle("GET /api/users", api(authHandler.RequireAdmin(http.HandlerFunc(authHandler.ListUsers))))
	mux.Handle("POST /api/token", api(http.HandlerFunc(authHandler.IssueToken)))
	mux.Handle("/api/", api(http.HandlerFunc(apiNotFound)))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(deps.database, cfg.Environment))
	mux.HandleFunc("GET /ready", readyHandler(deps.database, deps.redisClient))
	mux.Handle("GET /metrics", deps.metrics.Handler())

	var handler http.Handler = mux
	handler = observability.CORSMiddleware(cfg.AllowedOrigins, handler)
	handler = observability.SecurityHeadersMiddleware(handler)
	handler = observability.RequestLoggingMiddleware(deps.logger, deps.metrics, clientKey, handler)
	return observability.RecoverMiddleware(deps.logger, handler)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return database, nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (auth.SessionStore, *redis.Client, error) {
	if cfg.SessionBackend != config.SessionBackendRedis {
		return auth.NewMemorySessionStore(cfg.SessionTTL), nil, nil
	}

	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect session redis: %w", err)
	}
	return auth.NewRedisSessionStore(client, cfg.SessionTTL), client, nil
}

func apiNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "API endpoint not found"})
}

func healthHandler(database *sql.DB, environment string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]any{
			"status":      "healthy",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"environment": environment,
			"database":    "connected",
		}
		status := http.StatusOK
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "disconnected"
		}

		writeJSON(w, status, body)
	}
}

func readyHandler(database *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "database"})
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "redis"})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
