package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alert/alert/internal/config"
	"github.com/alert/alert/internal/domain/review"
	"github.com/alert/alert/internal/domain/rules"
	"github.com/alert/alert/internal/platform/auth"
	"github.com/alert/alert/internal/platform/db"
	"github.com/alert/alert/internal/platform/metrics"
	"github.com/alert/alert/internal/platform/middleware"
	"github.com/alert/alert/internal/platform/phi"
	"github.com/alert/alert/internal/platform/websocket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "alert-server",
		Short:        "ALERT post-ICU handover review server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(addsCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the review API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run snapshot store migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, schema, err := migratePool(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			out := cmd.OutOrStdout()
			migrator := db.NewMigrator(pool, db.Migrations())
			fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, schema, err := migratePool(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "WARNING: migrate down is not supported by the built-in runner.")
			fmt.Fprintln(cmd.OutOrStdout(), "Drop review_snapshot and review_undo by hand if a rollback is required.")
			return nil
		},
	})

	return cmd
}

// migratePool loads config and opens a pool for the migrate subcommands.
func migratePool(cmd *cobra.Command) (*pgxpool.Pool, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	if cfg.DatabaseURL == "" {
		return nil, "", fmt.Errorf("DATABASE_URL is required to run migrations")
	}
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}

	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, "", err
	}
	return pool, schema, nil
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// snapshotBackend is an opened snapshot store plus what the health check
// and shutdown need from it.
type snapshotBackend struct {
	name   string
	store  review.SnapshotStore
	pinger db.Pinger
	stats  func() interface{}
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*snapshotBackend, error) {
	switch cfg.SnapshotBackend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
		return &snapshotBackend{
			name:   "postgres",
			store:  review.NewSnapshotStorePG(pool),
			pinger: pool,
			stats:  func() interface{} { return db.GetPoolStats(pool) },
			close:  pool.Close,
		}, nil

	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
		return &snapshotBackend{
			name:   "redis",
			store:  review.NewSnapshotStoreRedis(client, cfg.SnapshotTTL),
			pinger: db.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
			close:  func() { client.Close() },
		}, nil

	default:
		logger.Warn().Msg("using in-memory snapshot store; reviews are lost on restart")
		return &snapshotBackend{
			name:   "memory",
			store:  review.NewMemoryStore(),
			pinger: db.PingFunc(func(context.Context) error { return nil }),
			close:  func() {},
		}, nil
	}
}

func newReviewService(cfg *config.Config, store review.SnapshotStore, logger zerolog.Logger) *review.Service {
	svc := review.NewService(store, rules.NewEngine(logger), logger)
	svc.SetDebounce(cfg.Debounce())
	if cfg.SurveyBaseURL != "" {
		svc.SetSurveyBaseURL(cfg.SurveyBaseURL)
	}
	loc := cfg.Location()
	svc.SetClock(func() time.Time { return time.Now().In(loc) })
	return svc
}

// newServer builds the Echo instance with middleware and routes.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *review.Service, hub *websocket.Hub, backend *snapshotBackend) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", "X-Dev-User"},
		ExposeHeaders: []string{"Link", "X-Request-ID", "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}
		if cfg.AuthSigningKey != "" {
			jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(backend.name, backend.pinger, backend.stats))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	review.NewHandler(svc).RegisterRoutes(apiV1)

	// Live updates
	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins).
		RegisterRoutes(e.Group(""), auth.RequireRole(auth.RoleClinician, auth.RoleAuditor))

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open snapshot store")
		return err
	}
	defer backend.close()

	if cfg.EncryptionKey != "" {
		key, err := phi.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return err
		}
		enc, err := phi.NewEncryptor(key)
		if err != nil {
			return err
		}
		backend.store = review.NewEncryptedStore(backend.store, enc)
		logger.Info().Msg("patient identifiers are encrypted at rest")
	}

	hub := websocket.NewHub(logger)
	svc := newReviewService(cfg, backend.store, logger)
	svc.SetPublisher(hub)
	defer svc.Close()

	e := newServer(cfg, logger, svc, hub, backend)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", backend.name).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
