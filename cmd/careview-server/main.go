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

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careview/careview/internal/canonical"
	"github.com/careview/careview/internal/config"
	"github.com/careview/careview/internal/domain/documents"
	"github.com/careview/careview/internal/domain/sharelink"
	"github.com/careview/careview/internal/offline"
	"github.com/careview/careview/internal/platform/auth"
	"github.com/careview/careview/internal/platform/db"
	"github.com/careview/careview/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careview-server",
		Short: "CareView document integrity and sync server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(hashCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

// syncCmd manages the durable offline mutation queue from the command line:
// inspect depth, force a drain against the API, or discard everything.
func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manage the offline mutation queue",
	}

	newEngine := func(cmd *cobra.Command, logger zerolog.Logger) (*offline.Engine, *offline.RedisStore, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		store, err := offline.NewRedisStore(cfg.RedisURL, logger)
		if err != nil {
			return nil, nil, err
		}
		apiURL, _ := cmd.Flags().GetString("api")
		if apiURL == "" {
			apiURL = cfg.BaseURL
		}
		token, _ := cmd.Flags().GetString("token")
		transport := offline.NewHTTPTransport(nil, apiURL, func() string { return token })
		engine := offline.NewEngine(store, transport, logger, offline.Config{
			MaxRetries:     cfg.SyncMaxRetries,
			AttemptTimeout: cfg.SyncRequestTimeout,
			DrainInterval:  cfg.SyncDrainInterval,
		})
		return engine, store, nil
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := newEngine(cmd, zerolog.Nop())
			if err != nil {
				return err
			}
			defer store.Close()
			depth, err := engine.Depth(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d pending mutation(s)\n", depth)
			return nil
		},
	}

	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver all pending mutations to the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			engine, store, err := newEngine(cmd, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			engine.OnFailure(func(ev offline.FailureEvent) {
				fmt.Fprintf(os.Stderr, "dropped %s %s %s after %d attempt(s): %v\n",
					ev.Item.ID, ev.Item.Op, ev.Item.Endpoint, ev.Item.RetryCount, ev.Err)
			})
			if err := engine.Drain(cmd.Context()); err != nil {
				return err
			}
			depth, err := engine.Depth(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("drain complete, %d mutation(s) remaining\n", depth)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all pending mutations without delivering them",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := newEngine(cmd, zerolog.Nop())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := engine.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("queue cleared")
			return nil
		},
	}

	for _, c := range []*cobra.Command{statusCmd, drainCmd, clearCmd} {
		c.Flags().String("api", "", "API base URL (defaults to BASE_URL)")
		c.Flags().String("token", "", "Bearer token for delivery")
		cmd.AddCommand(c)
	}

	return cmd
}

// hashCmd fingerprints a JSON payload from stdin, matching what the server
// computes for document content. Useful for verifying exports offline.
func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the canonical fingerprint of a JSON payload from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			fp, err := canonical.FingerprintJSON(raw)
			if err != nil {
				return fmt.Errorf("invalid JSON payload: %w", err)
			}
			fmt.Println(fp)
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Share-Password"},
	}))
	e.Use(middleware.Audit(logger))

	// Authenticated API group
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}

	// Public group: share views and fingerprint verification. Rate limited,
	// since tokens and fingerprints can be probed anonymously.
	public := e.Group("")
	public.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Documents domain
	docRepo := documents.NewRepoPG(pool)
	docSvc := documents.NewService(docRepo, cfg.BaseURL)
	docHandler := documents.NewHandler(docSvc)
	docHandler.RegisterRoutes(apiV1, public)

	// Share links
	shareRepo := sharelink.NewRepoPG(pool)
	shareSvc := sharelink.NewService(shareRepo, cfg.BaseURL, cfg.ShareDefaultTTL)
	shareHandler := sharelink.NewHandler(shareSvc, docSvc)
	shareHandler.RegisterRoutes(apiV1, public)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
