// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/groupomania/groupomania/internal/auth"
	"github.com/groupomania/groupomania/internal/config"
	"github.com/groupomania/groupomania/internal/logging"
	"github.com/groupomania/groupomania/internal/observability"
	"github.com/groupomania/groupomania/internal/store"
	"github.com/groupomania/groupomania/internal/web"
)

// Default values for serve command flags. The effective defaults live in
// the config package; these only label the flags in --help.
const (
	defaultHTTPAddr     = ":3000"
	defaultMetricsAddr  = "127.0.0.1:9100"
	defaultLogFormat    = "json"
	defaultLogLevel     = "info"
	defaultSessionStore = config.SessionStorePostgres
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the public HTTP API (signup, login, token refresh, logout) and
the metrics/health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", defaultHTTPAddr, "HTTP API listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")
	cmd.Flags().String("session-store", defaultSessionStore, "session store (postgres or redis)")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations before serving")
	cmd.Flags().Int("hash-concurrency", 0, "concurrent password hash computations (0 = CPU count)")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if deps.BackendsFactory == nil {
		deps.BackendsFactory = openBackends
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, checks map[string]observability.Check, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, checks, logger)
		}
	}
	if deps.HTTPServerFactory == nil {
		deps.HTTPServerFactory = func(addr string, app *fiber.App, logger *slog.Logger) HTTPServer {
			return web.NewServer(addr, app, logger)
		}
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger := logging.SetDefault(logging.Options{
		Service: "groupomania",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   logging.ParseLevel(cfg.Log.Level),
		Writer:  cmd.ErrOrStderr(),
	})
	logger.InfoContext(ctx, "starting groupomania", "config", cfg)

	if cfg.Database.AutoMigrate {
		if err := applyMigrations(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	backends, err := deps.BackendsFactory(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open backends").Wrap(err)
	}
	defer backends.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, backends.Checks, logger)
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	svc, err := buildService(cfg, backends, metrics, logger)
	if err != nil {
		stopServers(logger, cfg.HTTP.ShutdownTimeout, obsServer)
		return err
	}

	app := web.NewApp(web.Options{
		Service:   svc,
		Metrics:   metrics,
		Logger:    logger,
		BodyLimit: cfg.HTTP.BodyLimit,
	})
	httpServer := deps.HTTPServerFactory(cfg.HTTP.Addr, app, logger)
	httpErrChan, err := httpServer.Start()
	if err != nil {
		stopServers(logger, cfg.HTTP.ShutdownTimeout, obsServer)
		return oops.With("operation", "start http server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, httpErrChan, "http", logger)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Groupomania started")
	logger.InfoContext(ctx, "groupomania ready", "http_addr", httpServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	// The public API drains first so readiness keeps answering meanwhile.
	stopServers(logger, cfg.HTTP.ShutdownTimeout, httpServer, obsServer)
	logger.Info("shutdown complete")
	return nil
}

// buildService wires the hasher, token issuer, role policy and stores into
// an auth service.
func buildService(cfg *config.Config, backends *Backends, metrics *observability.Metrics, logger *slog.Logger) (*auth.Service, error) {
	hasher, err := auth.NewBcryptHasher(auth.DefaultBcryptCost)
	if err != nil {
		return nil, oops.With("operation", "create password hasher").Wrap(err)
	}
	issuer, err := auth.NewJWTIssuer(cfg.Tokens.AccessSecret, cfg.Tokens.RefreshSecret)
	if err != nil {
		return nil, oops.With("operation", "create token issuer").Wrap(err)
	}
	policy, err := auth.NewAdminPairPolicy(cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		return nil, oops.With("operation", "create role policy").Wrap(err)
	}

	opts := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithHashConcurrency(cfg.Hash.Concurrency),
	}
	if metrics != nil {
		opts = append(opts, auth.WithHashObserver(metrics.ObserveHash))
	}

	svc, err := auth.NewAuthService(backends.Users, backends.Sessions, hasher, issuer, policy, opts...)
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return svc, nil
}

// applyMigrations runs every pending migration and closes the migrator.
func applyMigrations(databaseURL string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("schema up to date")
		return nil
	}
	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("applied migrations", "count", len(pending))
	return nil
}

// stopper is satisfied by both server kinds.
type stopper interface {
	Stop(ctx context.Context) error
}

func stopServers(logger *slog.Logger, timeout time.Duration, servers ...stopper) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping server", "server", fmt.Sprintf("%T", s), "error", err)
		}
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
