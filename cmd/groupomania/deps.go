// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/groupomania/groupomania/internal/auth"
	"github.com/groupomania/groupomania/internal/config"
	"github.com/groupomania/groupomania/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendsFactory opens the user and session stores.
	// Default: openBackends (PostgreSQL, plus Redis when configured)
	BackendsFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error)

	// MigratorFactory opens a schema migrator for auto-migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checks map[string]observability.Check, logger *slog.Logger) ObservabilityServer

	// HTTPServerFactory creates the public API server.
	// Default: web.NewServer
	HTTPServerFactory func(addr string, app *fiber.App, logger *slog.Logger) HTTPServer
}

// Backends are the opened stores and their readiness checks.
type Backends struct {
	Users    auth.UserRepository
	Sessions auth.SessionRepository
	Checks   map[string]observability.Check
	closers  []func()
}

// Close releases the backends in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from web.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
