// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

// Package web is the HTTP boundary of the auth core. It decodes JSON
// request bodies, calls the auth service and maps failure kinds to status
// codes and the public error messages.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/samber/oops"

	"github.com/groupomania/groupomania/internal/observability"
)

// DefaultBodyLimit caps JSON request bodies.
const DefaultBodyLimit = 1 << 20

// Options configures NewApp.
type Options struct {
	Service   AuthService
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	BodyLimit int
}

// NewApp builds the Fiber application with middleware and routes mounted.
func NewApp(opts Options) *fiber.App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		AppName:   "groupomania",
		BodyLimit: opts.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(RequestLogger(opts.Logger, opts.Metrics))
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Origin", "X-Requested-With", "Content", "Accept", "Content-Type", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
	}))

	NewUserHandler(opts.Service, NewValidator(), opts.Metrics, opts.Logger).Register(app)
	return app
}

// Server runs a Fiber app on its own listener.
type Server struct {
	addr     string
	app      *fiber.App
	logger   *slog.Logger
	listener net.Listener
}

// NewServer creates a Server for app on addr.
func NewServer(addr string, app *fiber.App, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, app: app, logger: logger}
}

// Start binds the listener and serves in the background. Bind failures are
// returned directly; later serve failures arrive on the channel.
func (s *Server) Start() (<-chan error, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		err := s.app.Listener(listener, fiber.ListenConfig{DisableStartupMessage: true})
		if err != nil && !errors.Is(err, net.ErrClosed) {
			errCh <- oops.Code("HTTP_SERVE_FAILED").With("addr", s.addr).Wrap(err)
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Addr reports the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
