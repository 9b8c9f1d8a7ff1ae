// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package web

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/oklog/ulid/v2"

	"github.com/groupomania/groupomania/internal/auth"
	"github.com/groupomania/groupomania/internal/logging"
	"github.com/groupomania/groupomania/internal/observability"
)

const userIDKey = "groupomania.user_id"

// RequestLogger logs one line per request and counts it by route and
// status. Handler errors are resolved through the app's error handler first
// so the logged status is the one sent.
func RequestLogger(logger *slog.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		ctx := logging.WithRequestID(c.Context(), requestid.FromContext(c))
		c.SetContext(ctx)

		method := c.Method()
		path := c.Path()

		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().Config().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError) //nolint:errcheck // already failing
			}
		}

		status := c.Response().StatusCode()
		if metrics != nil {
			metrics.HTTPRequests.WithLabelValues(c.Route().Path, strconv.Itoa(status)).Inc()
		}

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "http request",
			"method", method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"ip", c.IP(),
		)
		return nil
	}
}

// TokenAuthenticator verifies access tokens.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

// RequireAccessToken rejects requests without a valid
// "Authorization: Bearer <access token>" header and stores the caller's
// user id for UserID.
func RequireAccessToken(authn TokenAuthenticator) fiber.Handler {
	return func(c fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return sendError(c, routeError{fiber.StatusUnauthorized, MsgMissingAuthorization})
		}

		claims, err := authn.Authenticate(c.Context(), strings.TrimSpace(token))
		if err != nil {
			return sendError(c, routeError{fiber.StatusUnauthorized, MsgInvalidAccessToken})
		}

		c.Locals(userIDKey, claims.User())
		return c.Next()
	}
}

// UserID returns the user id stored by RequireAccessToken.
func UserID(c fiber.Ctx) (ulid.ULID, bool) {
	id, ok := c.Locals(userIDKey).(ulid.ULID)
	return id, ok
}
