// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/groupomania/groupomania/internal/auth/postgres"
	"github.com/groupomania/groupomania/internal/auth/redisstore"
	"github.com/groupomania/groupomania/internal/config"
	"github.com/groupomania/groupomania/internal/observability"
	"github.com/groupomania/groupomania/internal/store"
)

// openBackends connects PostgreSQL for users and the configured session
// store. Both connections retry with backoff while the servers come up.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Backoff:  cfg.Database.ConnectBackoff,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	b := &Backends{
		Users:   postgres.NewUserRepository(pool),
		Checks:  map[string]observability.Check{"postgres": store.PingCheck(pool)},
		closers: []func(){pool.Close},
	}

	switch cfg.Sessions.Store {
	case config.SessionStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		})

		sessions := redisstore.NewSessionRepository(client, cfg.Redis.Prefix)
		if err := waitForRedis(ctx, sessions, cfg, logger); err != nil {
			b.Close()
			return nil, err
		}
		b.Sessions = sessions
		b.Checks["redis"] = sessions.Ping
		logger.InfoContext(ctx, "using redis session store", "addr", cfg.Redis.Addr)
	default:
		b.Sessions = postgres.NewSessionRepository(pool)
	}

	return b, nil
}

func waitForRedis(ctx context.Context, sessions *redisstore.SessionRepository, cfg *config.Config, logger *slog.Logger) error {
	attempts := cfg.Database.ConnectAttempts
	if attempts == 0 {
		attempts = store.DefaultConnectAttempts
	}
	backoff := cfg.Database.ConnectBackoff
	if backoff <= 0 {
		backoff = store.DefaultConnectBackoff
	}

	attempt := 0
	err := retry.Do(ctx, retry.WithMaxRetries(attempts-1, retry.NewExponential(backoff)), func(ctx context.Context) error {
		attempt++
		if err := sessions.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "redis not reachable, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("REDIS_CONNECT_FAILED").
			With("addr", cfg.Redis.Addr).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
