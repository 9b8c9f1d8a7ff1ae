// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/groupomania/groupomania/internal/auth"
	"github.com/groupomania/groupomania/internal/config"
)

// sessionsBackends opens the stores for the sessions subcommands.
var sessionsBackends = openBackends

// NewSessionsCmd creates the sessions subcommand.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and revoke refresh-token sessions",
	}
	cmd.PersistentFlags().String("user", "", "user id (ULID)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")
	cmd.PersistentFlags().String("session-store", "", "session store (postgres or redis)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List a user's sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: withSessions(func(ctx context.Context, cmd *cobra.Command, _ *config.Config, b *Backends, user *auth.User) error {
			sessions, err := b.Sessions.ListByUser(ctx, user.ID)
			if err != nil {
				return err
			}
			cmd.Printf("User %s (%s)\n", user.ID, user.Email)
			if len(sessions) == 0 {
				cmd.Println("No sessions")
				return nil
			}
			for _, s := range sessions {
				cmd.Printf("%s  %s\n", s.ID, s.CreatedAt.UTC().Format(time.RFC3339))
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke",
		Short: "Revoke every session of a user",
		Long: `Revoke every refresh-token session of a user. Access tokens already
issued stay valid until they expire.`,
		Args: cobra.NoArgs,
		RunE: withSessions(func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, b *Backends, user *auth.User) error {
			svc, err := buildService(cfg, b, nil, slog.Default())
			if err != nil {
				return err
			}
			n, err := svc.RevokeAll(ctx, user.ID)
			if err != nil {
				return err
			}
			cmd.Printf("Revoked %d session(s)\n", n)
			return nil
		}),
	})

	return cmd
}

type sessionsFunc func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, b *Backends, user *auth.User) error

// withSessions validates config and --user, opens the backends, resolves the
// user and runs fn. An unknown user fails with USER_NOT_FOUND.
func withSessions(fn sessionsFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rawUser, err := cmd.Flags().GetString("user")
		if err != nil {
			return oops.Wrap(err)
		}
		userID, err := ulid.Parse(rawUser)
		if err != nil {
			return oops.Code("INVALID_USER_ID").With("user", rawUser).Wrapf(err, "--user must be a ULID")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := sessionsBackends(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer b.Close()

		user, err := b.Users.GetByID(ctx, userID)
		if err != nil {
			return oops.With("user", userID.String()).Wrap(err)
		}
		return fn(ctx, cmd, cfg, b, user)
	}
}
