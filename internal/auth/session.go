// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session binds a refresh token to its user. It exists exactly as long as
// the refresh token may be used; deleting it is the only revocation.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	CreatedAt time.Time
}

// NewSession creates a Session for refreshToken. Only the token's SHA-256
// digest is kept.
func NewSession(userID ulid.ULID, refreshToken string) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if refreshToken == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("refresh token cannot be empty")
	}

	return &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: HashRefreshToken(refreshToken),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// HashRefreshToken computes the hex SHA-256 digest used to store and look
// up refresh tokens.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages refresh-token sessions. Lookups take the
// digest produced by HashRefreshToken.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Exists reports whether a session with the token hash is stored.
	Exists(ctx context.Context, tokenHash string) (bool, error)

	// GetByTokenHash retrieves a session by its token hash.
	// Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// ListByUser returns the user's sessions, newest first.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*Session, error)

	// Delete removes a session by ID. Returns ErrNotFound if it was already gone.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes every session of a user and returns how many
	// were removed.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)
}
