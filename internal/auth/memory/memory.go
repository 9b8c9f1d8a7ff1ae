// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

// Package memory provides in-process implementations of the auth
// repositories for tests and local tooling. State is lost on exit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/groupomania/groupomania/internal/auth"
)

// UserRepository is a map-backed auth.UserRepository with a unique email index.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a copy of user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(auth.ErrAlreadyExists)
	}
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID returns a copy of the user with id.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	found := *user
	return &found, nil
}

// GetByEmail returns a copy of the user with the exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// ExistsByEmail reports whether the exact email is registered.
func (r *UserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmail[email]
	return ok, nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	user.PasswordHash = passwordHash
	return nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// SessionRepository is a map-backed auth.SessionRepository.
type SessionRepository struct {
	mu     sync.RWMutex
	byID   map[ulid.ULID]*auth.Session
	byHash map[string]ulid.ULID
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates an empty SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byID:   make(map[ulid.ULID]*auth.Session),
		byHash: make(map[string]ulid.ULID),
	}
}

// Create stores a copy of session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byHash[session.TokenHash]; taken {
		return oops.Code("SESSION_TOKEN_TAKEN").Wrap(auth.ErrAlreadyExists)
	}
	stored := *session
	r.byID[session.ID] = &stored
	r.byHash[session.TokenHash] = session.ID
	return nil
}

// Exists reports whether a session holds tokenHash.
func (r *SessionRepository) Exists(_ context.Context, tokenHash string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byHash[tokenHash]
	return ok, nil
}

// GetByTokenHash returns a copy of the session holding tokenHash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	found := *r.byID[id]
	return &found, nil
}

// ListByUser returns the user's sessions, newest first.
func (r *SessionRepository) ListByUser(_ context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*auth.Session
	for _, s := range r.byID {
		if s.UserID == userID {
			found := *s
			sessions = append(sessions, &found)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID.Compare(sessions[j].ID) > 0
	})
	return sessions, nil
}

// Delete removes the session with id.
func (r *SessionRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.byHash, session.TokenHash)
	delete(r.byID, id)
	return nil
}

// DeleteByUser removes every session of userID.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.byID {
		if s.UserID == userID {
			delete(r.byHash, s.TokenHash)
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}
