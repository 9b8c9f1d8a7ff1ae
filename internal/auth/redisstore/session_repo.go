// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

// Package redisstore implements auth.SessionRepository on Redis.
//
// Each session is a hash under <prefix>:session:<id>. Two indexes point at
// it: <prefix>:token:<hash> holds the session ID for a refresh token hash,
// and <prefix>:user:<userID> is the set of a user's session IDs. Writes that
// touch more than one key run as Lua scripts so the indexes never disagree.
package redisstore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/groupomania/groupomania/internal/auth"
)

// DefaultPrefix namespaces every key the repository writes.
const DefaultPrefix = "groupomania"

const createSessionScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "user_id", ARGV[2], "token_hash", ARGV[3], "created_at", ARGV[4])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`

const deleteSessionScript = `
local fields = redis.call("HMGET", KEYS[1], "user_id", "token_hash")
if not fields[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. ":token:" .. fields[2])
redis.call("SREM", ARGV[1] .. ":user:" .. fields[1], ARGV[2])
return 1
`

const deleteUserSessionsScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. ":session:" .. id
  local hash = redis.call("HGET", key, "token_hash")
  if hash then
    redis.call("DEL", ARGV[1] .. ":token:" .. hash)
    redis.call("DEL", key)
    removed = removed + 1
  end
end
redis.call("DEL", KEYS[1])
return removed
`

var (
	createSessionLua      = redis.NewScript(createSessionScript)
	deleteSessionLua      = redis.NewScript(deleteSessionScript)
	deleteUserSessionsLua = redis.NewScript(deleteUserSessionsScript)
)

// SessionRepository stores sessions in Redis.
type SessionRepository struct {
	client redis.UniversalClient
	prefix string
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a SessionRepository. An empty prefix uses
// DefaultPrefix.
func NewSessionRepository(client redis.UniversalClient, prefix string) *SessionRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionRepository{client: client, prefix: prefix}
}

func (r *SessionRepository) sessionKey(id string) string {
	return r.prefix + ":session:" + id
}

func (r *SessionRepository) tokenKey(tokenHash string) string {
	return r.prefix + ":token:" + tokenHash
}

func (r *SessionRepository) userKey(userID string) string {
	return r.prefix + ":user:" + userID
}

// Create stores a new session. A token hash already held by another session
// yields auth.ErrAlreadyExists.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	id := session.ID.String()
	userID := session.UserID.String()

	created, err := createSessionLua.Run(ctx, r.client,
		[]string{r.sessionKey(id), r.tokenKey(session.TokenHash), r.userKey(userID)},
		id, userID, session.TokenHash, strconv.FormatInt(session.CreatedAt.UnixNano(), 10),
	).Int()
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "create session").
			With("user_id", userID).
			Wrap(err)
	}
	if created == 0 {
		return oops.Code("SESSION_TOKEN_TAKEN").
			With("user_id", userID).
			Wrap(auth.ErrAlreadyExists)
	}
	return nil
}

// Exists reports whether a session holds tokenHash.
func (r *SessionRepository) Exists(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.client.Exists(ctx, r.tokenKey(tokenHash)).Result()
	if err != nil {
		return false, oops.Code("SESSION_EXISTS_FAILED").
			With("operation", "check session").
			Wrap(err)
	}
	return n == 1, nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	id, err := r.client.Get(ctx, r.tokenKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "resolve token hash").
			Wrap(err)
	}

	fields, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "read session").
			With("id", id).
			Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return decodeSession(id, fields)
}

// ListByUser returns the user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID.String())).Result()
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list session ids").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "read sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	sessions := make([]*auth.Session, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		session, err := decodeSession(ids[i], fields)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID.Compare(sessions[j].ID) > 0
	})
	return sessions, nil
}

// Delete removes the session with id together with its index entries.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	deleted, err := deleteSessionLua.Run(ctx, r.client,
		[]string{r.sessionKey(id.String())},
		r.prefix, id.String(),
	).Int()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("id", id.String()).
			Wrap(err)
	}
	if deleted == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes every session of userID and returns how many were removed.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := deleteUserSessionsLua.Run(ctx, r.client,
		[]string{r.userKey(userID.String())},
		r.prefix,
	).Int64()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// Ping checks the connection for readiness probes.
func (r *SessionRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_PING_FAILED").Wrap(err)
	}
	return nil
}

func decodeSession(id string, fields map[string]string) (*auth.Session, error) {
	sessionID, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", id).Wrap(err)
	}
	userID, err := ulid.Parse(fields["user_id"])
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").With("id", id).Wrap(err)
	}
	nanos, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_CREATED_AT").With("id", id).Wrap(err)
	}
	return &auth.Session{
		ID:        sessionID,
		UserID:    userID,
		TokenHash: fields["token_hash"],
		CreatedAt: time.Unix(0, nanos).UTC(),
	}, nil
}
