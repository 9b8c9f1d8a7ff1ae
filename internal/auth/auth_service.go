// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/groupomania/groupomania/pkg/errutil"
)

// SignupInput holds the fields accepted at registration.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	UserID       ulid.ULID
	Role         Role
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshResult is returned by a successful Refresh.
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Service provides signup, login, token refresh and logout.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	hashes   *HashPool
	tokens   TokenIssuer
	roles    RolePolicy
	logger   *slog.Logger
}

type serviceOptions struct {
	logger          *slog.Logger
	hashConcurrency int
	hashObserver    func(time.Duration)
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithLogger sets the logger used for security events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithHashConcurrency bounds concurrent password hashing. Zero uses the CPU count.
func WithHashConcurrency(n int) ServiceOption {
	return func(o *serviceOptions) {
		o.hashConcurrency = n
	}
}

// WithHashObserver receives the duration of every hash or verify computation.
func WithHashObserver(observe func(time.Duration)) ServiceOption {
	return func(o *serviceOptions) {
		o.hashObserver = observe
	}
}

// NewAuthService creates a new Service. All dependencies are required.
func NewAuthService(
	users UserRepository,
	sessions SessionRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	roles RolePolicy,
	opts ...ServiceOption,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("token issuer is required")
	}
	if roles == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("role policy is required")
	}

	o := serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}

	return &Service{
		users:    users,
		sessions: sessions,
		hashes:   NewHashPool(hasher, o.hashConcurrency, o.hashObserver),
		tokens:   tokens,
		roles:    roles,
		logger:   o.logger,
	}, nil
}

// Signup registers a new user with a hashed password and the role chosen by
// the role policy.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	if in.Email == "" || in.Password == "" {
		return nil, oops.Code(CodeInvalidSignup).Errorf("email and password are required")
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, oops.Code(CodeInvalidSignup).
			With("max_bytes", MaxPasswordBytes).
			Errorf("password is longer than %d bytes", MaxPasswordBytes)
	}

	exists, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, oops.Code(CodeSignupFailed).
			With("operation", "check email").
			Wrap(err)
	}
	if exists {
		return nil, oops.Code(CodeEmailExists).Errorf("email already exists")
	}

	hash, err := s.hashes.Hash(ctx, in.Password)
	if err != nil {
		return nil, oops.Code(CodeSignupFailed).
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.Email, hash, s.roles.RoleFor(in.Email, in.Password), in.FirstName, in.LastName)
	if err != nil {
		return nil, oops.Code(CodeSignupFailed).
			With("operation", "build user").
			Wrap(err)
	}

	// The pre-check above races with concurrent signups; the store's
	// uniqueness constraint decides.
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code(CodeEmailExists).Errorf("email already exists")
		}
		return nil, oops.Code(CodeSignupFailed).
			With("operation", "persist user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user signed up",
		"user_id", user.ID.String(),
		"role", string(user.Role),
	)
	return user, nil
}

// Login verifies credentials, issues an access and a refresh token, and
// records a session for the refresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.InfoContext(ctx, "login rejected", "reason", "unknown email")
			return nil, oops.Code(CodeUserNotFound).Errorf("user not found")
		}
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "get user by email").
			Wrap(err)
	}

	valid, err := s.hashes.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		s.logger.InfoContext(ctx, "login rejected", "reason", "invalid password", "user_id", user.ID.String())
		return nil, oops.Code(CodeInvalidPassword).
			With("user_id", user.ID.String()).
			Errorf("invalid password")
	}

	s.upgradeHash(ctx, user, password)

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "issue access token").
			Wrap(err)
	}
	refresh, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "issue refresh token").
			Wrap(err)
	}

	session, err := NewSession(user.ID, refresh)
	if err != nil {
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "build session").
			Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
	)
	return &LoginResult{
		UserID:       user.ID,
		Role:         user.Role,
		AccessToken:  access.Token,
		RefreshToken: refresh,
		ExpiresAt:    access.ExpiresAt,
	}, nil
}

// upgradeHash rehashes the password when the stored hash is weaker than the
// current parameters. Failures are logged and never fail the login.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hashes.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hashes.Hash(ctx, password)
	if err != nil {
		errutil.LogError(ctx, s.logger, "password rehash failed", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		errutil.LogError(ctx, s.logger, "password rehash not persisted", err)
		return
	}
	user.PasswordHash = newHash
}

// Refresh exchanges a refresh token for a new access token. The token must
// both have a stored session and carry a valid signature. The refresh token
// itself is not rotated.
//
// A session deleted after the store check but before issuance is still
// honored once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, oops.Code(CodeRefreshTokenMissing).Errorf("refresh token is required")
	}

	exists, err := s.sessions.Exists(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return nil, oops.Code(CodeRefreshFailed).
			With("operation", "check session").
			Wrap(err)
	}
	if !exists {
		s.logger.InfoContext(ctx, "refresh rejected", "reason", "no session")
		return nil, oops.Code(CodeRefreshSessionNotFound).Errorf("refresh token has no session")
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh rejected", "reason", "verification failed", "error", err)
		return nil, oops.Code(CodeRefreshTokenInvalid).
			With("reason", err.Error()).
			Errorf("refresh token verification failed")
	}

	access, err := s.tokens.IssueAccess(claims.User())
	if err != nil {
		return nil, oops.Code(CodeRefreshFailed).
			With("operation", "issue access token").
			Wrap(err)
	}

	s.logger.DebugContext(ctx, "access token refreshed", "user_id", claims.User().String())
	return &RefreshResult{AccessToken: access.Token, ExpiresAt: access.ExpiresAt}, nil
}

// Logout deletes the session of refreshToken. Access tokens already handed
// out stay valid until they expire.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return oops.Code(CodeLogoutTokenMissing).Errorf("refresh token is required")
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeLogoutSessionNotFound).Errorf("session not found")
		}
		return oops.Code(CodeLogoutFailed).
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeLogoutSessionNotFound).
				With("session_id", session.ID.String()).
				Errorf("session not found")
		}
		return oops.Code(CodeLogoutFailed).
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged out",
		"user_id", session.UserID.String(),
		"session_id", session.ID.String(),
	)
	return nil
}

// RevokeAll deletes every session of userID and returns how many were removed.
func (s *Service) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code(CodeRevokeFailed).
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "sessions revoked", "user_id", userID.String(), "count", n)
	return n, nil
}

// Authenticate verifies an access token for collaborators that need the
// caller's identity.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, oops.Code(CodeAccessTokenInvalid).Errorf("access token is required")
	}
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		s.logger.DebugContext(ctx, "access token rejected", "error", err)
		return nil, oops.Code(CodeAccessTokenInvalid).
			With("reason", err.Error()).
			Errorf("invalid access token")
	}
	return claims, nil
}
