// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/oklog/ulid/v2"

	"github.com/groupomania/groupomania/internal/auth"
	"github.com/groupomania/groupomania/internal/observability"
	"github.com/groupomania/groupomania/pkg/errutil"
)

// AuthService is the subset of *auth.Service the handlers call.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

type signupRequest struct {
	Email     string `json:"email" validate:"required"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	UserID       string    `json:"userId"`
	Role         auth.Role `json:"role"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	// ExpiresAt is the access token expiry in epoch milliseconds.
	ExpiresAt    int64     `json:"expiresAt"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// UserHandler serves the /api/users routes.
type UserHandler struct {
	service   AuthService
	validator *Validator
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewUserHandler creates a UserHandler. metrics may be nil.
func NewUserHandler(service AuthService, validator *Validator, metrics *observability.Metrics, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{service: service, validator: validator, metrics: metrics, logger: logger}
}

// Register mounts the user routes on router.
func (h *UserHandler) Register(router fiber.Router) {
	users := router.Group("/api/users")
	users.Post("/signup", h.Signup)
	users.Post("/login", h.Login)
	users.Post("/token", h.Refresh)
	users.Post("/logout", h.Logout)
	users.Post("/logout-all", RequireAccessToken(h.service), h.LogoutAll)
}

// Signup handles POST /api/users/signup.
func (h *UserHandler) Signup(c fiber.Ctx) error {
	var req signupRequest
	if err := h.bind(c, &req); err != nil {
		return sendError(c, routeError{fiber.StatusBadRequest, err.Error()})
	}

	_, err := h.service.Signup(c.Context(), auth.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	h.record("signup", err)
	if err != nil {
		return h.fail(c, "signup failed", err, signupErrors.lookup(err))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": MsgSignupSuccess})
}

// Login handles POST /api/users/login.
func (h *UserHandler) Login(c fiber.Ctx) error {
	var req loginRequest
	if err := h.bind(c, &req); err != nil {
		return sendError(c, routeError{fiber.StatusBadRequest, err.Error()})
	}

	res, err := h.service.Login(c.Context(), req.Email, req.Password)
	h.record("login", err)
	if err != nil {
		return h.fail(c, "login failed", err, loginErrors.lookup(err))
	}
	return c.JSON(loginResponse{
		UserID:       res.UserID.String(),
		Role:         res.Role,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt.UnixMilli(),
	})
}

// Refresh handles POST /api/users/token.
func (h *UserHandler) Refresh(c fiber.Ctx) error {
	token, err := refreshToken(c)
	if err != nil {
		return sendError(c, routeError{fiber.StatusBadRequest, MsgInvalidBody})
	}

	res, err := h.service.Refresh(c.Context(), token)
	h.record("refresh", err)
	if err != nil {
		return h.fail(c, "refresh failed", err, refreshErrors.lookup(err))
	}
	return c.JSON(refreshResponse{AccessToken: res.AccessToken, ExpiresAt: res.ExpiresAt.UnixMilli()})
}

// Logout handles POST /api/users/logout.
func (h *UserHandler) Logout(c fiber.Ctx) error {
	token, err := refreshToken(c)
	if err != nil {
		return sendError(c, routeError{fiber.StatusBadRequest, MsgInvalidBody})
	}

	err = h.service.Logout(c.Context(), token)
	h.record("logout", err)
	if err != nil {
		return h.fail(c, "logout failed", err, logoutError(err))
	}
	return c.JSON(fiber.Map{"message": MsgLogoutSuccess})
}

// LogoutAll handles POST /api/users/logout-all for the authenticated user.
func (h *UserHandler) LogoutAll(c fiber.Ctx) error {
	userID, ok := UserID(c)
	if !ok {
		return sendError(c, routeError{fiber.StatusUnauthorized, MsgMissingAuthorization})
	}

	n, err := h.service.RevokeAll(c.Context(), userID)
	h.record("revoke_all", err)
	if err != nil {
		return h.fail(c, "revoke all sessions failed", err, routeError{fiber.StatusInternalServerError, MsgInternal})
	}
	return c.JSON(fiber.Map{"message": MsgSessionsRevoked, "revoked": n})
}

func (h *UserHandler) bind(c fiber.Ctx, req any) error {
	if err := c.Bind().JSON(req); err != nil {
		return errInvalidBody
	}
	return h.validator.Validate(req)
}

// refreshToken reads the refreshToken field. An empty body yields "" so the
// service reports the token as missing.
func refreshToken(c fiber.Ctx) (string, error) {
	if len(c.Body()) == 0 {
		return "", nil
	}
	var req tokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return "", err
	}
	return req.RefreshToken, nil
}

// fail writes re and logs err when it is a server-side failure.
func (h *UserHandler) fail(c fiber.Ctx, msg string, err error, re routeError) error {
	if re.status >= fiber.StatusInternalServerError {
		errutil.LogError(c.Context(), h.logger, msg, err)
	}
	return sendError(c, re)
}

func (h *UserHandler) record(operation string, err error) {
	if h.metrics != nil {
		h.metrics.RecordAuth(operation, err)
	}
}
