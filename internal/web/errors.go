// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/groupomania/groupomania/internal/auth"
)

// Response messages. The spelling is part of the public API.
const (
	MsgSignupSuccess        = "User succesfully created !"
	MsgEmailExists          = "Email already exist"
	MsgUserNotFound         = "Can't find user"
	MsgInvalidPassword      = "Invalid password"
	MsgLoginFailed          = "Error on login"
	MsgRefreshTokenMissing  = "Can't find refreshToken in request body"
	MsgRefreshTokenUnknown  = "Can't find requested refreshToken in database"
	MsgJWTVerifyFailed      = "JWT verify error"
	MsgTokenNotFound        = "Token not found"
	MsgLogoutSuccess        = "Succesfully logged out"
	MsgSessionsRevoked      = "All sessions revoked"
	MsgInvalidBody          = "Invalid request body"
	MsgInternal             = "Internal server error"
	MsgMissingAuthorization = "Missing authorization"
	MsgInvalidAccessToken   = "Invalid access token"
)

var errInvalidBody = errors.New(MsgInvalidBody)

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindConflict:
		return fiber.StatusConflict
	case auth.KindUnauthorized:
		return fiber.StatusUnauthorized
	case auth.KindForbidden, auth.KindInvalidToken:
		return fiber.StatusForbidden
	case auth.KindBadRequest:
		return fiber.StatusBadRequest
	case auth.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// routeError is the status and message a route reports for one failure.
type routeError struct {
	status  int
	message string
}

// messageTable picks the message for a failure kind on one route. Kinds
// absent from the table report MsgInternal with the kind's status.
type messageTable map[auth.Kind]routeError

func (t messageTable) lookup(err error) routeError {
	kind := auth.KindOf(err)
	if re, ok := t[kind]; ok {
		return re
	}
	return routeError{status: statusFor(kind), message: MsgInternal}
}

var (
	signupErrors = messageTable{
		auth.KindConflict:   {fiber.StatusConflict, MsgEmailExists},
		auth.KindBadRequest: {fiber.StatusBadRequest, MsgInvalidBody},
	}
	loginErrors = messageTable{
		auth.KindUnauthorized: {fiber.StatusUnauthorized, MsgUserNotFound},
		auth.KindForbidden:    {fiber.StatusForbidden, MsgInvalidPassword},
		auth.KindStorage:      {fiber.StatusInternalServerError, MsgLoginFailed},
	}
	// A missing refresh token is a bad request to the service but the
	// route reports it as 401.
	refreshErrors = messageTable{
		auth.KindBadRequest:   {fiber.StatusUnauthorized, MsgRefreshTokenMissing},
		auth.KindForbidden:    {fiber.StatusForbidden, MsgRefreshTokenUnknown},
		auth.KindInvalidToken: {fiber.StatusForbidden, MsgJWTVerifyFailed},
	}
)

// logoutError separates the two not-found cases, which share a kind.
func logoutError(err error) routeError {
	switch auth.ErrorCode(err) {
	case auth.CodeLogoutTokenMissing:
		return routeError{fiber.StatusNotFound, MsgRefreshTokenMissing}
	case auth.CodeLogoutSessionNotFound:
		return routeError{fiber.StatusNotFound, MsgTokenNotFound}
	}
	return routeError{statusFor(auth.KindOf(err)), MsgInternal}
}

func sendError(c fiber.Ctx, re routeError) error {
	return c.Status(re.status).JSON(fiber.Map{"error": re.message})
}
