// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a uniqueness constraint rejects a write.
var ErrAlreadyExists = errors.New("already exists")

// Error codes produced by Service. Repository and infrastructure codes are
// not listed here; anything unlisted classifies as KindStorage.
const (
	CodeInvalidSignup          = "AUTH_INVALID_SIGNUP"
	CodeEmailExists            = "AUTH_EMAIL_EXISTS"
	CodeSignupFailed           = "AUTH_SIGNUP_FAILED"
	CodeUserNotFound           = "AUTH_USER_NOT_FOUND"
	CodeInvalidPassword        = "AUTH_INVALID_PASSWORD"
	CodeLoginFailed            = "AUTH_LOGIN_FAILED"
	CodeRefreshTokenMissing    = "AUTH_REFRESH_TOKEN_MISSING"
	CodeRefreshSessionNotFound = "AUTH_REFRESH_SESSION_NOT_FOUND"
	CodeRefreshTokenInvalid    = "AUTH_REFRESH_TOKEN_INVALID"
	CodeRefreshFailed          = "AUTH_REFRESH_FAILED"
	CodeLogoutTokenMissing     = "AUTH_LOGOUT_TOKEN_MISSING"
	CodeLogoutSessionNotFound  = "AUTH_LOGOUT_SESSION_NOT_FOUND"
	CodeLogoutFailed           = "AUTH_LOGOUT_FAILED"
	CodeRevokeFailed           = "AUTH_REVOKE_FAILED"
	CodeAccessTokenInvalid     = "AUTH_ACCESS_TOKEN_INVALID"
	CodeTokenInvalid           = "TOKEN_INVALID"
)

// Kind is the boundary-level classification of an auth failure.
type Kind string

// Failure kinds.
const (
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindBadRequest   Kind = "bad_request"
	KindNotFound     Kind = "not_found"
	KindStorage      Kind = "storage"
	KindInvalidToken Kind = "invalid_token"
)

var kindByCode = map[string]Kind{
	CodeInvalidSignup:          KindBadRequest,
	CodeEmailExists:            KindConflict,
	CodeUserNotFound:           KindUnauthorized,
	CodeInvalidPassword:        KindForbidden,
	CodeRefreshTokenMissing:    KindBadRequest,
	CodeRefreshSessionNotFound: KindForbidden,
	CodeRefreshTokenInvalid:    KindInvalidToken,
	CodeTokenInvalid:           KindInvalidToken,
	CodeLogoutTokenMissing:     KindNotFound,
	CodeLogoutSessionNotFound:  KindNotFound,
	CodeAccessTokenInvalid:     KindUnauthorized,
}

// KindOf classifies err by its oops code. Errors without a known code,
// including plain errors, are storage failures.
func KindOf(err error) Kind {
	if kind, ok := kindByCode[ErrorCode(err)]; ok {
		return kind
	}
	return KindStorage
}

// ErrorCode returns the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string)
	return code
}
