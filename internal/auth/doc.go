// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

// Package auth provides authentication and session management for Groupomania.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with signup defaults and a validated role
//   - NewSession - creates a Session holding the digest of a refresh token
//
// Repository implementations receive pre-validated types from these constructors.
//
// # Tokens
//
// Access tokens are HS256 JWTs valid for AccessTokenTTL. Refresh tokens are
// HS256 JWTs signed with a different secret and carry no expiry; a refresh
// token is honored only while its Session is stored, so deleting the Session
// revokes it.
//
// # Services
//
// Service coordinates signup, login, refresh and logout and classifies every
// failure with an oops code; KindOf maps codes to boundary kinds.
package auth
