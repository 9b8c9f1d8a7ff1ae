// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package auth

import (
	"crypto/subtle"

	"github.com/samber/oops"
)

// RolePolicy decides the role assigned to a new account.
type RolePolicy interface {
	RoleFor(email, password string) Role
}

// RolePolicyFunc adapts a function to RolePolicy.
type RolePolicyFunc func(email, password string) Role

// RoleFor calls f.
func (f RolePolicyFunc) RoleFor(email, password string) Role {
	return f(email, password)
}

// AdminPairPolicy grants RoleAdmin to a signup whose email and password
// both exactly match the configured admin pair. Every other signup is
// RoleBasic.
//
// The admin password doubles as a privilege switch. Keep this rule behind
// RolePolicy so it can be replaced without touching Service.
type AdminPairPolicy struct {
	email    []byte
	password []byte
}

// NewAdminPairPolicy creates an AdminPairPolicy. Both values are required.
func NewAdminPairPolicy(email, password string) (*AdminPairPolicy, error) {
	if email == "" || password == "" {
		return nil, oops.Code("AUTH_INVALID_ADMIN_PAIR").Errorf("admin email and password are required")
	}
	return &AdminPairPolicy{email: []byte(email), password: []byte(password)}, nil
}

// RoleFor returns RoleAdmin only on an exact match of both values.
func (p *AdminPairPolicy) RoleFor(email, password string) Role {
	emailMatch := subtle.ConstantTimeCompare([]byte(email), p.email)
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), p.password)
	if emailMatch&passwordMatch == 1 {
		return RoleAdmin
	}
	return RoleBasic
}
