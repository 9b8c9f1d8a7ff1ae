// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import "github.com/stretchr/testify/mock"

// testingT is satisfied by *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}
