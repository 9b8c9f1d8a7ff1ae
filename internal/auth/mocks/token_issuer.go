// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package mocks

import (
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/groupomania/groupomania/internal/auth"
)

// MockTokenIssuer is a mock of auth.TokenIssuer.
type MockTokenIssuer struct {
	mock.Mock
}

var _ auth.TokenIssuer = (*MockTokenIssuer)(nil)

// NewMockTokenIssuer creates a MockTokenIssuer whose expectations are
// asserted when the test ends.
func NewMockTokenIssuer(t testingT) *MockTokenIssuer {
	m := &MockTokenIssuer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenIssuer) IssueAccess(userID ulid.ULID) (auth.AccessToken, error) {
	args := m.Called(userID)
	token, _ := args.Get(0).(auth.AccessToken)
	return token, args.Error(1)
}

func (m *MockTokenIssuer) IssueRefresh(userID ulid.ULID) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

func (m *MockTokenIssuer) VerifyAccess(token string) (*auth.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*auth.Claims)
	return claims, args.Error(1)
}

func (m *MockTokenIssuer) VerifyRefresh(token string) (*auth.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*auth.Claims)
	return claims, args.Error(1)
}
