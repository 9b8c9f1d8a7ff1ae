// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails t unless err carries the oops code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, requireOops(t, err).Code(), "oops code of %v", err)
}

// AssertErrorContext fails t unless err carries key=value in its oops context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	fields := requireOops(t, err).Context()
	if assert.Contains(t, fields, key, "oops context of %v", err) {
		assert.Equal(t, value, fields[key], "oops context %q", key)
	}
}

func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected an oops error, got %T: %v", err, err)
	return oopsErr
}
