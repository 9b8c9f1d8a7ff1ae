// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package web_test

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

func parseULID(v any) (ulid.ULID, error) {
	s, ok := v.(string)
	if !ok {
		return ulid.ULID{}, fmt.Errorf("user id is %T, not a string", v)
	}
	return ulid.Parse(s)
}
