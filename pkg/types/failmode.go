// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// FailMode defines how a scan failure is resolved when no verdict is available.
type FailMode string

const (
	FailOpen   FailMode = "fail_open"
	FailClosed FailMode = "fail_closed"
)

// Valid reports whether m is a recognized fail mode.
func (m FailMode) Valid() bool {
	switch m {
	case FailOpen, FailClosed:
		return true
	default:
		return false
	}
}

// ParseFailMode parses a case-insensitive string into a FailMode. Both
// "fail_open" and "open" spellings are accepted.
func ParseFailMode(s string) (FailMode, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.ReplaceAll(raw, "-", "_")
	if !strings.HasPrefix(raw, "fail_") {
		raw = "fail_" + raw
	}
	m := FailMode(raw)
	if !m.Valid() {
		return "", aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"invalid fail mode: %q", s)
	}
	return m, nil
}
