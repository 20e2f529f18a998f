// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// Category is the classification a verdict assigns to scanned text.
type Category string

const (
	CategoryBenign        Category = "benign"
	CategoryMalicious     Category = "malicious"
	CategorySensitiveData Category = "sensitive_data"
	CategoryUnknown       Category = "unknown"
)

// Valid reports whether c is a recognized category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBenign, CategoryMalicious, CategorySensitiveData, CategoryUnknown:
		return true
	default:
		return false
	}
}

// ParseCategory parses a case-insensitive category name. Upper-case names
// such as "SENSITIVE_DATA" are accepted.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"invalid category: %q", s)
	}
	return c, nil
}
