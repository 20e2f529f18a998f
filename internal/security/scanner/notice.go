// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	"fmt"
	"strings"
)

// NoticeInput holds the fields rendered into a security notice. None of them
// may carry scanned text.
type NoticeInput struct {
	Reason   string
	Category string
	ScanID   string
}

const unavailableField = "N/A"

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return unavailableField
	}
	return s
}

// FormatNotice renders the notice that replaces blocked content. Every field
// line is always present; empty values render as N/A so operators can still
// correlate the notice with scanner-side logs.
func FormatNotice(in NoticeInput) string {
	return fmt.Sprintf(`🛡️ **Security Notice**

This message was blocked by security scanning.

**Reason:** %s
**Category:** %s
**Scan ID:** %s

Please review your content and try again.`, orNA(in.Reason), orNA(in.Category), orNA(in.ScanID))
}

// FormatWarning renders the advisory attached to content that was allowed
// through because scanning failed under a fail-open policy.
func FormatWarning(in NoticeInput) string {
	return fmt.Sprintf(`⚠️ **Security Warning**

This message was not verified by security scanning and was allowed by the fail-open policy.

**Reason:** %s
**Category:** %s
**Scan ID:** %s`, orNA(in.Reason), orNA(in.Category), orNA(in.ScanID))
}
