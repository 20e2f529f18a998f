// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner_test

import (
	"testing"

	"github.com/sigil-dev/aegis/internal/security/scanner"
	"github.com/stretchr/testify/assert"
)

func TestFormatNotice_AllFieldsPresent(t *testing.T) {
	n := scanner.FormatNotice(scanner.NoticeInput{Reason: "injection", Category: "malicious", ScanID: "scan-9"})

	assert.Contains(t, n, "Security Notice")
	assert.Contains(t, n, "**Reason:** injection")
	assert.Contains(t, n, "**Category:** malicious")
	assert.Contains(t, n, "**Scan ID:** scan-9")
	assert.Contains(t, n, "Please review your content and try again.")
}

func TestFormatNotice_EmptyFieldsRenderNA(t *testing.T) {
	n := scanner.FormatNotice(scanner.NoticeInput{Reason: " "})

	assert.Contains(t, n, "**Reason:** N/A")
	assert.Contains(t, n, "**Category:** N/A")
	assert.Contains(t, n, "**Scan ID:** N/A")
}

func TestFormatWarning(t *testing.T) {
	w := scanner.FormatWarning(scanner.NoticeInput{Reason: "scan_timeout", Category: "unknown"})

	assert.Contains(t, w, "Security Warning")
	assert.Contains(t, w, "fail-open")
	assert.Contains(t, w, "**Reason:** scan_timeout")
	assert.Contains(t, w, "**Scan ID:** N/A")
}
