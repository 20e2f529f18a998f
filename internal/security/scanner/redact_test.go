// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner_test

import (
	"testing"

	"github.com/sigil-dev/aegis/internal/security/scanner"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(start, end int, repl string) scanner.Finding {
	return scanner.Finding{Type: "t", Span: scanner.Span{Start: start, End: end}, Replacement: repl}
}

func TestRedact_ReplacesSpanAndLeavesRestUntouched(t *testing.T) {
	text := "my card: 12345678 expires soon"
	//       0123456789012345678
	out, err := scanner.Redact(text, []scanner.Finding{finding(9, 17, "[REDACTED]")})
	require.NoError(t, err)

	assert.Equal(t, "my card: [REDACTED] expires soon", out)
	assert.Equal(t, text[:9], out[:9])
	assert.Equal(t, text[17:], out[9+len("[REDACTED]"):])
}

func TestRedact_TenToEighteen(t *testing.T) {
	text := "0123456789ABCDEFGHIJKLMNOP"
	out, err := scanner.Redact(text, []scanner.Finding{finding(10, 18, "[REDACTED]")})
	require.NoError(t, err)

	assert.Equal(t, "0123456789[REDACTED]IJKLMNOP", out)
	assert.NotContains(t, out, "ABCDEFGH")
	assert.NotEqual(t, len(text), len(out))
}

func TestRedact_MultipleFindingsDescendingOrder(t *testing.T) {
	text := "a@b.io then 555-123-4567 end"
	out, err := scanner.Redact(text, []scanner.Finding{
		finding(12, 24, ""),
		finding(0, 6, "[EMAIL]"),
	})
	require.NoError(t, err)
	assert.Equal(t, "[EMAIL] then [REDACTED] end", out)
}

func TestRedact_DefaultMaskToken(t *testing.T) {
	out, err := scanner.Redact("secret", []scanner.Finding{finding(0, 6, "")})
	require.NoError(t, err)
	assert.Equal(t, scanner.MaskToken, out)
}

func TestRedact_NoFindings(t *testing.T) {
	out, err := scanner.Redact("unchanged", nil)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", out)
}

func TestRedact_AdjacentSpansAllowed(t *testing.T) {
	out, err := scanner.Redact("aabb", []scanner.Finding{finding(0, 2, "X"), finding(2, 4, "Y")})
	require.NoError(t, err)
	assert.Equal(t, "XY", out)
}

func TestRedact_Conflicts(t *testing.T) {
	tests := []struct {
		name     string
		findings []scanner.Finding
	}{
		{"overlap", []scanner.Finding{finding(0, 5, ""), finding(3, 8, "")}},
		{"nested", []scanner.Finding{finding(0, 10, ""), finding(2, 4, "")}},
		{"end past text", []scanner.Finding{finding(5, 99, "")}},
		{"negative start", []scanner.Finding{finding(-1, 2, "")}},
		{"empty span", []scanner.Finding{finding(3, 3, "")}},
		{"inverted span", []scanner.Finding{finding(6, 2, "")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scanner.Redact("0123456789", tt.findings)
			require.Error(t, err)
			assert.True(t, aegiserr.IsRedactionConflict(err))
		})
	}
}

func TestMaskAll(t *testing.T) {
	assert.Equal(t, "[REDACTED]", scanner.MaskAll("anything at all"))
}
