// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	"slices"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// MaskToken replaces a finding that carries no replacement of its own.
const MaskToken = "[REDACTED]"

// Redact returns text with every finding span replaced. Findings must lie
// within text and must not overlap; otherwise Redact fails with
// CodeScanRedactConflict and text should be masked entirely with MaskAll.
//
// Spans are applied from the highest start offset down so earlier offsets
// stay valid while the string changes length.
func Redact(text string, findings []Finding) (string, error) {
	if len(findings) == 0 {
		return text, nil
	}

	ordered := slices.Clone(findings)
	slices.SortStableFunc(ordered, func(a, b Finding) int { return a.Span.Start - b.Span.Start })

	prevEnd := 0
	for i, f := range ordered {
		if f.Span.Start < 0 || f.Span.End > len(text) || f.Span.Start >= f.Span.End {
			return "", aegiserr.Errorf(aegiserr.CodeScanRedactConflict,
				"finding %s has span [%d,%d) outside text of length %d", f.Type, f.Span.Start, f.Span.End, len(text))
		}
		if i > 0 && f.Span.Start < prevEnd {
			return "", aegiserr.Errorf(aegiserr.CodeScanRedactConflict,
				"finding %s at [%d,%d) overlaps previous finding ending at %d", f.Type, f.Span.Start, f.Span.End, prevEnd)
		}
		prevEnd = f.Span.End
	}

	out := text
	for i := len(ordered) - 1; i >= 0; i-- {
		f := ordered[i]
		repl := f.Replacement
		if repl == "" {
			repl = MaskToken
		}
		out = out[:f.Span.Start] + repl + out[f.Span.End:]
	}
	return out, nil
}

// MaskAll is the fallback when findings cannot be applied individually.
func MaskAll(string) string {
	return MaskToken
}
