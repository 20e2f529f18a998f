// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxContentLength is the largest text LocalScanner will inspect (1MB).
// Larger inputs are classified malicious without matching.
const DefaultMaxContentLength = 1 << 20

// LocalScanner implements Client with regex rules evaluated in-process. It
// serves offline deployments and tests; its verdicts use the same shape as
// the remote service.
type LocalScanner struct {
	rules            []Rule
	maxContentLength int
}

var _ Client = (*LocalScanner)(nil)

// NewLocalScanner creates a scanner with the given rules.
func NewLocalScanner(rules []Rule) (*LocalScanner, error) {
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return nil, aegiserr.Wrapf(err, aegiserr.CodeScanRuleInvalid, "rule %d", i)
		}
	}
	return &LocalScanner{rules: slices.Clone(rules), maxContentLength: DefaultMaxContentLength}, nil
}

// invisibleCharReplacer strips zero-width and other invisible Unicode
// characters used to split trigger phrases.
var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // zero-width no-break space / BOM
	"\u00ad", "", // soft hyphen
	"\u034f", "", // combining grapheme joiner
	"\u061c", "", // Arabic letter mark
	"\u180e", "", // Mongolian vowel separator
	"\u2060", "", // word joiner
	"\u2061", "", // invisible function application
	"\u2062", "", // invisible times
	"\u2063", "", // invisible separator
	"\u2064", "", // invisible plus
)

// normalize applies NFKC normalization after stripping invisible characters
// so homoglyph and zero-width evasion still matches malicious rules.
func normalize(s string) string {
	return norm.NFKC.String(invisibleCharReplacer.Replace(s))
}

// Scan classifies req.Text. Malicious rules win over sensitive-data rules.
// Finding offsets always refer to req.Text, never the normalized form.
func (s *LocalScanner) Scan(ctx context.Context, req Request) (Verdict, error) {
	if err := req.Validate(); err != nil {
		return Verdict{}, err
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, aegiserr.Wrap(err, aegiserr.CodeScanClientUnavailable, "scan cancelled")
	}

	scanID := "local-" + uuid.NewString()

	if len(req.Text) > s.maxContentLength {
		return Verdict{ScanID: scanID, Category: types.CategoryMalicious, ReasonCode: "content_too_large"}, nil
	}

	normalized := normalize(req.Text)
	for _, r := range s.rules {
		if r.Category != types.CategoryMalicious || !r.appliesTo(req.Direction) {
			continue
		}
		if r.Pattern.MatchString(normalized) {
			return Verdict{ScanID: scanID, Category: types.CategoryMalicious, ReasonCode: r.Name}, nil
		}
	}

	findings := sensitiveFindings(s.rules, req)
	if len(findings) == 0 {
		return Verdict{ScanID: scanID, Category: types.CategoryBenign, ReasonCode: "clean"}, nil
	}

	var names []string
	for _, f := range findings {
		if !slices.Contains(names, f.Type) {
			names = append(names, f.Type)
		}
	}
	return Verdict{
		ScanID:     scanID,
		Category:   types.CategorySensitiveData,
		ReasonCode: strings.Join(names, ","),
		Findings:   findings,
	}, nil
}

// DetectSensitive locates sensitive data in req.Text with the built-in rules.
// It supplies spans for verdicts that ask for redaction without carrying any.
func DetectSensitive(req Request) ([]Finding, error) {
	rules, err := builtinRules()
	if err != nil {
		return nil, err
	}
	return sensitiveFindings(rules, req), nil
}

// sensitiveFindings collects sensitive-data matches on the original text and
// merges overlapping ones so the result is ordered and disjoint. A merged
// finding keeps the type and replacement of the earliest match.
func sensitiveFindings(rules []Rule, req Request) []Finding {
	var found []Finding
	for _, r := range rules {
		if r.Category != types.CategorySensitiveData || !r.appliesTo(req.Direction) {
			continue
		}
		for _, m := range r.Pattern.FindAllStringSubmatchIndex(req.Text, -1) {
			start, end := m[2*r.Group], m[2*r.Group+1]
			if start < 0 || end <= start {
				continue
			}
			found = append(found, Finding{
				Type:        r.Name,
				Span:        Span{Start: start, End: end},
				Replacement: r.Replacement,
			})
		}
	}
	if len(found) == 0 {
		return nil
	}

	slices.SortStableFunc(found, func(a, b Finding) int { return a.Span.Start - b.Span.Start })

	merged := []Finding{found[0]}
	for _, f := range found[1:] {
		last := &merged[len(merged)-1]
		if f.Span.Start < last.Span.End {
			if f.Span.End > last.Span.End {
				last.Span.End = f.Span.End
			}
			continue
		}
		merged = append(merged, f)
	}
	return merged
}
