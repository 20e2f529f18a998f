// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	"context"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Request is one unit of text submitted for scanning. It is built once per
// scan call and passed by value.
type Request struct {
	Text           string
	Direction      types.Direction
	ConversationID string
	// SequenceIndex is the chunk position within a response stream. Ingress
	// scans use 0.
	SequenceIndex int
}

// Validate checks that the request can be sent to a scanner.
func (r Request) Validate() error {
	if !r.Direction.Valid() {
		return aegiserr.Errorf(aegiserr.CodeScanRequestInvalid, "invalid scan direction %q", r.Direction)
	}
	if r.SequenceIndex < 0 {
		return aegiserr.Errorf(aegiserr.CodeScanRequestInvalid, "negative sequence index %d", r.SequenceIndex)
	}
	return nil
}

// Span is a half-open byte range [Start, End) into the scanned text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the byte length of the span.
func (s Span) Len() int { return s.End - s.Start }

// Finding marks a region of scanned text that carries sensitive data.
type Finding struct {
	Type string `json:"type"`
	Span Span   `json:"span"`
	// Replacement is substituted for the span during redaction. Empty means
	// the generic mask token is used.
	Replacement string `json:"replacement,omitempty"`
}

// Verdict is a scanner's classification of one Request. Findings are
// ordered by start offset and do not overlap.
type Verdict struct {
	ScanID     string         `json:"scan_id"`
	Category   types.Category `json:"category"`
	ReasonCode string         `json:"reason_code"`
	Findings   []Finding      `json:"findings,omitempty"`
}

// Client scans text and returns a verdict. Implementations must be safe for
// concurrent use and must never log the scanned text.
//
// Scan fails with CodeScanClientUnavailable when the service cannot be
// reached after retries, and with CodeScanClientTimeout when no verdict
// arrives before the deadline.
type Client interface {
	Scan(ctx context.Context, req Request) (Verdict, error)
}
