// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"time"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// ScanEvent is one row of the audit log: the outcome of a single scan call.
type ScanEvent struct {
	ID             string
	Timestamp      time.Time
	ConversationID string
	Agent          string
	Direction      string
	SequenceIndex  int
	ScanID         string
	Category       string
	Action         string
	ReasonCode     string
	DurationMs     int64
	// Failure holds the error code when the scan itself failed and the
	// action came from the fail-safe policy.
	Failure string
}

// Validate checks the fields the audit log requires.
func (e ScanEvent) Validate() error {
	if e.ID == "" {
		return aegiserr.New(aegiserr.CodeStoreInvalidInput, "scan event: ID is required")
	}
	if e.Timestamp.IsZero() {
		return aegiserr.New(aegiserr.CodeStoreInvalidInput, "scan event: Timestamp is required")
	}
	if e.Direction == "" {
		return aegiserr.New(aegiserr.CodeStoreInvalidInput, "scan event: Direction is required")
	}
	if e.Action == "" {
		return aegiserr.New(aegiserr.CodeStoreInvalidInput, "scan event: Action is required")
	}
	return nil
}

// AuditFilter specifies criteria for querying scan events.
type AuditFilter struct {
	ConversationID string
	Action         string
	Direction      string
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// FeedbackRating is a user's verdict on an answer.
type FeedbackRating string

const (
	FeedbackPositive FeedbackRating = "positive"
	FeedbackNegative FeedbackRating = "negative"
)

// Valid reports whether the rating is known.
func (r FeedbackRating) Valid() bool {
	return r == FeedbackPositive || r == FeedbackNegative
}

// Feedback is one rating recorded by the evaluation agent.
type Feedback struct {
	ID             string
	ConversationID string
	Rating         FeedbackRating
	Comment        string
	CreatedAt      time.Time
}

// Validate checks that the feedback can be stored.
func (f Feedback) Validate() error {
	if f.ID == "" {
		return aegiserr.New(aegiserr.CodeStoreFeedbackInvalidInput, "feedback: ID is required")
	}
	if !f.Rating.Valid() {
		return aegiserr.Errorf(aegiserr.CodeStoreFeedbackInvalidInput, "feedback: invalid rating %q", f.Rating)
	}
	if f.CreatedAt.IsZero() {
		return aegiserr.New(aegiserr.CodeStoreFeedbackInvalidInput, "feedback: CreatedAt is required")
	}
	return nil
}

// --- Query options ---

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}
