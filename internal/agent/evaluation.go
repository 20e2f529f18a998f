// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/aegis/internal/store"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

const (
	feedbackThanks  = "Thank you for your feedback!"
	feedbackUnclear = "I didn't understand your feedback. Please respond with 'yes' or 'no'."
)

// Evaluation records yes/no feedback on the previous answer.
type Evaluation struct {
	feedback store.FeedbackStore
	now      func() time.Time
}

var _ Agent = (*Evaluation)(nil)

// NewEvaluation creates an Evaluation agent writing to fs.
func NewEvaluation(fs store.FeedbackStore) (*Evaluation, error) {
	if fs == nil {
		return nil, aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "evaluation: feedback store is required")
	}
	return &Evaluation{feedback: fs, now: time.Now}, nil
}

func (e *Evaluation) Name() string { return EvaluationName }

// Receive records the rating when the stream is ranged over.
func (e *Evaluation) Receive(ctx context.Context, msg Message) (Stream, error) {
	return func(yield func(string, error) bool) {
		var rating store.FeedbackRating
		switch strings.ToLower(strings.TrimSpace(msg.Text)) {
		case "yes":
			rating = store.FeedbackPositive
		case "no":
			rating = store.FeedbackNegative
		default:
			yield(feedbackUnclear, nil)
			return
		}

		err := e.feedback.Record(ctx, &store.Feedback{
			ID:             uuid.NewString(),
			ConversationID: msg.ConversationID,
			Rating:         rating,
			CreatedAt:      e.now().UTC(),
		})
		if err != nil {
			yield("", err)
			return
		}
		yield(feedbackThanks, nil)
	}, nil
}
