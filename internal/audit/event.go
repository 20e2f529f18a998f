// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package audit delivers scan events to durable and external sinks without
// blocking the request path.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Event records the outcome of one scan call. It never carries the scanned
// text.
type Event struct {
	ID             string          `json:"id" yaml:"id"`
	Timestamp      time.Time       `json:"timestamp" yaml:"timestamp"`
	ConversationID string          `json:"conversation_id" yaml:"conversation_id"`
	Agent          string          `json:"agent,omitempty" yaml:"agent,omitempty"`
	Direction      types.Direction `json:"direction" yaml:"direction"`
	SequenceIndex  int             `json:"sequence_index" yaml:"sequence_index"`
	ScanID         string          `json:"scan_id" yaml:"scan_id"`
	Category       types.Category  `json:"category" yaml:"category"`
	Action         types.Action    `json:"action" yaml:"action"`
	ReasonCode     string          `json:"reason_code,omitempty" yaml:"reason_code,omitempty"`
	DurationMs     int64           `json:"duration_ms" yaml:"duration_ms"`
	// Failure is the error code of a failed scan whose action came from the
	// fail-safe policy.
	Failure string `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent() Event {
	return Event{ID: uuid.NewString(), Timestamp: time.Now().UTC()}
}

// ToStore converts the event into its audit log row.
func (e Event) ToStore() *store.ScanEvent {
	return &store.ScanEvent{
		ID:             e.ID,
		Timestamp:      e.Timestamp,
		ConversationID: e.ConversationID,
		Agent:          e.Agent,
		Direction:      string(e.Direction),
		SequenceIndex:  e.SequenceIndex,
		ScanID:         e.ScanID,
		Category:       string(e.Category),
		Action:         string(e.Action),
		ReasonCode:     e.ReasonCode,
		DurationMs:     e.DurationMs,
		Failure:        e.Failure,
	}
}

// FromStore converts an audit log row back into an Event.
func FromStore(se *store.ScanEvent) Event {
	return Event{
		ID:             se.ID,
		Timestamp:      se.Timestamp,
		ConversationID: se.ConversationID,
		Agent:          se.Agent,
		Direction:      types.Direction(se.Direction),
		SequenceIndex:  se.SequenceIndex,
		ScanID:         se.ScanID,
		Category:       types.Category(se.Category),
		Action:         types.Action(se.Action),
		ReasonCode:     se.ReasonCode,
		DurationMs:     se.DurationMs,
		Failure:        se.Failure,
	}
}
