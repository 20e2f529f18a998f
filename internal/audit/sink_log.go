// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit

import (
	"context"
	"log/slog"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, ev Event) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "scan event",
		slog.String("event_id", ev.ID),
		slog.String("conversation_id", ev.ConversationID),
		slog.String("agent", ev.Agent),
		slog.String("direction", string(ev.Direction)),
		slog.Int("sequence_index", ev.SequenceIndex),
		slog.String("scan_id", ev.ScanID),
		slog.String("category", string(ev.Category)),
		slog.String("action", string(ev.Action)),
		slog.Int64("duration_ms", ev.DurationMs),
	)
	return nil
}

func (s *LogSink) Close(context.Context) error { return nil }
