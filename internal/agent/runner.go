// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// Runner delivers user turns to an agent. Turns of one conversation run one
// at a time on that conversation's lane; different conversations run
// concurrently.
type Runner struct {
	agent Agent
	lanes *LanePool
}

// NewRunner creates a Runner for a, typically the hooked orchestrator.
func NewRunner(a Agent, lanes *LanePool) *Runner {
	return &Runner{agent: a, lanes: lanes}
}

// Run sends text to the agent and passes each response chunk to emit, in
// order. An error from emit stops the turn and is returned; the agent's
// remaining work is abandoned.
func (r *Runner) Run(ctx context.Context, conversationID, text string, emit func(chunk string) error) error {
	if conversationID == "" {
		return aegiserr.New(aegiserr.CodeAgentReceiveInvalidInput, "conversation id is required")
	}
	if strings.TrimSpace(text) == "" {
		return aegiserr.New(aegiserr.CodeAgentReceiveInvalidInput, "message text is required",
			aegiserr.FieldConversationID(conversationID))
	}

	return r.lanes.Do(ctx, conversationID, func(ctx context.Context) error {
		out, err := r.agent.Receive(ctx, Message{ConversationID: conversationID, Text: text})
		if err != nil {
			return err
		}
		for chunk, err := range out {
			if err != nil {
				return err
			}
			if err := emit(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// Collect runs a turn and returns the whole response.
func (r *Runner) Collect(ctx context.Context, conversationID, text string) (string, error) {
	var b strings.Builder
	err := r.Run(ctx, conversationID, text, func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// PruneEvery closes lanes idle for longer than maxIdle, checking at the given
// interval until ctx is done.
func (r *Runner) PruneEvery(ctx context.Context, interval, maxIdle time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.lanes.Prune(now.Add(-maxIdle)); n > 0 {
				logger.Debug("pruned idle conversation lanes", "count", n, "open", r.lanes.Len())
			}
		}
	}
}
