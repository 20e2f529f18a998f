// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"

	"github.com/sigil-dev/aegis/internal/security/intercept"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Hook decorates an Agent with ingress and egress scanning. A Hook is itself
// an Agent, so hooked agents nest: every hop scans its own input and output.
type Hook struct {
	inner Agent
	mw    *intercept.Middleware
}

var _ Agent = (*Hook)(nil)

// Wrap returns a Hook around a. Audit events from the hook carry a's name.
func Wrap(a Agent, mw *intercept.Middleware) *Hook {
	return &Hook{inner: a, mw: mw.ForAgent(a.Name())}
}

func (h *Hook) Name() string { return h.inner.Name() }

// Unwrap returns the decorated agent.
func (h *Hook) Unwrap() Agent { return h.inner }

// Receive scans msg.Text before the wrapped agent sees it. A blocked prompt
// yields the notice as the only chunk and the wrapped agent is never called.
// Otherwise the agent receives the approved text, possibly redacted, and
// every chunk it produces is scanned before leaving the hook. Errors from
// the wrapped agent are returned unchanged.
func (h *Hook) Receive(ctx context.Context, msg Message) (Stream, error) {
	decision, text := h.mw.ScanBefore(ctx, msg.Text, msg.ConversationID)
	if decision.Action == types.ActionBlock {
		return Single(text), nil
	}

	msg.Text = text
	out, err := h.inner.Receive(ctx, msg)
	if err != nil {
		return nil, err
	}
	return h.mw.ScanStream(ctx, out, msg.ConversationID), nil
}
