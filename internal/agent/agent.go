// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package agent defines the conversational agents and the lifecycle hook
// that puts every one of them behind the security middleware.
package agent

import (
	"context"
	"iter"
)

// Names of the built-in agents.
const (
	OrchestratorName = "orchestrator"
	ResearcherName   = "researcher"
	EvaluationName   = "evaluation"
	DashboardName    = "dashboard"
)

// Stream is an agent's lazy response. It is finite and not restartable:
// ranging over it drives the agent, and stopping early abandons the work.
type Stream = iter.Seq2[string, error]

// Message is one user turn delivered to an agent.
type Message struct {
	ConversationID string
	Text           string
}

// Agent receives a prompt and produces a response stream.
type Agent interface {
	Name() string
	// Receive accepts msg and returns the response. Work may be deferred
	// until the stream is ranged over.
	Receive(ctx context.Context, msg Message) (Stream, error)
}

// Single returns a stream of exactly one chunk.
func Single(text string) Stream {
	return func(yield func(string, error) bool) {
		yield(text, nil)
	}
}

// forward yields every item of s and reports whether the consumer wants
// more. It stops after the first error.
func forward(s Stream, yield func(string, error) bool) bool {
	for chunk, err := range s {
		if !yield(chunk, err) || err != nil {
			return false
		}
	}
	return true
}
