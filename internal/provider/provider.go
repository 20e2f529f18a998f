// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package provider adapts LLM vendor SDKs to a single streaming interface
// used by the agents.
package provider

import (
	"context"

	"github.com/sigil-dev/aegis/pkg/health"
)

// Provider is the core interface for LLM providers.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	// Chat starts a completion. The returned channel is closed after a done
	// or error event, or when ctx is cancelled.
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (Status, error)
	Close() error
}

// ChatRequest represents a request to the LLM.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Options      ChatOptions
}

// ChatOptions contains model configuration.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
	// WebSearch asks the provider to ground the answer in live search
	// results. Providers without a search tool ignore it.
	WebSearch bool
}

// Message represents a conversation message.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// UserMessage is shorthand for a single user turn.
func UserMessage(text string) Message {
	return Message{Role: MessageRoleUser, Content: text}
}

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	Error string
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Status indicates provider health.
type Status struct {
	Available bool            `json:"available"`
	Provider  string          `json:"provider"`
	Message   string          `json:"message"`
	Health    *health.Metrics `json:"health,omitempty"`
}
