// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"sync/atomic"

	"github.com/sigil-dev/aegis/internal/provider"
)

// mockProvider replays scripted events on each Chat call.
type mockProvider struct {
	name      string
	available bool
	events    []provider.ChatEvent
	chatErr   error

	// done is closed when the producing goroutine exits.
	done     chan struct{}
	lastReq  provider.ChatRequest
	closed   atomic.Bool
	canceled atomic.Bool
}

func newMock(name string, events ...provider.ChatEvent) *mockProvider {
	return &mockProvider{name: name, available: true, events: events}
}

func (m *mockProvider) Name() string                     { return m.name }
func (m *mockProvider) Available(_ context.Context) bool { return m.available }

func (m *mockProvider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	m.lastReq = req
	m.done = make(chan struct{})
	ch := make(chan provider.ChatEvent)
	go func() {
		defer close(m.done)
		defer close(ch)
		for _, ev := range m.events {
			if !provider.Send(ctx, ch, ev) {
				m.canceled.Store(true)
				return
			}
		}
	}()
	return ch, nil
}

func (m *mockProvider) Status(_ context.Context) (provider.Status, error) {
	return provider.Status{Available: m.available, Provider: m.name, Message: "ok"}, nil
}

func (m *mockProvider) Close() error {
	m.closed.Store(true)
	return nil
}

func delta(s string) provider.ChatEvent {
	return provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: s}
}

var done = provider.ChatEvent{Type: provider.EventTypeDone}
