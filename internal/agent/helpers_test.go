// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sigil-dev/aegis/internal/agent"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/security/intercept"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	"github.com/sigil-dev/aegis/internal/store/sqlite"
	"github.com/sigil-dev/aegis/pkg/types"
	"github.com/stretchr/testify/require"
)

// scriptedProvider answers each Chat with the chunks returned by reply.
type scriptedProvider struct {
	reply func(req provider.ChatRequest) []string

	mu       sync.Mutex
	requests []provider.ChatRequest
}

func (p *scriptedProvider) Name() string                     { return "scripted" }
func (p *scriptedProvider) Available(_ context.Context) bool { return true }
func (p *scriptedProvider) Close() error                     { return nil }

func (p *scriptedProvider) Status(_ context.Context) (provider.Status, error) {
	return provider.Status{Available: true, Provider: "scripted"}, nil
}

func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	chunks := p.reply(req)
	ch := make(chan provider.ChatEvent)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if !provider.Send(ctx, ch, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: c}) {
				return
			}
		}
		provider.Send(ctx, ch, provider.ChatEvent{Type: provider.EventTypeDone})
	}()
	return ch, nil
}

func (p *scriptedProvider) calls() []provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.ChatRequest(nil), p.requests...)
}

// router returns a provider that answers the routing model with route and
// every other model with chunks.
func router(route agent.Route, chunks ...string) *scriptedProvider {
	return &scriptedProvider{reply: func(req provider.ChatRequest) []string {
		if req.Model == "router" {
			return []string{string(route)}
		}
		return chunks
	}}
}

// countingScanner blocks text containing "BAD" and counts scans per direction.
type countingScanner struct {
	mu      sync.Mutex
	ingress []string
	egress  []string
}

func (s *countingScanner) Scan(_ context.Context, req scanner.Request) (scanner.Verdict, error) {
	s.mu.Lock()
	if req.Direction == types.DirectionIngress {
		s.ingress = append(s.ingress, req.Text)
	} else {
		s.egress = append(s.egress, req.Text)
	}
	s.mu.Unlock()

	if strings.Contains(req.Text, "BAD") {
		return scanner.Verdict{ScanID: "scan-block", Category: types.CategoryMalicious, ReasonCode: "test_rule"}, nil
	}
	return scanner.Verdict{ScanID: "scan-ok", Category: types.CategoryBenign}, nil
}

func (s *countingScanner) counts() (ingress, egress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ingress), len(s.egress)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newMiddleware(c scanner.Client, opts ...intercept.Option) *intercept.Middleware {
	opts = append([]intercept.Option{intercept.WithLogger(quietLogger())}, opts...)
	return intercept.New(c, scanner.DefaultFailSafeConfig(), opts...)
}

// echoAgent records what it receives and replies with fixed chunks.
type echoAgent struct {
	name       string
	chunks     []string
	receiveErr error
	streamErr  error

	received []agent.Message
	pulled   int
}

func (a *echoAgent) Name() string { return a.name }

func (a *echoAgent) Receive(_ context.Context, msg agent.Message) (agent.Stream, error) {
	a.received = append(a.received, msg)
	if a.receiveErr != nil {
		return nil, a.receiveErr
	}
	return func(yield func(string, error) bool) {
		for _, c := range a.chunks {
			a.pulled++
			if !yield(c, nil) {
				return
			}
		}
		if a.streamErr != nil {
			yield("", a.streamErr)
		}
	}, nil
}

func drain(t *testing.T, s agent.Stream) ([]string, error) {
	t.Helper()
	var out []string
	for chunk, err := range s {
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

func newGateway(t *testing.T) *sqlite.GatewayStore {
	t.Helper()
	gw, err := sqlite.NewGatewayStore(filepath.Join(t.TempDir(), "aegis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}
