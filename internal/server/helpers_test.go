// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/security/intercept"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	"github.com/sigil-dev/aegis/internal/server"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/store/sqlite"
	"github.com/sigil-dev/aegis/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeChat emits chunks in order and then returns err.
type fakeChat struct {
	chunks []string
	err    error

	mu    sync.Mutex
	turns []turn
}

type turn struct {
	conversationID string
	text           string
}

func (f *fakeChat) Run(_ context.Context, conversationID, text string, emit func(string) error) error {
	f.mu.Lock()
	f.turns = append(f.turns, turn{conversationID, text})
	f.mu.Unlock()
	for _, c := range f.chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeChat) Collect(ctx context.Context, conversationID, text string) (string, error) {
	var b strings.Builder
	err := f.Run(ctx, conversationID, text, func(c string) error {
		b.WriteString(c)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func (f *fakeChat) recorded() []turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turn(nil), f.turns...)
}

// endlessChat emits until emit fails, then closes stopped.
type endlessChat struct {
	stopped chan struct{}
}

func (e *endlessChat) Run(ctx context.Context, _, _ string, emit func(string) error) error {
	defer close(e.stopped)
	for {
		if err := emit("tick"); err != nil {
			return err
		}
	}
}

func (e *endlessChat) Collect(context.Context, string, string) (string, error) {
	return "", nil
}

type fakeScanner struct {
	decision scanner.Decision
	text     string
	metrics  intercept.MetricsSnapshot
}

func (f *fakeScanner) ScanBefore(_ context.Context, text, _ string) (scanner.Decision, string) {
	if f.decision.Action == types.ActionAllow || f.decision.Action == "" {
		return scanner.Decision{Action: types.ActionAllow}, text
	}
	return f.decision, f.text
}

func (f *fakeScanner) Metrics() intercept.MetricsSnapshot { return f.metrics }

type fakeProviders []provider.Status

func (f fakeProviders) Status(context.Context) []provider.Status { return f }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, svc *server.Services) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Version:    "1.2.3",
		Services:   svc,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return srv
}

func newAuditLog(t *testing.T) store.AuditStore {
	t.Helper()
	gw, err := sqlite.NewGatewayStore(filepath.Join(t.TempDir(), "aegis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw.AuditLog()
}
