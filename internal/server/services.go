// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/security/intercept"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	"github.com/sigil-dev/aegis/internal/store"
)

// ChatService runs one user turn. *agent.Runner implements it.
type ChatService interface {
	Run(ctx context.Context, conversationID, text string, emit func(chunk string) error) error
	Collect(ctx context.Context, conversationID, text string) (string, error)
}

// ScanService scans prompts outside a conversation turn and reports
// counters. *intercept.Middleware implements it.
type ScanService interface {
	ScanBefore(ctx context.Context, text, conversationID string) (scanner.Decision, string)
	Metrics() intercept.MetricsSnapshot
}

// ProviderService reports model provider health. *provider.Registry
// implements it.
type ProviderService interface {
	Status(ctx context.Context) []provider.Status
}

// Services are the gateway components the HTTP API drives. Any may be nil.
type Services struct {
	Chat      ChatService
	Scanner   ScanService
	Providers ProviderService
	Audit     store.AuditStore
}
