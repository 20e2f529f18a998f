// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// GatewayStore manages state persisted by the gateway process.
type GatewayStore interface {
	AuditLog() AuditStore
	Feedback() FeedbackStore
	Close() error
}

// AuditStore is the append-only log of scan events. Entries never carry
// scanned text.
type AuditStore interface {
	Append(ctx context.Context, event *ScanEvent) error
	// Query returns matching events newest first.
	Query(ctx context.Context, filter AuditFilter) ([]*ScanEvent, error)
	Count(ctx context.Context) (int64, error)
}

// FeedbackStore records user ratings of agent answers.
type FeedbackStore interface {
	Record(ctx context.Context, fb *Feedback) error
	List(ctx context.Context, opts ListOpts) ([]*Feedback, error)
}
