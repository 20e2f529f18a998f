// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit

import (
	"context"

	"github.com/sigil-dev/aegis/internal/store"
)

// StoreSink appends events to the persistent audit log.
type StoreSink struct {
	log store.AuditStore
}

// NewStoreSink creates a sink writing to log.
func NewStoreSink(log store.AuditStore) *StoreSink {
	return &StoreSink{log: log}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, ev Event) error {
	return s.log.Append(ctx, ev.ToStore())
}

// Close is a no-op; the store is owned and closed by the gateway.
func (s *StoreSink) Close(context.Context) error { return nil }

// Recent returns up to limit events newest first.
func Recent(ctx context.Context, log store.AuditStore, filter store.AuditFilter) ([]Event, error) {
	rows, err := log.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromStore(r))
	}
	return out, nil
}
