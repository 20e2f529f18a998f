// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"time"
)

// SetNow replaces the evaluation agent's clock.
func SetNow(e *Evaluation, now func() time.Time) { e.now = now }

// SubmitOn runs fn through the pool's retry path on a lane obtained earlier.
func SubmitOn(ctx context.Context, p *LanePool, l *Lane, fn func(context.Context) error) error {
	return p.submit(ctx, l, fn)
}
