// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/sigil-dev/aegis/internal/store"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// DefaultHistorySize is how many events the dashboard shows.
const DefaultHistorySize = 50

const noEvents = "No security events to display."

// Dashboard renders the most recent security scan events.
type Dashboard struct {
	log   store.AuditStore
	limit int
}

var _ Agent = (*Dashboard)(nil)

// NewDashboard creates a Dashboard over log. A non-positive limit uses
// DefaultHistorySize.
func NewDashboard(log store.AuditStore, limit int) (*Dashboard, error) {
	if log == nil {
		return nil, aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "dashboard: audit store is required")
	}
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &Dashboard{log: log, limit: limit}, nil
}

func (d *Dashboard) Name() string { return DashboardName }

// Receive renders the report when the stream is ranged over. Events are
// listed newest first.
func (d *Dashboard) Receive(ctx context.Context, _ Message) (Stream, error) {
	return func(yield func(string, error) bool) {
		events, err := audit.Recent(ctx, d.log, store.AuditFilter{Limit: d.limit})
		if err != nil {
			yield("", err)
			return
		}
		yield(renderEvents(events), nil)
	}, nil
}

func renderEvents(events []audit.Event) string {
	if len(events) == 0 {
		return noEvents
	}

	var b strings.Builder
	b.WriteString("### Security Events\n\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "- **Timestamp:** %s\n", ev.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "- **Agent:** %s\n", orNA(ev.Agent))
		fmt.Fprintf(&b, "- **Direction:** %s\n", ev.Direction)
		fmt.Fprintf(&b, "- **Action:** %s\n", ev.Action)
		fmt.Fprintf(&b, "- **Category:** %s\n", ev.Category)
		fmt.Fprintf(&b, "- **Scan ID:** %s\n", orNA(ev.ScanID))
		if ev.Failure != "" {
			fmt.Fprintf(&b, "- **Failure:** %s\n", ev.Failure)
		}
		b.WriteString("---\n")
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
