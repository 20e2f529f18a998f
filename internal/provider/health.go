// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import "github.com/sigil-dev/aegis/pkg/health"

// StatusFrom builds a provider Status from its health tracker.
func StatusFrom(name string, t *health.Tracker) Status {
	m := t.Metrics()
	msg := "ok"
	if !m.Available {
		msg = "cooling down after failure"
	}
	return Status{Available: m.Available, Provider: name, Message: msg, Health: m}
}
