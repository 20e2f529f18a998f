// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit

import "time"

// SetBackoffs overrides the retry delays so tests run quickly.
func (s *WebhookSink) SetBackoffs(d ...time.Duration) {
	s.backoffs = d
}
