// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	"context"
	"time"
)

// SetSleep replaces the backoff sleep so retry tests run instantly and can
// observe the requested delays.
func (c *HTTPClient) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// SetMaxContentLength lowers the local scanner size limit for tests.
func (s *LocalScanner) SetMaxContentLength(n int) {
	s.maxContentLength = n
}
