// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health tracks whether an upstream dependency (a model provider or
// the remote scan service) is currently answering.
package health

import (
	"sync"
	"time"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// DefaultCooldown is how long a failed upstream stays unhealthy before it
// becomes eligible for retry.
const DefaultCooldown = 30 * time.Second

// Metrics is a point-in-time snapshot of a Tracker, safe to serialize.
type Metrics struct {
	Available     bool       `json:"available" yaml:"available"`
	FailureCount  int64      `json:"failure_count" yaml:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty" yaml:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty" yaml:"cooldown_until,omitempty"`
}

// Reporter is implemented by components that expose a Tracker snapshot.
type Reporter interface {
	Health() *Metrics
}

// Tracker is a cooldown breaker. An upstream is healthy until RecordFailure
// and healthy again after RecordSuccess or once the cooldown has elapsed.
// Safe for concurrent use.
type Tracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	now          func() time.Time
}

// NewTracker creates a healthy Tracker. cooldown must be positive.
func NewTracker(cooldown time.Duration) (*Tracker, error) {
	if cooldown <= 0 {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"health cooldown must be positive, got %s", cooldown)
	}
	return &Tracker{healthy: true, cooldown: cooldown, now: time.Now}, nil
}

// NewDefaultTracker returns a Tracker with DefaultCooldown.
func NewDefaultTracker() *Tracker {
	return &Tracker{healthy: true, cooldown: DefaultCooldown, now: time.Now}
}

// Caller holds at least t.mu.RLock.
func (t *Tracker) healthyLocked() bool {
	return t.healthy || t.now().Sub(t.failedAt) >= t.cooldown
}

// IsHealthy reports whether the upstream should be tried.
func (t *Tracker) IsHealthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthyLocked()
}

func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	t.healthy = true
	t.mu.Unlock()
}

// RecordFailure starts a new cooldown and bumps the cumulative count.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	t.healthy = false
	t.failedAt = t.now()
	t.failureCount++
	t.mu.Unlock()
}

// SetNowFunc replaces the clock. Tests only.
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.now = fn
	t.mu.Unlock()
}

// Metrics returns the current snapshot.
func (t *Tracker) Metrics() *Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := &Metrics{FailureCount: t.failureCount, Available: t.healthyLocked()}
	if t.failureCount > 0 {
		at := t.failedAt
		m.LastFailureAt = &at
	}
	if !t.healthy {
		until := t.failedAt.Add(t.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
