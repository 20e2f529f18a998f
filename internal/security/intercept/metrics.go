// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package intercept

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/aegis/pkg/health"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Metrics counts scan outcomes across all conversations. The zero value is
// ready to use and safe for concurrent updates.
type Metrics struct {
	scans      atomic.Int64
	allowed    atomic.Int64
	blocked    atomic.Int64
	redacted   atomic.Int64
	errors     atomic.Int64
	failOpen   atomic.Int64
	cancelled  atomic.Int64
	auditDrops atomic.Int64
	scanNanos  atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalScans       int64    `json:"total_scans" yaml:"total_scans"`
	Allowed          int64    `json:"allowed" yaml:"allowed"`
	Blocked          int64    `json:"blocked" yaml:"blocked"`
	Redacted         int64    `json:"redacted" yaml:"redacted"`
	Errors           int64    `json:"errors" yaml:"errors"`
	FailOpenAllowed  int64    `json:"fail_open_allowed" yaml:"fail_open_allowed"`
	// Cancelled counts scans abandoned by the caller. They are not errors
	// and carry no action.
	Cancelled        int64    `json:"cancelled" yaml:"cancelled"`
	AuditDropped     int64    `json:"audit_dropped" yaml:"audit_dropped"`
	BlockRatePercent float64  `json:"block_rate_percent" yaml:"block_rate_percent"`
	AverageScanMs    float64  `json:"average_scan_ms" yaml:"average_scan_ms"`
	OnScanFailure    string   `json:"on_scan_failure" yaml:"on_scan_failure"`
	OnTimeout        string   `json:"on_timeout" yaml:"on_timeout"`
	BlockCategories  []string `json:"block_categories" yaml:"block_categories"`
	// ScannerHealth is set when the scan client tracks the health of a
	// remote service.
	ScannerHealth *health.Metrics `json:"scanner_health,omitempty" yaml:"scanner_health,omitempty"`
}

func (m *Metrics) observe(action types.Action, failed bool, d time.Duration) {
	m.scans.Add(1)
	m.scanNanos.Add(int64(d))
	switch action {
	case types.ActionBlock:
		m.blocked.Add(1)
	case types.ActionRedact:
		m.redacted.Add(1)
	default:
		m.allowed.Add(1)
		if failed {
			m.failOpen.Add(1)
		}
	}
	if failed {
		m.errors.Add(1)
	}
}

func (m *Metrics) observeCancelled(d time.Duration) {
	m.scans.Add(1)
	m.scanNanos.Add(int64(d))
	m.cancelled.Add(1)
}

// Snapshot returns the current counters with derived rates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		TotalScans:      m.scans.Load(),
		Allowed:         m.allowed.Load(),
		Blocked:         m.blocked.Load(),
		Redacted:        m.redacted.Load(),
		Errors:          m.errors.Load(),
		FailOpenAllowed: m.failOpen.Load(),
		Cancelled:       m.cancelled.Load(),
		AuditDropped:    m.auditDrops.Load(),
	}
	if s.TotalScans > 0 {
		s.BlockRatePercent = round2(float64(s.Blocked) / float64(s.TotalScans) * 100)
		avg := time.Duration(m.scanNanos.Load() / s.TotalScans)
		s.AverageScanMs = round2(float64(avg) / float64(time.Millisecond))
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
