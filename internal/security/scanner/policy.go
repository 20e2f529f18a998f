// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	"maps"
	"slices"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Reason codes used for decisions that did not come from a verdict.
const (
	ReasonScanTimeout     = "scan_timeout"
	ReasonScanUnavailable = "scan_unavailable"
	ReasonScanCancelled   = "scan_cancelled"
)

// FailSafeConfig selects how scan outcomes map to actions. It is built once
// at startup and shared read-only; the block set is unexported so a shared
// value cannot be mutated.
type FailSafeConfig struct {
	OnScanFailure types.FailMode
	OnTimeout     types.FailMode

	blockCategories map[types.Category]struct{}
}

// NewFailSafeConfig builds a FailSafeConfig. Invalid fail modes fall back to
// fail-closed.
func NewFailSafeConfig(onScanFailure, onTimeout types.FailMode, block ...types.Category) FailSafeConfig {
	if !onScanFailure.Valid() {
		onScanFailure = types.FailClosed
	}
	if !onTimeout.Valid() {
		onTimeout = types.FailClosed
	}
	set := make(map[types.Category]struct{}, len(block))
	for _, c := range block {
		set[c] = struct{}{}
	}
	return FailSafeConfig{OnScanFailure: onScanFailure, OnTimeout: onTimeout, blockCategories: set}
}

// DefaultFailSafeConfig fails closed on every error and blocks malicious
// content.
func DefaultFailSafeConfig() FailSafeConfig {
	return NewFailSafeConfig(types.FailClosed, types.FailClosed, types.CategoryMalicious)
}

// Blocks reports whether verdicts of category c are blocked.
func (c FailSafeConfig) Blocks(cat types.Category) bool {
	_, ok := c.blockCategories[cat]
	return ok
}

// BlockCategories returns the blocked categories in sorted order.
func (c FailSafeConfig) BlockCategories() []types.Category {
	return slices.Sorted(maps.Keys(c.blockCategories))
}

// Decision is the action chosen for one scanned text. Notice is set for
// blocks and for fail-open warnings.
type Decision struct {
	Action types.Action `json:"action"`
	Notice string       `json:"notice,omitempty"`
}

// Decide maps a verdict onto an action. It performs no I/O.
func Decide(v Verdict, cfg FailSafeConfig) Decision {
	switch {
	case cfg.Blocks(v.Category):
		return Decision{
			Action: types.ActionBlock,
			Notice: FormatNotice(NoticeInput{Reason: v.ReasonCode, Category: string(v.Category), ScanID: v.ScanID}),
		}
	case v.Category == types.CategorySensitiveData:
		return Decision{Action: types.ActionRedact}
	default:
		return Decision{Action: types.ActionAllow}
	}
}

// DecideFailure maps a scan error onto an action. Timeouts follow
// cfg.OnTimeout; every other error is treated as the service being
// unavailable and follows cfg.OnScanFailure.
func DecideFailure(err error, cfg FailSafeConfig) Decision {
	mode, reason := cfg.OnScanFailure, ReasonScanUnavailable
	if aegiserr.IsTimeout(err) {
		mode, reason = cfg.OnTimeout, ReasonScanTimeout
	}

	in := NoticeInput{Reason: reason, Category: string(types.CategoryUnknown)}
	if mode == types.FailOpen {
		return Decision{Action: types.ActionAllow, Notice: FormatWarning(in)}
	}
	return Decision{Action: types.ActionBlock, Notice: FormatNotice(in)}
}
