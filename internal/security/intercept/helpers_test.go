// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package intercept_test

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

// fakeClient returns scripted verdicts. verdictFor is consulted for every
// request; a nil verdictFor yields a benign verdict.
type fakeClient struct {
	verdictFor func(req scanner.Request) (scanner.Verdict, error)

	mu       sync.Mutex
	requests []scanner.Request

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeClient) Scan(_ context.Context, req scanner.Request) (scanner.Verdict, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.verdictFor == nil {
		return scanner.Verdict{ScanID: "scan-ok", Category: types.CategoryBenign}, nil
	}
	return f.verdictFor(req)
}

func (f *fakeClient) calls() []scanner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scanner.Request(nil), f.requests...)
}

// blockOn marks any text containing marker as malicious.
func blockOn(marker string) func(scanner.Request) (scanner.Verdict, error) {
	return func(req scanner.Request) (scanner.Verdict, error) {
		if strings.Contains(req.Text, marker) {
			return scanner.Verdict{ScanID: "scan-bad", Category: types.CategoryMalicious, ReasonCode: "injection"}, nil
		}
		return scanner.Verdict{ScanID: "scan-ok", Category: types.CategoryBenign}, nil
	}
}

func failWith(code aegiserr.Code) func(scanner.Request) (scanner.Verdict, error) {
	return func(scanner.Request) (scanner.Verdict, error) {
		return scanner.Verdict{}, aegiserr.New(code, "scan failed")
	}
}

// recorder collects audit events.
type recorder struct {
	err error

	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) all() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// chunkSource yields chunks and counts how many were pulled.
type chunkSource struct {
	chunks []string
	failAt int // index at which to yield errBoom; -1 disables
	err    error

	pulled  atomic.Int32
	stopped atomic.Bool
}

func newSource(chunks ...string) *chunkSource {
	return &chunkSource{chunks: chunks, failAt: -1}
}

func (s *chunkSource) seq() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, c := range s.chunks {
			s.pulled.Add(1)
			if i == s.failAt {
				yield("", s.err)
				return
			}
			if !yield(c, nil) {
				s.stopped.Store(true)
				return
			}
		}
	}
}

func collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for chunk, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
	return out, nil
}
