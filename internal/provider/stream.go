// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"iter"
	"strings"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// Send delivers ev unless ctx is done first. Provider goroutines use it so an
// abandoned stream never blocks them.
func Send(ctx context.Context, ch chan<- ChatEvent, ev ChatEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// TextStream starts a chat and returns its text deltas as a lazy sequence.
// Nothing is requested until the sequence is ranged over. Stopping iteration
// cancels the request. An error event ends the sequence with a
// CodeProviderUpstreamFailure error.
func TextStream(ctx context.Context, p Provider, req ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events, err := p.Chat(ctx, req)
		if err != nil {
			yield("", err)
			return
		}

		for ev := range events {
			switch ev.Type {
			case EventTypeTextDelta:
				if !yield(ev.Text, nil) {
					return
				}
			case EventTypeError:
				yield("", aegiserr.New(aegiserr.CodeProviderUpstreamFailure, ev.Error,
					aegiserr.FieldProvider(p.Name())))
				return
			case EventTypeDone:
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield("", aegiserr.Wrap(err, aegiserr.CodeProviderUpstreamFailure, "chat cancelled",
				aegiserr.FieldProvider(p.Name())))
		}
	}
}

// Complete runs a chat to completion and returns the concatenated text.
func Complete(ctx context.Context, p Provider, req ChatRequest) (string, error) {
	var b strings.Builder
	for chunk, err := range TextStream(ctx, p, req) {
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}
