// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package intercept runs every prompt and response chunk through a scanner
// and applies the fail-safe policy to the result.
package intercept

import (
	"context"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/health"
	"github.com/sigil-dev/aegis/pkg/types"
)

// Option configures a Middleware.
type Option func(*Middleware)

// WithAudit sets the recorder that receives one event per scan.
func WithAudit(r audit.Recorder) Option {
	return func(m *Middleware) {
		if r != nil {
			m.audit = r
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics shares a Metrics instance between middlewares.
func WithMetrics(mt *Metrics) Option {
	return func(m *Middleware) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// Middleware scans text crossing an agent boundary. One Middleware may serve
// many conversations concurrently; per-stream state lives in the iterator
// returned by ScanStream.
type Middleware struct {
	client  scanner.Client
	cfg     scanner.FailSafeConfig
	audit   audit.Recorder
	metrics *Metrics
	logger  *slog.Logger
	agent   string

	// auditFailures counts consecutive audit record failures for log
	// escalation. Shared by copies made with ForAgent.
	auditFailures *atomic.Int64
}

// New creates a Middleware around client. cfg is captured by value and never
// changes for the life of the Middleware.
func New(client scanner.Client, cfg scanner.FailSafeConfig, opts ...Option) *Middleware {
	m := &Middleware{
		client:        client,
		cfg:           cfg,
		audit:         audit.Discard,
		metrics:       &Metrics{},
		logger:        slog.Default(),
		auditFailures: &atomic.Int64{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ForAgent returns a Middleware that tags audit events with the agent name.
// It shares the client, policy, sinks, and counters with m.
func (m *Middleware) ForAgent(name string) *Middleware {
	c := *m
	c.agent = name
	c.logger = m.logger.With("agent", name)
	return &c
}

// FailSafe returns the policy snapshot in use.
func (m *Middleware) FailSafe() scanner.FailSafeConfig { return m.cfg }

// Metrics returns a snapshot of scan counters and the active policy.
func (m *Middleware) Metrics() MetricsSnapshot {
	s := m.metrics.Snapshot()
	s.OnScanFailure = string(m.cfg.OnScanFailure)
	s.OnTimeout = string(m.cfg.OnTimeout)
	for _, c := range m.cfg.BlockCategories() {
		s.BlockCategories = append(s.BlockCategories, string(c))
	}
	if r, ok := m.client.(health.Reporter); ok {
		s.ScannerHealth = r.Health()
	}
	return s
}

// ScanBefore scans a complete prompt. For BLOCK the returned text is the
// security notice, for REDACT the redacted prompt, and for ALLOW the prompt
// unchanged. Scan failures never surface as errors; they become a decision
// under the fail-safe policy.
func (m *Middleware) ScanBefore(ctx context.Context, text, conversationID string) (scanner.Decision, string) {
	r := m.scan(ctx, scanner.Request{
		Text:           text,
		Direction:      types.DirectionIngress,
		ConversationID: conversationID,
	})
	return r.decision, r.text
}

// scanResult is the outcome of one scan call. findings is set only when the
// text was redacted.
type scanResult struct {
	decision scanner.Decision
	text     string
	findings []scanner.Finding
}

// scan runs one request through the scanner, the policy, and redaction, and
// records exactly one audit event.
func (m *Middleware) scan(ctx context.Context, req scanner.Request) scanResult {
	start := time.Now()
	verdict, err := m.client.Scan(ctx, req)
	elapsed := time.Since(start)

	var decision scanner.Decision
	ev := audit.NewEvent()
	ev.ConversationID = req.ConversationID
	ev.Agent = m.agent
	ev.Direction = req.Direction
	ev.SequenceIndex = req.SequenceIndex
	ev.DurationMs = elapsed.Milliseconds()

	callerGone := err != nil && ctx.Err() != nil
	switch {
	case callerGone:
		// The caller abandoned the scan; this says nothing about the service.
		decision = scanner.DecideFailure(err, m.cfg)
		ev.Category = types.CategoryUnknown
		ev.ReasonCode = scanner.ReasonScanCancelled
		m.logger.Debug("scan abandoned by caller",
			"conversation_id", req.ConversationID,
			"direction", req.Direction,
			"sequence_index", req.SequenceIndex,
		)
	case err != nil:
		decision = scanner.DecideFailure(err, m.cfg)
		ev.Category = types.CategoryUnknown
		ev.ReasonCode = failureReason(err)
		ev.Failure = string(aegiserr.CodeOf(err))
		m.logger.Warn("scan failed, applying fail-safe policy",
			"conversation_id", req.ConversationID,
			"direction", req.Direction,
			"sequence_index", req.SequenceIndex,
			"action", decision.Action,
			"error", err,
		)
	default:
		decision = scanner.Decide(verdict, m.cfg)
		ev.ScanID = verdict.ScanID
		ev.Category = verdict.Category
		ev.ReasonCode = verdict.ReasonCode
	}
	ev.Action = decision.Action

	res := scanResult{decision: decision}
	switch decision.Action {
	case types.ActionBlock:
		res.text = decision.Notice
		m.logger.Info("content blocked",
			"scan_id", verdict.ScanID,
			"category", ev.Category,
			"conversation_id", req.ConversationID,
			"direction", req.Direction,
		)
	case types.ActionRedact:
		res.text, res.findings = m.redact(req, verdict)
	default:
		res.text = req.Text
	}

	if callerGone {
		m.metrics.observeCancelled(elapsed)
	} else {
		m.metrics.observe(decision.Action, err != nil, elapsed)
	}
	m.record(ctx, ev)
	return res
}

// redact applies the verdict's findings to the text. A verdict without spans
// falls back to the built-in sensitive-data rules; when those find nothing
// either, the whole text is masked. findings is nil whenever the text was
// masked wholesale.
func (m *Middleware) redact(req scanner.Request, verdict scanner.Verdict) (string, []scanner.Finding) {
	findings := verdict.Findings
	if len(findings) == 0 {
		found, err := scanner.DetectSensitive(req)
		if err != nil || len(found) == 0 {
			m.logger.Warn("redact verdict without locatable findings, masking entire text",
				"scan_id", verdict.ScanID,
				"reason_code", verdict.ReasonCode,
				"error", err,
			)
			return scanner.MaskAll(req.Text), nil
		}
		findings = found
	}

	redacted, err := scanner.Redact(req.Text, findings)
	if err != nil {
		m.logger.Warn("redaction conflict, masking entire text",
			"scan_id", verdict.ScanID,
			"findings", len(findings),
			"error", err,
		)
		return scanner.MaskAll(req.Text), nil
	}
	return redacted, findings
}

func (m *Middleware) record(ctx context.Context, ev audit.Event) {
	if err := m.audit.Record(ctx, ev); err != nil {
		m.metrics.auditDrops.Add(1)
		n := m.auditFailures.Add(1)
		level := slog.LevelWarn
		if n >= audit.LogEscalationThreshold {
			level = slog.LevelError
		}
		m.logger.LogAttrs(ctx, level, "audit record failed",
			slog.String("event_id", ev.ID),
			slog.String("scan_id", ev.ScanID),
			slog.Int64("consecutive_failures", n),
			slog.Any("error", err),
		)
		return
	}
	m.auditFailures.Store(0)
}

func failureReason(err error) string {
	if aegiserr.IsTimeout(err) {
		return scanner.ReasonScanTimeout
	}
	return scanner.ReasonScanUnavailable
}

// streamState tracks one response stream's progress for logging. It is owned
// by a single ScanStream iteration.
type streamState struct {
	conversationID string
	emitted        int
	redacted       int
}

func (s *streamState) approve(res scanResult) {
	s.emitted++
	s.redacted += len(res.findings)
}

// ScanStream returns a sequence that scans each chunk of chunks as egress
// content, in order, one scan at a time. The first blocked chunk is replaced
// by a single notice and ends the stream without pulling further chunks.
// Chunks already emitted are not retracted. Empty chunks are forwarded
// without a scan.
//
// An error from chunks is passed through unchanged and ends the stream.
// When the consumer stops iterating, upstream production stops and no further
// scans are issued. A cancelled ctx ends the stream with a
// CodeInterceptStreamCancelled error; a scan result that arrives after
// cancellation is discarded.
func (m *Middleware) ScanStream(ctx context.Context, chunks iter.Seq2[string, error], conversationID string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		st := &streamState{conversationID: conversationID}
		defer func() {
			m.logger.Debug("response stream finished",
				"conversation_id", st.conversationID,
				"chunks_emitted", st.emitted,
				"redacted_findings", st.redacted,
			)
		}()

		seq := 0
		for chunk, err := range chunks {
			if err != nil {
				yield("", err)
				return
			}
			if cerr := ctx.Err(); cerr != nil {
				yield("", cancelled(cerr, conversationID))
				return
			}
			if chunk == "" {
				if !yield("", nil) {
					return
				}
				continue
			}

			res := m.scan(ctx, scanner.Request{
				Text:           chunk,
				Direction:      types.DirectionEgress,
				ConversationID: conversationID,
				SequenceIndex:  seq,
			})
			seq++

			if cerr := ctx.Err(); cerr != nil {
				yield("", cancelled(cerr, conversationID))
				return
			}

			if res.decision.Action == types.ActionBlock {
				yield(res.text, nil)
				return
			}

			st.approve(res)
			if !yield(res.text, nil) {
				return
			}
		}
	}
}

func cancelled(cause error, conversationID string) error {
	return aegiserr.Wrap(cause, aegiserr.CodeInterceptStreamCancelled, "response stream cancelled",
		aegiserr.FieldConversationID(conversationID))
}
