// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// LogEscalationThreshold is the number of consecutive delivery failures of
// one sink after which failures are logged at Error instead of Warn.
const LogEscalationThreshold = 3

// Sink consumes audit events (store, webhook, log).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
	Close(ctx context.Context) error
}

// Recorder accepts audit events. Record must not block on delivery.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }

// Metrics is a snapshot of emitter counters.
type Metrics struct {
	Enqueued    uint64            `json:"enqueued"`
	Dropped     uint64            `json:"dropped"`
	SinkSuccess map[string]uint64 `json:"sink_success"`
	SinkFailure map[string]uint64 `json:"sink_failure"`
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
	// DeliverTimeout bounds one sink delivery.
	DeliverTimeout time.Duration
	Logger         *slog.Logger
}

// Emitter buffers events and delivers them to sinks from background workers.
type Emitter struct {
	queue           chan Event
	sinks           []Sink
	shutdownTimeout time.Duration
	deliverTimeout  time.Duration
	logger          *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	metricsMu   sync.Mutex
	metrics     Metrics
	consecutive map[string]int64
}

var _ Recorder = (*Emitter)(nil)

// NewEmitter starts background workers delivering to the provided sinks.
func NewEmitter(cfg EmitterConfig, sinks ...Sink) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}
	deliverTimeout := cfg.DeliverTimeout
	if deliverTimeout <= 0 {
		deliverTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Emitter{
		queue:           make(chan Event, queueSize),
		sinks:           sinks,
		shutdownTimeout: shutdownTimeout,
		deliverTimeout:  deliverTimeout,
		logger:          logger,
		metrics: Metrics{
			SinkSuccess: make(map[string]uint64, len(sinks)),
			SinkFailure: make(map[string]uint64, len(sinks)),
		},
		consecutive: make(map[string]int64, len(sinks)),
	}
	for _, s := range sinks {
		e.metrics.SinkSuccess[s.Name()] = 0
		e.metrics.SinkFailure[s.Name()] = 0
	}

	for range workers {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Record enqueues ev without blocking. It fails with CodeInterceptQueueFull
// when the queue is full or the emitter is closed; the event is dropped.
func (e *Emitter) Record(_ context.Context, ev Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.countDrop()
		return aegiserr.New(aegiserr.CodeInterceptQueueFull, "audit emitter closed", aegiserr.FieldScanID(ev.ScanID))
	}

	select {
	case e.queue <- ev:
		e.metricsMu.Lock()
		e.metrics.Enqueued++
		e.metricsMu.Unlock()
		return nil
	default:
		e.countDrop()
		return aegiserr.New(aegiserr.CodeInterceptQueueFull, "audit queue full", aegiserr.FieldScanID(ev.ScanID))
	}
}

func (e *Emitter) countDrop() {
	e.metricsMu.Lock()
	e.metrics.Dropped++
	e.metricsMu.Unlock()
}

// Close stops accepting events and waits up to the shutdown timeout for the
// queue to drain before closing sinks.
func (e *Emitter) Close(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		e.logger.Warn("audit emitter shutdown timed out, events may be lost")
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			e.logger.Warn("audit sink close failed", "sink", s.Name(), "error", err)
		}
	}
}

// Metrics returns a copy of the current counters.
func (e *Emitter) Metrics() Metrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	out := e.metrics
	out.SinkSuccess = maps.Clone(e.metrics.SinkSuccess)
	out.SinkFailure = maps.Clone(e.metrics.SinkFailure)
	return out
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev Event) {
	for _, s := range e.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), e.deliverTimeout)
		err := s.Deliver(ctx, ev)
		cancel()

		e.metricsMu.Lock()
		if err != nil {
			e.metrics.SinkFailure[s.Name()]++
			e.consecutive[s.Name()]++
		} else {
			e.metrics.SinkSuccess[s.Name()]++
			e.consecutive[s.Name()] = 0
		}
		consecutive := e.consecutive[s.Name()]
		e.metricsMu.Unlock()

		if err != nil {
			logDeliveryFailure(e.logger, consecutive, "audit sink delivery failed",
				slog.String("sink", s.Name()),
				slog.String("event_id", ev.ID),
				slog.String("scan_id", ev.ScanID),
				slog.Int64("consecutive_failures", consecutive),
				slog.Any("error", err),
			)
		}
	}
}

// logDeliveryFailure logs at Warn for the first LogEscalationThreshold-1
// consecutive failures and at Error thereafter.
func logDeliveryFailure(log *slog.Logger, consecutive int64, msg string, attrs ...slog.Attr) {
	level := slog.LevelWarn
	if consecutive >= LogEscalationThreshold {
		level = slog.LevelError
	}
	log.LogAttrs(context.Background(), level, msg, attrs...)
}
