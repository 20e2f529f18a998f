// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// laneQueueSize bounds the turns waiting on one conversation.
const laneQueueSize = 64

type workItem struct {
	fn     func(context.Context) error
	ctx    context.Context
	result chan<- error
}

// Lane serialises turns for a single conversation. Work submitted via Submit
// runs one item at a time in FIFO order on a background goroutine, so two
// turns of the same conversation never interleave their scans or output.
type Lane struct {
	conversationID string
	queue          chan workItem
	done           chan struct{}
	closing        chan struct{}
	logger         *slog.Logger

	mu       sync.Mutex
	lastUsed time.Time
	running  bool

	once sync.Once
}

// NewLane creates a Lane for the given conversation and starts its worker.
// Call Close when the lane is no longer needed.
func NewLane(conversationID string) *Lane {
	return newLane(conversationID, slog.Default())
}

func newLane(conversationID string, logger *slog.Logger) *Lane {
	l := &Lane{
		conversationID: conversationID,
		queue:          make(chan workItem, laneQueueSize),
		done:           make(chan struct{}),
		closing:        make(chan struct{}),
		logger:         logger,
		lastUsed:       time.Now(),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.done)
	for {
		select {
		case w := <-l.queue:
			l.executeWork(w)
		case <-l.closing:
			// Drain already-queued turns before exiting.
			for {
				select {
				case w := <-l.queue:
					l.executeWork(w)
				default:
					return
				}
			}
		}
	}
}

// executeWork runs a work item with panic recovery.
func (l *Lane) executeWork(w workItem) {
	if err := w.ctx.Err(); err != nil {
		w.result <- err
		return
	}

	l.setRunning(true)
	defer l.setRunning(false)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("lane worker panic recovered",
					"conversation_id", l.conversationID,
					"panic", r,
					"stack", string(debug.Stack()))
				err = aegiserr.Errorf(aegiserr.CodeAgentLoopFailure, "worker panic: %v", r)
			}
		}()
		err = w.fn(w.ctx)
	}()

	w.result <- err
}

func (l *Lane) setRunning(running bool) {
	l.mu.Lock()
	l.running = running
	l.lastUsed = time.Now()
	l.mu.Unlock()
}

// idle reports whether the lane has had no work since cutoff.
func (l *Lane) idle(cutoff time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.running && len(l.queue) == 0 && l.lastUsed.Before(cutoff)
}

// Submit enqueues fn and blocks until it completes. If ctx is cancelled
// before fn starts, ctx.Err() is returned and fn never runs. Submitting to a
// closed lane fails with CodeAgentLaneClosed.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Checked first so a closed lane never accepts a send.
	select {
	case <-l.closing:
		return l.closedErr("lane is closed")
	default:
	}

	result := make(chan error, 1)
	w := workItem{fn: fn, ctx: ctx, result: result}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closing:
		return l.closedErr("lane is closed")
	case l.queue <- w:
	}

	// Close drains queued work, so an enqueued turn always reports a result
	// unless the worker exited before the send landed.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return l.closedErr("lane closed before turn started")
		}
	}
}

func (l *Lane) closedErr(msg string) error {
	return aegiserr.New(aegiserr.CodeAgentLaneClosed, msg, aegiserr.FieldConversationID(l.conversationID))
}

// Close stops accepting work and waits for queued turns to finish. Close is
// idempotent and safe for concurrent calls.
func (l *Lane) Close() {
	l.once.Do(func() {
		close(l.closing)
		<-l.done
	})
}

// LanePool manages one Lane per conversation. It creates lanes on first use
// and is safe for concurrent use.
type LanePool struct {
	mu     sync.Mutex
	lanes  map[string]*Lane
	logger *slog.Logger
}

// NewLanePool returns an empty LanePool.
func NewLanePool(logger *slog.Logger) *LanePool {
	if logger == nil {
		logger = slog.Default()
	}
	return &LanePool{lanes: make(map[string]*Lane), logger: logger}
}

// Get returns the Lane for the conversation, creating it if needed.
func (p *LanePool) Get(conversationID string) *Lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.lanes[conversationID]; ok {
		return l
	}
	l := newLane(conversationID, p.logger)
	p.lanes[conversationID] = l
	return l
}

// Do runs fn on the conversation's lane.
func (p *LanePool) Do(ctx context.Context, conversationID string, fn func(context.Context) error) error {
	return p.submit(ctx, p.Get(conversationID), fn)
}

// submit runs fn on l. Prune can close l after Get released the pool lock;
// fn never ran in that case, so it is retried once on a fresh lane.
func (p *LanePool) submit(ctx context.Context, l *Lane, fn func(context.Context) error) error {
	err := l.Submit(ctx, fn)
	if aegiserr.HasCode(err, aegiserr.CodeAgentLaneClosed) {
		err = p.Get(l.conversationID).Submit(ctx, fn)
	}
	return err
}

// Len reports the number of open lanes.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Prune closes lanes that have been idle since before cutoff and returns how
// many were removed.
func (p *LanePool) Prune(cutoff time.Time) int {
	p.mu.Lock()
	var stale []*Lane
	for id, l := range p.lanes {
		if l.idle(cutoff) {
			stale = append(stale, l)
			delete(p.lanes, id)
		}
	}
	p.mu.Unlock()

	for _, l := range stale {
		l.Close()
	}
	return len(stale)
}

// Close shuts down all lanes managed by the pool.
func (p *LanePool) Close() {
	p.mu.Lock()
	lanes := p.lanes
	p.lanes = make(map[string]*Lane)
	p.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}
