// Package engine contains the polling core: the dispatcher that fans
// checks out over the component list, the state machine that turns
// outcomes into recorded status, and the scheduler loop that drives
// cycles on a fixed cadence.
package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ulvio/heimdall/internal/check"
	"github.com/ulvio/heimdall/internal/component"
)

// Store is the durable history interface the engine writes through.
type Store interface {
	UpsertStatus(ctx context.Context, st component.Status) error
	AppendTransition(ctx context.Context, tr component.Transition) error
}

// CycleRunner produces one outcome per component for a poll cycle.
// *Dispatcher is the production implementation.
type CycleRunner interface {
	RunCycle(ctx context.Context) map[string]check.Outcome
}

// Ticker abstracts the interval timer so cadence is testable without
// real time.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the interval ticker the scheduler loop runs on.
type TickerFactory func(time.Duration) Ticker

type intervalTicker struct{ t *time.Ticker }

func (it *intervalTicker) C() <-chan time.Time { return it.t.C }
func (it *intervalTicker) Stop()               { it.t.Stop() }

func newIntervalTicker(d time.Duration) Ticker {
	return &intervalTicker{t: time.NewTicker(d)}
}

// Engine runs poll cycles sequentially, forever, until its context is
// cancelled. Cycles never overlap; the interval is measured from the
// start of the previous cycle, so an overlong cycle is followed by an
// immediate catch-up tick rather than a stretched delay.
type Engine struct {
	runner    CycleRunner
	board     *Board
	store     Store
	interval  time.Duration
	delay     time.Duration
	newTicker TickerFactory
	logger    *zap.Logger

	mu          sync.Mutex
	pending     []component.Transition
	subscribers []chan component.Transition

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates an Engine. Pass nil logger to discard logs.
func New(runner CycleRunner, board *Board, store Store, interval time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		runner:    runner,
		board:     board,
		store:     store,
		interval:  interval,
		delay:     5 * time.Second,
		newTicker: newIntervalTicker,
		logger:    logger,
	}
}

// SetStartupDelay overrides the pause before the first cycle.
func (e *Engine) SetStartupDelay(d time.Duration) {
	e.delay = d
}

// SetTickerFactory overrides how the interval timer is built (tests
// inject a fake clock here).
func (e *Engine) SetTickerFactory(fn TickerFactory) {
	e.newTicker = fn
}

// Board returns the engine's status board for read-only consumers.
func (e *Engine) Board() *Board {
	return e.board
}

// Subscribe returns a channel that receives every status transition the
// engine emits. Delivery is fire-and-forget: a subscriber that falls
// behind misses events rather than stalling the engine.
func (e *Engine) Subscribe(buffer int) <-chan component.Transition {
	ch := make(chan component.Transition, buffer)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()
	return ch
}

// Start launches the scheduler loop. It is non-blocking; use Wait to
// block until the loop has drained after cancellation.
func (e *Engine) Start(ctx context.Context) {
	e.running.Store(true)
	e.wg.Add(1)
	go e.run(ctx)
}

// Running reports whether the scheduler loop is active: true between
// Start and the loop's exit after cancellation.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Wait blocks until the scheduler loop has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	defer e.running.Store(false)

	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.delay):
		}
	}

	e.cycle(ctx)

	ticker := e.newTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("polling stopped")
			return
		case <-ticker.C():
			e.cycle(ctx)
		}
	}
}

// cycle runs one full poll: dispatch, fold outcomes into the board,
// persist, publish. The cycle detaches from the shutdown signal so an
// in-flight cycle finishes (bounded by the per-check timeout) instead
// of being killed mid-check; no new cycle starts afterwards.
func (e *Engine) cycle(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	outcomes := e.runner.RunCycle(ctx)

	e.retryPending(ctx)
	blocked := e.pendingNames()

	// Deterministic apply order keeps logs and tests stable; per-component
	// transition order is what actually matters and is preserved.
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	transitions := 0
	for _, name := range names {
		out := outcomes[name]
		st, tr := e.board.Apply(out)

		if err := e.store.UpsertStatus(ctx, st); err != nil {
			e.logger.Error("persisting status",
				zap.String("component", name),
				zap.Error(err),
			)
		}
		if tr == nil {
			continue
		}
		transitions++
		e.logger.Info("component changed state",
			zap.String("component", tr.Name),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.String("detail", tr.Detail),
		)
		e.persistTransition(ctx, *tr, blocked)
		e.publish(*tr)
	}

	e.logger.Debug("poll cycle finished",
		zap.Int("components", len(outcomes)),
		zap.Int("transitions", transitions),
		zap.Duration("took", time.Since(start)),
	)
}

// persistTransition appends a transition, queueing it for retry at the
// next cycle on failure. Transitions for a component with an earlier
// write still pending are queued behind it so per-component order is
// never violated.
func (e *Engine) persistTransition(ctx context.Context, tr component.Transition, blocked map[string]bool) {
	if blocked[tr.Name] {
		e.enqueue(tr)
		return
	}
	if err := e.store.AppendTransition(ctx, tr); err != nil {
		e.logger.Error("persisting transition",
			zap.String("component", tr.Name),
			zap.Error(err),
		)
		e.enqueue(tr)
		blocked[tr.Name] = true
	}
}

func (e *Engine) enqueue(tr component.Transition) {
	e.mu.Lock()
	e.pending = append(e.pending, tr)
	e.mu.Unlock()
}

// retryPending replays queued transition writes in order. A write that
// fails again stays queued, along with every later write for the same
// component.
func (e *Engine) retryPending(ctx context.Context) {
	e.mu.Lock()
	queued := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(queued) == 0 {
		return
	}

	var still []component.Transition
	failed := make(map[string]bool)
	for _, tr := range queued {
		if failed[tr.Name] {
			still = append(still, tr)
			continue
		}
		if err := e.store.AppendTransition(ctx, tr); err != nil {
			e.logger.Error("retrying transition write",
				zap.String("component", tr.Name),
				zap.Error(err),
			)
			failed[tr.Name] = true
			still = append(still, tr)
		}
	}

	e.mu.Lock()
	// New failures from this cycle may already be queued; keep them after
	// the replayed ones.
	e.pending = append(still, e.pending...)
	e.mu.Unlock()
}

func (e *Engine) pendingNames() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make(map[string]bool, len(e.pending))
	for _, tr := range e.pending {
		names[tr.Name] = true
	}
	return names
}

func (e *Engine) publish(tr component.Transition) {
	e.mu.Lock()
	subs := e.subscribers
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- tr:
		default:
			e.logger.Warn("dropping transition event for slow subscriber",
				zap.String("component", tr.Name),
			)
		}
	}
}
