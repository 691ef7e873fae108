package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ulvio/heimdall/internal/check"
	"github.com/ulvio/heimdall/internal/component"
)

// collectGrace is how long past the per-check timeout the dispatcher
// waits for stragglers before synthesizing timeout outcomes. Checkers
// honor their context deadline, so this only covers scheduling delay.
const collectGrace = 500 * time.Millisecond

// Dispatcher runs one check per component concurrently. Checkers are
// built once at construction; a definition whose checker cannot be
// built is excluded from polling and reported, never polled broken.
type Dispatcher struct {
	checkers map[string]check.Checker
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher builds a checker per definition. Definitions that fail
// checker construction are skipped and logged with the component name.
func NewDispatcher(defs []component.Definition, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	checkers := make(map[string]check.Checker, len(defs))
	for _, def := range defs {
		c, err := check.New(def, timeout)
		if err != nil {
			logger.Error("excluding component from polling",
				zap.String("component", def.Name),
				zap.Error(err),
			)
			continue
		}
		checkers[def.Name] = c
	}
	return &Dispatcher{checkers: checkers, timeout: timeout, logger: logger}
}

// Size returns how many components the dispatcher polls.
func (d *Dispatcher) Size() int {
	return len(d.checkers)
}

// RunCycle checks every component concurrently and returns exactly one
// outcome per component, keyed by name. A check that does not complete
// within the per-check timeout gets a synthetic timeout outcome; the
// cycle's wall time is bounded by the timeout plus a small grace, never
// by the sum of check durations.
func (d *Dispatcher) RunCycle(ctx context.Context) map[string]check.Outcome {
	results := make(chan check.Outcome, len(d.checkers))

	for name, c := range d.checkers {
		go d.runOne(ctx, name, c, results)
	}

	outcomes := make(map[string]check.Outcome, len(d.checkers))
	deadline := time.NewTimer(d.timeout + collectGrace)
	defer deadline.Stop()

	for len(outcomes) < len(d.checkers) {
		select {
		case out := <-results:
			outcomes[out.Name] = out
		case <-deadline.C:
			now := time.Now()
			for name := range d.checkers {
				if _, ok := outcomes[name]; !ok {
					outcomes[name] = check.Outcome{
						Name:       name,
						Healthy:    false,
						Latency:    d.timeout,
						ObservedAt: now,
						Detail:     check.DetailTimeout,
					}
				}
			}
			return outcomes
		}
	}
	return outcomes
}

// runOne executes a single check with its own timeout context and
// recovers panics, so one misbehaving check never takes down a cycle.
func (d *Dispatcher) runOne(ctx context.Context, name string, c check.Checker, results chan<- check.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("check panicked",
				zap.String("component", name),
				zap.Any("panic", r),
			)
			results <- check.Outcome{
				Name:       name,
				Healthy:    false,
				ObservedAt: time.Now(),
				Detail:     "check panicked",
			}
		}
	}()

	checkCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out := c.Check(checkCtx)
	out.Name = name
	if out.ObservedAt.IsZero() {
		out.ObservedAt = time.Now()
	}
	results <- out
}
