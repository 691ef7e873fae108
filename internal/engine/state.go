package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ulvio/heimdall/internal/check"
	"github.com/ulvio/heimdall/internal/component"
)

// Board holds the current status of every component. It has exactly one
// writer (the engine's cycle loop); concurrent readers always observe a
// consistent status tuple, never a torn mix of fields.
type Board struct {
	mu     sync.RWMutex
	status map[string]component.Status
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{status: make(map[string]component.Status)}
}

// Seed loads previously persisted statuses for the configured
// components, so a restart continues from the last known state instead
// of re-announcing every component. Persisted rows for components no
// longer configured are skipped; a decommissioned component must not
// keep counting against the board's health summary.
func (b *Board) Seed(defs []component.Definition, statuses []component.Status) {
	configured := make(map[string]bool, len(defs))
	for _, d := range defs {
		configured[d.Name] = true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range statuses {
		if configured[s.Name] {
			b.status[s.Name] = s
		}
	}
}

// Apply folds one check outcome into the board. It returns the updated
// status and, when the state changed, the transition to persist. A
// component never seen before starts at unknown, so its first outcome
// always yields a transition. The rule is memoryless: one outcome is
// enough to flip state (debounce is a policy layer this engine does not
// impose).
func (b *Board) Apply(out check.Outcome) (component.Status, *component.Transition) {
	target := component.StateDown
	if out.Healthy {
		target = component.StateUp
	}
	now := out.ObservedAt
	if now.IsZero() {
		now = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.status[out.Name]
	if !ok {
		st = component.Status{
			Name:  out.Name,
			State: component.StateUnknown,
			Since: now,
		}
	}

	st.LastChecked = now
	st.LastLatency = out.Latency
	st.Detail = out.Detail

	if target == st.State {
		b.status[out.Name] = st
		return st, nil
	}

	tr := &component.Transition{
		EventID: uuid.NewString(),
		Name:    out.Name,
		From:    st.State,
		To:      target,
		At:      now,
		Detail:  out.Detail,
	}
	st.State = target
	st.Since = now
	b.status[out.Name] = st
	return st, tr
}

// Get returns the status of one component.
func (b *Board) Get(name string) (component.Status, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.status[name]
	return st, ok
}

// Snapshot returns a copy of every component's current status, sorted
// by name.
func (b *Board) Snapshot() []component.Status {
	b.mu.RLock()
	statuses := make([]component.Status, 0, len(b.status))
	for _, st := range b.status {
		statuses = append(statuses, st)
	}
	b.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// Healthy reports whether every tracked component is up.
func (b *Board) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, st := range b.status {
		if st.State != component.StateUp {
			return false
		}
	}
	return true
}

// NumHealthy returns how many tracked components are up.
func (b *Board) NumHealthy() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, st := range b.status {
		if st.State == component.StateUp {
			n++
		}
	}
	return n
}
