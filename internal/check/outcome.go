package check

import "time"

// Outcome is the result of a single check of a single component during
// one poll cycle. It is consumed immediately by the state machine and
// never persisted verbatim.
type Outcome struct {
	Name       string
	Healthy    bool
	Latency    time.Duration
	ObservedAt time.Time
	// Detail carries the failure reason (error text, status code) for
	// diagnostics only; state decisions look at Healthy alone.
	Detail string
}

// DetailTimeout is the detail recorded when a check does not complete
// within the per-check timeout.
const DetailTimeout = "timeout"
