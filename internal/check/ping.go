package check

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/ulvio/heimdall/internal/component"
)

// CommandExecutor abstracts os/exec so ping checks are testable without
// real ICMP traffic.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type hostChecker struct {
	def      component.Definition
	timeout  time.Duration
	executor CommandExecutor
}

func newHostChecker(def component.Definition, timeout time.Duration) *hostChecker {
	return &hostChecker{def: def, timeout: timeout, executor: &osExecutor{}}
}

// NewHostCheckerWithExecutor creates a host checker with a custom
// executor (for testing).
func NewHostCheckerWithExecutor(def component.Definition, timeout time.Duration, exec CommandExecutor) Checker {
	return &hostChecker{def: def, timeout: timeout, executor: exec}
}

var rttRegex = regexp.MustCompile(`time=(\d+\.?\d*)\s*ms`)

func (c *hostChecker) Check(ctx context.Context) Outcome {
	start := time.Now()
	out := Outcome{Name: c.def.Name, ObservedAt: start}

	timeoutSec := int(math.Ceil(c.timeout.Seconds()))
	if timeoutSec < 1 {
		timeoutSec = 1
	}

	var args []string
	if runtime.GOOS == "darwin" {
		args = []string{"-c", "1", "-t", strconv.Itoa(timeoutSec), c.def.Host}
	} else {
		args = []string{"-c", "1", "-W", strconv.Itoa(timeoutSec), c.def.Host}
	}

	stdout, _, err := c.executor.Run(ctx, "ping", args...)
	out.Latency = time.Since(start)

	if err != nil {
		out.Detail = fmt.Sprintf("ping %s: %v", c.def.Host, err)
		return out
	}

	// Prefer the reported round-trip time over our own wall clock.
	if matches := rttRegex.FindSubmatch(stdout); matches != nil {
		if ms, perr := strconv.ParseFloat(string(matches[1]), 64); perr == nil {
			out.Latency = time.Duration(ms * float64(time.Millisecond))
		}
	}
	out.Healthy = true
	return out
}
