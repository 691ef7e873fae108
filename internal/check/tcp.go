package check

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ulvio/heimdall/internal/component"
)

type tcpChecker struct {
	def     component.Definition
	timeout time.Duration
}

func newTCPChecker(def component.Definition, timeout time.Duration) *tcpChecker {
	return &tcpChecker{def: def, timeout: timeout}
}

func (c *tcpChecker) Check(ctx context.Context) Outcome {
	start := time.Now()
	out := Outcome{Name: c.def.Name, ObservedAt: start}

	addr := net.JoinHostPort(c.def.Host, strconv.Itoa(c.def.Port))
	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	out.Latency = time.Since(start)
	if err != nil {
		out.Detail = fmt.Sprintf("dial tcp %s: %v", addr, err)
		return out
	}
	// Connection establishment is the whole check; no protocol exchange.
	conn.Close()
	out.Healthy = true
	return out
}
