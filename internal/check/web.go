package check

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/ulvio/heimdall/internal/component"
)

type webChecker struct {
	def    component.Definition
	client *http.Client
}

func newWebChecker(def component.Definition, timeout time.Duration) *webChecker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if def.IgnoreUnauthorized {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per component
	}
	return &webChecker{
		def: def,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *webChecker) Check(ctx context.Context) Outcome {
	start := time.Now()
	out := Outcome{Name: c.def.Name, ObservedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.def.URL, nil)
	if err != nil {
		out.Detail = fmt.Sprintf("creating request: %v", err)
		out.Latency = time.Since(start)
		return out
	}

	resp, err := c.client.Do(req)
	out.Latency = time.Since(start)
	if err != nil {
		out.Detail = err.Error()
		return out
	}
	resp.Body.Close()

	if acceptableStatus(resp.StatusCode, c.def.IgnoreUnauthorized) {
		out.Healthy = true
		return out
	}
	out.Detail = fmt.Sprintf("status %d", resp.StatusCode)
	return out
}

// acceptableStatus reports whether code counts as healthy. Success and
// redirect codes always do; 401/403 only when the component opts in,
// for endpoints that sit behind auth and still prove liveness.
func acceptableStatus(code int, ignoreUnauthorized bool) bool {
	if code >= 200 && code < 400 {
		return true
	}
	if ignoreUnauthorized && (code == http.StatusUnauthorized || code == http.StatusForbidden) {
		return true
	}
	return false
}
