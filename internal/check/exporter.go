package check

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ulvio/heimdall/internal/component"
)

// maxExpositionBytes caps how much of a metrics body is read; a real
// node_exporter page fits comfortably.
const maxExpositionBytes = 4 << 20

type exporterChecker struct {
	def    component.Definition
	client *http.Client
}

func newExporterChecker(def component.Definition, timeout time.Duration) *exporterChecker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if def.IgnoreUnauthorized {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per component
	}
	return &exporterChecker{
		def: def,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *exporterChecker) Check(ctx context.Context) Outcome {
	start := time.Now()
	out := Outcome{Name: c.def.Name, ObservedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.def.URL, nil)
	if err != nil {
		out.Detail = fmt.Sprintf("creating request: %v", err)
		out.Latency = time.Since(start)
		return out
	}

	resp, err := c.client.Do(req)
	if err != nil {
		out.Latency = time.Since(start)
		out.Detail = err.Error()
		return out
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		out.Latency = time.Since(start)
		out.Detail = fmt.Sprintf("status %d", resp.StatusCode)
		return out
	}

	err = validateExposition(io.LimitReader(resp.Body, maxExpositionBytes))
	out.Latency = time.Since(start)
	if err != nil {
		out.Detail = err.Error()
		return out
	}
	out.Healthy = true
	return out
}

// sampleLine matches one sample of the Prometheus text exposition
// format: metric name, optional label set, and a numeric value.
var sampleLine = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*(\{.*\})?\s+[-+]?(?:[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?|(?i:nan|inf))(\s+[0-9]+)?$`)

// validateExposition checks that the body looks like a metrics page: it
// must be non-empty and every non-comment line must parse as a sample,
// with at least one sample present. A 200 with an empty or garbled body
// means the exporter is broken and counts as down.
func validateExposition(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	samples := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !sampleLine.MatchString(line) {
			return fmt.Errorf("malformed metrics line %q", truncate(line, 80))
		}
		samples++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading metrics body: %w", err)
	}
	if samples == 0 {
		return fmt.Errorf("metrics body contains no samples")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
