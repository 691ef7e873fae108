package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ulvio/heimdall/internal/component"
	"github.com/ulvio/heimdall/internal/engine"
)

func TestDispatcher_OneOutcomePerComponent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	defs := []component.Definition{
		{Name: "web1", Kind: component.KindWebServer, URL: srv.URL},
		{Name: "web2", Kind: component.KindWebServer, URL: srv.URL},
		{Name: "web3", Kind: component.KindWebServer, URL: srv.URL},
	}
	d := engine.NewDispatcher(defs, 2*time.Second, nil)
	if d.Size() != 3 {
		t.Fatalf("expected 3 checkers, got %d", d.Size())
	}

	outcomes := d.RunCycle(context.Background())
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, def := range defs {
		out, ok := outcomes[def.Name]
		if !ok {
			t.Errorf("missing outcome for %q", def.Name)
			continue
		}
		if !out.Healthy {
			t.Errorf("%q: expected healthy, got detail %q", def.Name, out.Detail)
		}
	}
}

func TestDispatcher_ExcludesInvalidDefinition(t *testing.T) {
	defs := []component.Definition{
		{Name: "bad", Kind: "smoke_signal"},
		{Name: "ok", Kind: component.KindTCPServer, Host: "127.0.0.1", Port: 1},
	}
	d := engine.NewDispatcher(defs, time.Second, nil)
	if d.Size() != 1 {
		t.Errorf("expected invalid definition to be excluded, size=%d", d.Size())
	}
}

// TestDispatcher_HangingCheckIsIsolated covers the isolation property:
// one component hangs past the timeout while the others answer
// instantly; the cycle stays bounded and the healthy components report
// up for this cycle.
func TestDispatcher_HangingCheckIsIsolated(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer hang.Close()

	timeout := 200 * time.Millisecond
	defs := []component.Definition{
		{Name: "stuck", Kind: component.KindWebServer, URL: hang.URL},
	}
	for i := 0; i < 9; i++ {
		defs = append(defs, component.Definition{
			Name: "fast" + string(rune('0'+i)),
			Kind: component.KindWebServer,
			URL:  fast.URL,
		})
	}

	d := engine.NewDispatcher(defs, timeout, nil)

	start := time.Now()
	outcomes := d.RunCycle(context.Background())
	elapsed := time.Since(start)

	if elapsed > timeout+2*time.Second {
		t.Errorf("cycle not bounded by timeout: took %v", elapsed)
	}
	if len(outcomes) != 10 {
		t.Fatalf("expected 10 outcomes, got %d", len(outcomes))
	}
	if outcomes["stuck"].Healthy {
		t.Error("expected the hanging component to be down")
	}
	for name, out := range outcomes {
		if name == "stuck" {
			continue
		}
		if !out.Healthy {
			t.Errorf("%q: hanging neighbor affected a healthy check: %q", name, out.Detail)
		}
	}
}

func TestDispatcher_SyntheticTimeoutOutcome(t *testing.T) {
	// A TCP check against an unroutable address blocks until deadline;
	// pair it with a sub-second timeout and verify the detail.
	defs := []component.Definition{
		{Name: "tcp1", Kind: component.KindTCPServer, Host: "192.0.2.1", Port: 9000},
	}
	d := engine.NewDispatcher(defs, 100*time.Millisecond, nil)

	outcomes := d.RunCycle(context.Background())
	out, ok := outcomes["tcp1"]
	if !ok {
		t.Fatal("expected an outcome for tcp1")
	}
	if out.Healthy {
		t.Error("expected down")
	}
	if out.Detail == "" {
		t.Error("expected a detail for the timed-out check")
	}
}
