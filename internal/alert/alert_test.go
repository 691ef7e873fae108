package alert_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ulvio/heimdall/internal/alert"
	"github.com/ulvio/heimdall/internal/component"
)

func transition(name string, from, to component.State, detail string) component.Transition {
	return component.Transition{
		EventID: "evt-1",
		Name:    name,
		From:    from,
		To:      to,
		At:      time.Now(),
		Detail:  detail,
	}
}

func TestWebhook_SendsPayload(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := alert.NewWebhook(srv.URL, time.Minute, nil)
	wh.Notify(context.Background(), transition("web1", component.StateUp, component.StateDown, "status 503"))

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 webhook, got %d", len(payloads))
	}
	p := payloads[0]
	if p["component"] != "web1" || p["to_state"] != "down" || p["from_state"] != "up" {
		t.Errorf("unexpected payload %v", p)
	}
	if p["detail"] != "status 503" {
		t.Errorf("expected detail in payload, got %v", p["detail"])
	}
	if p["source"] != "heimdall" {
		t.Errorf("expected source marker, got %v", p["source"])
	}
}

func TestWebhook_CooldownSuppressesRepeats(t *testing.T) {
	var count int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := alert.NewWebhook(srv.URL, time.Hour, nil)
	wh.Notify(context.Background(), transition("web1", component.StateUp, component.StateDown, ""))
	wh.Notify(context.Background(), transition("web1", component.StateDown, component.StateUp, ""))
	// A different component is not affected by web1's cooldown.
	wh.Notify(context.Background(), transition("web2", component.StateUp, component.StateDown, ""))

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("expected 2 deliveries (1 suppressed), got %d", count)
	}
}

func TestWebhook_UnreachableReceiverIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	wh := alert.NewWebhook(url, 0, nil)
	// Must not panic or return anything; delivery failures never
	// propagate.
	wh.Notify(context.Background(), transition("web1", component.StateUp, component.StateDown, ""))
}

// fakeBoard is a canned BoardView.
type fakeBoard struct {
	statuses []component.Status
}

func (f *fakeBoard) Snapshot() []component.Status { return f.statuses }
func (f *fakeBoard) Healthy() bool {
	for _, st := range f.statuses {
		if st.State != component.StateUp {
			return false
		}
	}
	return true
}
func (f *fakeBoard) NumHealthy() int {
	n := 0
	for _, st := range f.statuses {
		if st.State == component.StateUp {
			n++
		}
	}
	return n
}

func TestMailer_ComposeOutage(t *testing.T) {
	board := &fakeBoard{statuses: []component.Status{
		{Name: "web1", State: component.StateDown},
		{Name: "db", State: component.StateUp},
	}}
	m := alert.NewMailer("relay:587", "heimdall@example.com", "ops@example.com", board, nil)

	subject, body := m.Compose([]component.Transition{
		transition("web1", component.StateUp, component.StateDown, "connection refused"),
	})
	if !strings.Contains(subject, "outage") {
		t.Errorf("expected outage subject, got %q", subject)
	}
	if !strings.Contains(body, "web1: up -> down") {
		t.Errorf("body missing transition line:\n%s", body)
	}
	if !strings.Contains(body, "connection refused") {
		t.Errorf("body missing detail:\n%s", body)
	}
	if !strings.Contains(body, "1 of 2 components healthy") {
		t.Errorf("body missing summary:\n%s", body)
	}
}

func TestMailer_ComposeRecovery(t *testing.T) {
	board := &fakeBoard{statuses: []component.Status{
		{Name: "web1", State: component.StateUp},
	}}
	m := alert.NewMailer("relay:587", "heimdall@example.com", "ops@example.com", board, nil)

	subject, _ := m.Compose([]component.Transition{
		transition("web1", component.StateDown, component.StateUp, ""),
	})
	if !strings.Contains(subject, "resumed normal operation") {
		t.Errorf("expected recovery subject, got %q", subject)
	}
}

func TestMailer_BatchesWithinCoalesceWindow(t *testing.T) {
	board := &fakeBoard{statuses: []component.Status{
		{Name: "a", State: component.StateDown},
		{Name: "b", State: component.StateDown},
	}}
	m := alert.NewMailer("relay:587", "from@x", "to@x", board, nil)
	m.SetCoalesceWindow(50 * time.Millisecond)

	var mu sync.Mutex
	var sent [][]byte
	m.SetSendFunc(func(addr, from string, to []string, msg []byte) error {
		mu.Lock()
		sent = append(sent, msg)
		mu.Unlock()
		return nil
	})

	events := make(chan component.Transition, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, events)
		close(done)
	}()

	events <- transition("a", component.StateUp, component.StateDown, "")
	events <- transition("b", component.StateUp, component.StateDown, "")
	close(events)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("expected one batched email, got %d", len(sent))
	}
	body := string(sent[0])
	if !strings.Contains(body, "2 component(s) changed state") {
		t.Errorf("expected batch of 2 in one mail:\n%s", body)
	}
}

func TestMailer_SendFailureIsSwallowed(t *testing.T) {
	board := &fakeBoard{}
	m := alert.NewMailer("relay:587", "from@x", "to@x", board, nil)
	m.SetSendFunc(func(addr, from string, to []string, msg []byte) error {
		return context.DeadlineExceeded
	})
	m.SetCoalesceWindow(time.Millisecond)

	events := make(chan component.Transition, 1)
	events <- transition("a", component.StateUp, component.StateDown, "")
	close(events)
	// Must return normally despite the failing sender.
	m.Run(context.Background(), events)
}
