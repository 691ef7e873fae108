// Package alert delivers status-transition events to downstream
// receivers. Delivery is fire-and-forget: failures are logged and never
// affect the engine.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ulvio/heimdall/internal/component"
)

// Webhook posts a JSON payload for each status transition, with a
// per-component cooldown against flapping.
type Webhook struct {
	url      string
	cooldown time.Duration
	client   *http.Client
	logger   *zap.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewWebhook creates a webhook subscriber. Pass nil logger to discard
// logs.
func NewWebhook(url string, cooldown time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{
		url:       url,
		cooldown:  cooldown,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		lastAlert: make(map[string]time.Time),
	}
}

type webhookPayload struct {
	EventID   string `json:"event_id"`
	Component string `json:"component"`
	From      string `json:"from_state"`
	To        string `json:"to_state"`
	At        string `json:"at"`
	Detail    string `json:"detail,omitempty"`
	Source    string `json:"source"`
}

// Run consumes transition events until the context is cancelled or the
// channel closes.
func (w *Webhook) Run(ctx context.Context, events <-chan component.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-events:
			if !ok {
				return
			}
			w.Notify(ctx, tr)
		}
	}
}

// Notify sends one webhook unless the component alerted within the
// cooldown window.
func (w *Webhook) Notify(ctx context.Context, tr component.Transition) {
	w.mu.Lock()
	last, seen := w.lastAlert[tr.Name]
	if seen && time.Since(last) < w.cooldown {
		w.mu.Unlock()
		w.logger.Info("webhook suppressed by cooldown", zap.String("component", tr.Name))
		return
	}
	w.lastAlert[tr.Name] = time.Now()
	w.mu.Unlock()

	payload := webhookPayload{
		EventID:   tr.EventID,
		Component: tr.Name,
		From:      string(tr.From),
		To:        string(tr.To),
		At:        tr.At.UTC().Format(time.RFC3339),
		Detail:    tr.Detail,
		Source:    "heimdall",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error("marshaling webhook payload", zap.String("component", tr.Name), zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("building webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Error("sending webhook",
			zap.String("component", tr.Name),
			zap.String("url", w.url),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook returned non-2xx status",
			zap.String("component", tr.Name),
			zap.Int("status", resp.StatusCode),
		)
	}
}
