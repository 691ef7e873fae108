package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ulvio/heimdall/internal/component"
)

// BoardView is the read-only view of current status an email needs for
// its summary line.
type BoardView interface {
	Snapshot() []component.Status
	Healthy() bool
	NumHealthy() int
}

// SendFunc delivers a raw mail message; the default uses net/smtp.
type SendFunc func(addr, from string, to []string, msg []byte) error

// Mailer batches the transitions of a poll cycle into one state-change
// email. Events arriving within the coalesce window go into the same
// message, so a cycle with many flips produces a single mail.
type Mailer struct {
	addr      string
	from      string
	recipient string
	coalesce  time.Duration
	board     BoardView
	send      SendFunc
	logger    *zap.Logger
}

// NewMailer creates an email subscriber for the given SMTP relay
// ("host:port"). Pass nil logger to discard logs.
func NewMailer(addr, from, recipient string, board BoardView, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		addr:      addr,
		from:      from,
		recipient: recipient,
		coalesce:  5 * time.Second,
		board:     board,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
		logger: logger,
	}
}

// SetCoalesceWindow overrides how long the mailer gathers transitions
// before sending.
func (m *Mailer) SetCoalesceWindow(d time.Duration) {
	m.coalesce = d
}

// SetSendFunc overrides mail delivery (for testing).
func (m *Mailer) SetSendFunc(fn SendFunc) {
	m.send = fn
}

// Run consumes transition events until the context is cancelled or the
// channel closes, flushing one email per quiet period.
func (m *Mailer) Run(ctx context.Context, events <-chan component.Transition) {
	var batch []component.Transition
	var flush <-chan time.Time

	deliver := func() {
		if len(batch) > 0 {
			m.deliver(batch)
			batch = nil
		}
		flush = nil
	}

	for {
		select {
		case <-ctx.Done():
			deliver()
			return
		case tr, ok := <-events:
			if !ok {
				deliver()
				return
			}
			batch = append(batch, tr)
			if flush == nil {
				flush = time.After(m.coalesce)
			}
		case <-flush:
			deliver()
		}
	}
}

func (m *Mailer) deliver(batch []component.Transition) {
	subject, body := m.Compose(batch)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.from, m.recipient, subject, body)

	if err := m.send(m.addr, m.from, []string{m.recipient}, []byte(msg)); err != nil {
		m.logger.Error("sending state-change email",
			zap.String("relay", m.addr),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("state-change email sent",
		zap.String("recipient", m.recipient),
		zap.Int("transitions", len(batch)),
	)
}

// Compose builds the subject and body for a batch of transitions. The
// subject reflects the whole board: recovery when everything is up
// again, outage otherwise.
func (m *Mailer) Compose(batch []component.Transition) (subject, body string) {
	if m.board.Healthy() {
		subject = "Heimdall: services resumed normal operation"
	} else {
		subject = "Heimdall: ongoing component outage"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d component(s) changed state:\n\n", len(batch))
	for _, tr := range batch {
		fmt.Fprintf(&b, "  %s: %s -> %s", tr.Name, tr.From, tr.To)
		if tr.Detail != "" {
			fmt.Fprintf(&b, " (%s)", tr.Detail)
		}
		b.WriteString("\n")
	}
	snapshot := m.board.Snapshot()
	fmt.Fprintf(&b, "\n%d of %d components healthy.\n", m.board.NumHealthy(), len(snapshot))
	return subject, b.String()
}
