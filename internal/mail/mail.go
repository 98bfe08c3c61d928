package mail

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/latchkey/internal/storage"
)

// defaultBatchSize bounds how many emails one dispatch pass drains.
const defaultBatchSize = 50

// Mailer delivers a single queued email.
type Mailer interface {
	Send(ctx context.Context, email storage.OutboxEmail) error
}

// LogMailer writes deliveries to the process log. It stands in until a real
// provider is configured.
type LogMailer struct{}

// Send records the delivery in the log and reports success.
func (LogMailer) Send(_ context.Context, email storage.OutboxEmail) error {
	log.Printf("mail: deliver kind=%s recipient=%s id=%s", email.Kind, email.Recipient, email.ID)
	return nil
}

// Dispatcher drains pending outbox emails through a Mailer.
type Dispatcher struct {
	outbox storage.OutboxStore
	mailer Mailer
	batch  int
	now    func() time.Time
}

// NewDispatcher wires a dispatcher over the outbox store. A nil mailer falls
// back to LogMailer.
func NewDispatcher(outbox storage.OutboxStore, mailer Mailer) *Dispatcher {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Dispatcher{
		outbox: outbox,
		mailer: mailer,
		batch:  defaultBatchSize,
		now:    time.Now,
	}
}

// DispatchPending delivers queued emails and returns how many were sent.
// A delivery failure bumps the row's attempt count and moves on; the row
// stays pending for the next pass.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	if d == nil || d.outbox == nil {
		return 0, fmt.Errorf("outbox store is not configured")
	}
	pending, err := d.outbox.ListPendingOutboxEmails(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox emails: %w", err)
	}
	sent := 0
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := d.mailer.Send(ctx, email); err != nil {
			log.Printf("mail: deliver %s failed: %v", email.ID, err)
			if markErr := d.outbox.MarkOutboxEmailAttempt(ctx, email.ID, d.now()); markErr != nil {
				log.Printf("mail: record attempt for %s: %v", email.ID, markErr)
			}
			continue
		}
		if err := d.outbox.MarkOutboxEmailSent(ctx, email.ID, d.now()); err != nil {
			return sent, fmt.Errorf("mark outbox email sent: %w", err)
		}
		sent++
	}
	return sent, nil
}
