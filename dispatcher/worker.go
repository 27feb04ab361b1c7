// Package dispatcher delivers outbox messages: it stores the inbox
// notification, pushes it to live sessions and optionally e-mails it.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/logger"
	"github.com/phillip/volunteer-events-go/metrics"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/realtime"
	"github.com/phillip/volunteer-events-go/repository"
)

const (
	component = "Dispatcher"

	maxBackoff = time.Hour
)

// Mailer sends a plain notification e-mail.
type Mailer interface {
	Send(ctx context.Context, to, name, subject, body string) error
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 10 * time.Second
	}
	return c
}

type Option func(*Worker)

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

type Worker struct {
	outbox        repository.OutboxRepository
	notifications repository.NotificationRepository
	users         repository.UserDirectory
	publisher     realtime.Publisher
	mailer        Mailer
	cfg           Config
	now           func() time.Time
}

// NewWorker builds a dispatcher over store. publisher may be nil when no live
// channel is configured, mailer when e-mail delivery is off.
func NewWorker(store repository.Store, publisher realtime.Publisher, mailer Mailer, cfg Config, opts ...Option) *Worker {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	w := &Worker{
		outbox:        store.Outbox,
		notifications: store.Notifications,
		users:         store.Users,
		publisher:     publisher,
		mailer:        mailer,
		cfg:           cfg.withDefaults(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes the outbox every Interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				logger.Log(zapcore.ErrorLevel, err.Error(), component, "run")
			}
		}
	}
}

// ProcessOnce claims one batch of due messages and delivers them. It returns
// how many were delivered.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.outbox.ClaimDue(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}

	delivered := 0
	for _, msg := range batch {
		if err := w.deliver(ctx, msg); err != nil {
			w.fail(ctx, msg, err)
			continue
		}
		if err := w.outbox.MarkDelivered(ctx, msg.ID, w.now()); err != nil {
			logger.Log(zapcore.ErrorLevel, fmt.Sprintf("mark delivered %s: %v", msg.ID.Hex(), err), component, "process")
			continue
		}
		metrics.OutboxDelivered.Inc()
		delivered++
	}
	return delivered, nil
}

func (w *Worker) deliver(ctx context.Context, msg models.OutboxMessage) error {
	n := &models.Notification{
		ID:           msg.ID,
		Recipient:    msg.Recipient,
		Type:         msg.Type,
		Title:        msg.Title,
		Message:      msg.Message,
		RelatedEvent: msg.RelatedEvent,
		CreatedAt:    w.now(),
	}

	// A retried message may already have its inbox entry.
	err := w.notifications.Create(ctx, n)
	switch {
	case err == nil:
		if err := w.publisher.Publish(ctx, n); err != nil {
			logger.Log(zapcore.WarnLevel, fmt.Sprintf("publish %s: %v", n.ID.Hex(), err), component, "deliver")
		}
	case errors.Is(err, repository.ErrDuplicate):
	default:
		return fmt.Errorf("store notification: %w", err)
	}

	if w.mailer == nil || w.users == nil {
		return nil
	}
	recipient, err := w.users.Lookup(ctx, msg.Recipient)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if recipient.Email == "" {
		return nil
	}
	if err := w.mailer.Send(ctx, recipient.Email, recipient.Name, msg.Title, msg.Message); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, msg models.OutboxMessage, cause error) {
	attempts := msg.Attempts + 1
	dead := attempts >= w.cfg.MaxAttempts
	now := w.now()
	retryAt := now.Add(w.backoff(attempts))

	if err := w.outbox.MarkFailed(ctx, msg.ID, cause.Error(), retryAt, dead, now); err != nil {
		logger.Log(zapcore.ErrorLevel, fmt.Sprintf("mark failed %s: %v", msg.ID.Hex(), err), component, "fail")
		return
	}
	metrics.OutboxFailed.Inc()
	if dead {
		metrics.OutboxDead.Inc()
		logger.Log(zapcore.ErrorLevel, fmt.Sprintf("outbox %s dead after %d attempts: %v", msg.ID.Hex(), attempts, cause), component, "fail")
		return
	}
	logger.Log(zapcore.WarnLevel, fmt.Sprintf("outbox %s attempt %d failed, retry at %s: %v", msg.ID.Hex(), attempts, retryAt.Format(time.RFC3339), cause), component, "fail")
}

// backoff doubles BaseBackoff per attempt, capped at one hour.
func (w *Worker) backoff(attempts int) time.Duration {
	d := w.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
