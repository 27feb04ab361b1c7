package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

// Notice is one notification addressed to one recipient.
type Notice struct {
	Recipient    primitive.ObjectID
	Type         models.NotificationType
	Title        string
	Message      string
	RelatedEvent *primitive.ObjectID
	// Subject identifies what the notice is about (a registration or event
	// id). Notices with the same type, subject and recipient are delivered
	// once.
	Subject string
}

// Notifier receives notification side effects. Callers treat failures as
// best-effort.
type Notifier interface {
	Notify(ctx context.Context, notices ...Notice) error
}

// OutboxNotifier records notices in the outbox for the dispatcher.
type OutboxNotifier struct {
	outbox repository.OutboxRepository
	now    func() time.Time
}

func NewOutboxNotifier(outbox repository.OutboxRepository, now func() time.Time) *OutboxNotifier {
	if now == nil {
		now = time.Now
	}
	return &OutboxNotifier{outbox: outbox, now: now}
}

func (n *OutboxNotifier) Notify(ctx context.Context, notices ...Notice) error {
	if len(notices) == 0 {
		return nil
	}
	now := n.now()
	msgs := make([]models.OutboxMessage, 0, len(notices))
	for _, notice := range notices {
		msgs = append(msgs, models.OutboxMessage{
			DedupeKey:    dedupeKey(notice),
			Recipient:    notice.Recipient,
			Type:         notice.Type,
			Title:        notice.Title,
			Message:      notice.Message,
			RelatedEvent: notice.RelatedEvent,
			Status:       models.OutboxPending,
			AvailableAt:  now,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return n.outbox.Enqueue(ctx, msgs...)
}

func dedupeKey(n Notice) string {
	if n.Subject == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s:%s:%s", n.Type, n.Subject, n.Recipient.Hex())
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, ...Notice) error { return nil }
