package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

// NotificationService serves a user's own inbox. Every operation is scoped
// to the calling actor; another user's notification reads as not found.
type NotificationService struct {
	notifications repository.NotificationRepository
	now           func() time.Time
}

func NewNotificationService(notifications repository.NotificationRepository, opts ...Option) *NotificationService {
	b := base{now: time.Now}
	for _, o := range opts {
		o(&b)
	}
	return &NotificationService{notifications: notifications, now: b.now}
}

func (s *NotificationService) List(ctx context.Context, actor models.Actor, unreadOnly bool, page repository.Page) (Paged[models.Notification], error) {
	items, total, err := s.notifications.List(ctx, actor.ID, unreadOnly, page)
	if err != nil {
		return Paged[models.Notification]{}, apperrors.Internal("list notifications", err)
	}
	return newPaged(items, total, page), nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor models.Actor) (int64, error) {
	n, err := s.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, apperrors.Internal("count unread notifications", err)
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Notification, error) {
	n, err := s.notifications.MarkRead(ctx, actor.ID, id, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("notification")
	}
	if err != nil {
		return nil, apperrors.Internal("mark notification read", err)
	}
	return n, nil
}

// MarkAllRead returns how many notifications changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, actor.ID, s.now())
	if err != nil {
		return 0, apperrors.Internal("mark notifications read", err)
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, actor models.Actor, id primitive.ObjectID) error {
	err := s.notifications.Delete(ctx, actor.ID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("notification")
	}
	if err != nil {
		return apperrors.Internal("delete notification", err)
	}
	return nil
}

// Clear deletes every notification of the actor and returns the count.
func (s *NotificationService) Clear(ctx context.Context, actor models.Actor) (int64, error) {
	n, err := s.notifications.DeleteAll(ctx, actor.ID)
	if err != nil {
		return 0, apperrors.Internal("clear notifications", err)
	}
	return n, nil
}
