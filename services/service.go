// Package services runs the event and registration operations: validate
// input, load the target, authorize, check the lifecycle guards, mutate
// storage, then hand notices to the Notifier.
package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/logger"
	"github.com/phillip/volunteer-events-go/metrics"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

type Option func(*base)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithAutoConfirm selects whether new registrations are confirmed on
// creation or wait for manager review.
func WithAutoConfirm(auto bool) Option {
	return func(b *base) { b.autoConfirm = auto }
}

// Paged is one page of a listing.
type Paged[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

func newPaged[T any](items []T, total int64, p repository.Page) Paged[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	return Paged[T]{Items: items, Total: total, Page: p.Page, Limit: p.Limit}
}

type base struct {
	events        repository.EventRepository
	registrations repository.RegistrationRepository
	notifier      Notifier
	validator     *StructValidator
	now           func() time.Time
	autoConfirm   bool
}

func newBase(store repository.Store, notifier Notifier, opts ...Option) base {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	b := base{
		events:        store.Events,
		registrations: store.Registrations,
		notifier:      notifier,
		validator:     NewStructValidator(),
		now:           time.Now,
		autoConfirm:   true,
	}
	for _, o := range opts {
		o(&b)
	}
	return b
}

func (b *base) loadEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	event, err := b.events.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("event")
	}
	if err != nil {
		return nil, apperrors.Internal("get event", err)
	}
	return event, nil
}

func (b *base) loadRegistration(ctx context.Context, id primitive.ObjectID) (*models.Registration, error) {
	reg, err := b.registrations.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("registration")
	}
	if err != nil {
		return nil, apperrors.Internal("get registration", err)
	}
	return reg, nil
}

// notify hands notices to the notifier. Failures are logged and counted and
// never reach the caller.
func (b *base) notify(ctx context.Context, component, scope string, notices ...Notice) {
	if len(notices) == 0 {
		return
	}
	if err := b.notifier.Notify(ctx, notices...); err != nil {
		metrics.NotifyFailures.Inc()
		logger.Log(zapcore.ErrorLevel, "notify failed: "+err.Error(), component, scope)
	}
}

// activeVolunteers lists every volunteer holding a pending or confirmed
// registration for the event.
func (b *base) activeVolunteers(ctx context.Context, eventID primitive.ObjectID) ([]primitive.ObjectID, error) {
	var out []primitive.ObjectID
	filter := repository.RegistrationFilter{
		Statuses: models.ActiveRegistrationStatuses,
		Page:     repository.Page{Page: 1, Limit: repository.MaxLimit},
	}
	for {
		regs, total, err := b.registrations.ListByEvent(ctx, eventID, filter)
		if err != nil {
			return nil, err
		}
		for _, r := range regs {
			out = append(out, r.Volunteer)
		}
		if len(regs) == 0 || int64(filter.Page.Page*filter.Page.Limit) >= total {
			return out, nil
		}
		filter.Page.Page++
	}
}

func ptr[T any](v T) *T { return &v }
