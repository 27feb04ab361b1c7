package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
	"github.com/phillip/volunteer-events-go/repository/memory"
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notices ...Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notices...)
	return nil
}

func (n *recordingNotifier) ofType(typ models.NotificationType) []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notice
	for _, notice := range n.notices {
		if notice.Type == typ {
			out = append(out, notice)
		}
	}
	return out
}

type fixture struct {
	store    repository.Store
	notifier *recordingNotifier
	events   *EventService
	regs     *RegistrationService

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New().Store(),
		notifier: &recordingNotifier{},
		now:      baseTime,
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.events = NewEventService(f.store, f.notifier, opts...)
	f.regs = NewRegistrationService(f.store, f.notifier, opts...)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// seedEvent stores an approved event starting after the given delay.
func (f *fixture) seedEvent(t *testing.T, organizer models.Actor, max int, startIn time.Duration) *models.Event {
	t.Helper()
	start := baseTime.Add(startIn)
	e := &models.Event{
		Title:           "River cleanup",
		Description:     "Clearing plastic from the riverbank",
		Category:        models.CategoryCleanup,
		Location:        models.Location{Address: "Riverside Park"},
		StartDate:       start,
		EndDate:         start.Add(4 * time.Hour),
		MaxParticipants: max,
		Status:          models.EventStatusApproved,
		Organizer:       organizer.ID,
		Images:          []string{},
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
	require.NoError(t, f.store.Events.Create(context.Background(), e))
	return e
}

func (f *fixture) participants(t *testing.T, id primitive.ObjectID) int {
	t.Helper()
	e, err := f.store.Events.Get(context.Background(), id)
	require.NoError(t, err)
	return e.CurrentParticipants
}

func newActor(role models.Role) models.Actor {
	return models.Actor{ID: primitive.NewObjectID(), Role: role}
}

func requireCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperrors.GetCode(err), err.Error())
}

var errNotifierDown = errors.New("outbox unavailable")

var repositoryNoChange = repository.StatusChange{}

func registrationFilter() repository.RegistrationFilter {
	return repository.RegistrationFilter{Page: repository.Page{Page: 1, Limit: 20}}
}
