package memory

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

type EventRepo struct {
	db *DB
}

func (r *EventRepo) Create(_ context.Context, event *models.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	r.db.events[event.ID] = cloneEvent(event)
	return nil
}

func (r *EventRepo) live(id primitive.ObjectID) (*models.Event, bool) {
	e, ok := r.db.events[id]
	if !ok || e.DeletedAt != nil {
		return nil, false
	}
	return e, true
}

func (r *EventRepo) Get(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (r *EventRepo) List(_ context.Context, f repository.EventFilter) ([]models.Event, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []models.Event
	for _, e := range r.db.events {
		if e.DeletedAt != nil || !matchEvent(e, f) {
			continue
		}
		out = append(out, *cloneEvent(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return paginate(out, f.Page), int64(len(out)), nil
}

func matchEvent(e *models.Event, f repository.EventFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if e.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Organizer != nil && e.Organizer != *f.Organizer {
		return false
	}
	if f.Search != "" && !containsFold(e.Title, f.Search) && !containsFold(e.Description, f.Search) {
		return false
	}
	if f.StartFrom != nil && e.StartDate.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && e.StartDate.After(*f.StartTo) {
		return false
	}
	return true
}

func (r *EventRepo) Update(_ context.Context, id primitive.ObjectID, u repository.EventUpdate, now time.Time) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.MaxParticipants != nil && *u.MaxParticipants < e.CurrentParticipants {
		return nil, repository.ErrConflict
	}

	if u.Title != nil {
		e.Title = *u.Title
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.Location != nil {
		e.Location = *u.Location
	}
	if u.StartDate != nil {
		e.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		e.EndDate = *u.EndDate
	}
	if u.MaxParticipants != nil {
		e.MaxParticipants = *u.MaxParticipants
	}
	if u.Requirements != nil {
		e.Requirements = *u.Requirements
	}
	if u.Benefits != nil {
		e.Benefits = *u.Benefits
	}
	if u.ContactInfo != nil {
		ci := *u.ContactInfo
		e.ContactInfo = &ci
	}
	e.UpdatedAt = now
	return cloneEvent(e), nil
}

func (r *EventRepo) TransitionStatus(_ context.Context, id primitive.ObjectID, from, to models.EventStatus, change repository.StatusChange, now time.Time) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	if e.Status != from {
		return nil, repository.ErrConflict
	}
	e.Status = to
	if change.RejectionReason != "" {
		e.RejectionReason = change.RejectionReason
	}
	if change.CancellationReason != "" {
		e.CancellationReason = change.CancellationReason
	}
	e.UpdatedAt = now
	return cloneEvent(e), nil
}

func (r *EventRepo) ReserveSlot(_ context.Context, id primitive.ObjectID, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.live(id)
	if !ok || e.Status != models.EventStatusApproved || e.StartDate.Before(now) ||
		e.CurrentParticipants >= e.MaxParticipants {
		return repository.ErrNoCapacity
	}
	e.CurrentParticipants++
	e.UpdatedAt = now
	return nil
}

func (r *EventRepo) ReleaseSlot(_ context.Context, id primitive.ObjectID, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.events[id]
	if !ok || e.CurrentParticipants <= 0 {
		return repository.ErrConflict
	}
	e.CurrentParticipants--
	e.UpdatedAt = now
	return nil
}

func (r *EventRepo) SoftDelete(_ context.Context, id primitive.ObjectID, participants int, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return repository.ErrNotFound
	}
	if e.CurrentParticipants != participants || e.Status.IsTerminal() {
		return repository.ErrConflict
	}
	t := now
	e.DeletedAt = &t
	e.UpdatedAt = now
	return nil
}

func (r *EventRepo) Restore(_ context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.DeletedAt = nil
	return nil
}

func (r *EventRepo) AddImages(_ context.Context, id primitive.ObjectID, urls []string, now time.Time) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.Images = append(e.Images, urls...)
	e.UpdatedAt = now
	return cloneEvent(e), nil
}
