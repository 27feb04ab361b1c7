package memory

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

type RegistrationRepo struct {
	db *DB
}

func (r *RegistrationRepo) Create(_ context.Context, reg *models.Registration) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if slices.Contains(models.UniqueRegistrationStatuses, reg.Status) {
		if r.findActive(reg.Event, reg.Volunteer) != nil {
			return repository.ErrDuplicate
		}
	}
	if reg.ID.IsZero() {
		reg.ID = primitive.NewObjectID()
	}
	r.db.registrations[reg.ID] = cloneRegistration(reg)
	return nil
}

func (r *RegistrationRepo) findActive(eventID, volunteerID primitive.ObjectID) *models.Registration {
	for _, reg := range r.db.registrations {
		if reg.Event == eventID && reg.Volunteer == volunteerID &&
			slices.Contains(models.UniqueRegistrationStatuses, reg.Status) {
			return reg
		}
	}
	return nil
}

func (r *RegistrationRepo) Get(_ context.Context, id primitive.ObjectID) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	reg, ok := r.db.registrations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRegistration(reg), nil
}

func (r *RegistrationRepo) FindActive(_ context.Context, eventID, volunteerID primitive.ObjectID) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	reg := r.findActive(eventID, volunteerID)
	if reg == nil {
		return nil, repository.ErrNotFound
	}
	return cloneRegistration(reg), nil
}

func (r *RegistrationRepo) list(match func(*models.Registration) bool, f repository.RegistrationFilter) ([]models.Registration, int64) {
	var out []models.Registration
	for _, reg := range r.db.registrations {
		if !match(reg) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, reg.Status) {
			continue
		}
		out = append(out, *cloneRegistration(reg))
	}
	sortByCreatedDesc(out, func(reg models.Registration) int64 { return reg.RegisteredAt.UnixNano() })
	return paginate(out, f.Page), int64(len(out))
}

func (r *RegistrationRepo) ListByVolunteer(_ context.Context, volunteerID primitive.ObjectID, f repository.RegistrationFilter) ([]models.Registration, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out, total := r.list(func(reg *models.Registration) bool { return reg.Volunteer == volunteerID }, f)
	return out, total, nil
}

func (r *RegistrationRepo) ListByEvent(_ context.Context, eventID primitive.ObjectID, f repository.RegistrationFilter) ([]models.Registration, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out, total := r.list(func(reg *models.Registration) bool { return reg.Event == eventID }, f)
	return out, total, nil
}

func (r *RegistrationRepo) CountByEvent(_ context.Context, eventID primitive.ObjectID, statuses []models.RegistrationStatus) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, reg := range r.db.registrations {
		if reg.Event == eventID && slices.Contains(statuses, reg.Status) {
			n++
		}
	}
	return n, nil
}

func (r *RegistrationRepo) Transition(_ context.Context, id primitive.ObjectID, from []models.RegistrationStatus, to models.RegistrationStatus, change repository.RegistrationChange, now time.Time) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	reg, ok := r.db.registrations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !slices.Contains(from, reg.Status) {
		return nil, repository.ErrConflict
	}
	reg.Status = to
	applyChange(reg, change)
	reg.UpdatedAt = now
	return cloneRegistration(reg), nil
}

func (r *RegistrationRepo) CompleteMany(_ context.Context, eventID primitive.ObjectID, ids []primitive.ObjectID, from []models.RegistrationStatus, change repository.RegistrationChange, now time.Time) ([]models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []models.Registration
	for _, id := range ids {
		reg, ok := r.db.registrations[id]
		if !ok || reg.Event != eventID || !slices.Contains(from, reg.Status) {
			continue
		}
		reg.Status = models.RegistrationCompleted
		applyChange(reg, change)
		reg.UpdatedAt = now
		out = append(out, *cloneRegistration(reg))
	}
	return out, nil
}

func applyChange(reg *models.Registration, c repository.RegistrationChange) {
	if c.ConfirmedAt != nil {
		reg.ConfirmedAt = c.ConfirmedAt
	}
	if c.CancelledAt != nil {
		reg.CancelledAt = c.CancelledAt
	}
	if c.CompletedAt != nil {
		reg.CompletedAt = c.CompletedAt
	}
	if c.CancelReason != nil {
		reg.CancelReason = *c.CancelReason
	}
	if c.Notes != nil {
		reg.Notes = *c.Notes
	}
	if c.Attendance != nil {
		a := *c.Attendance
		reg.Attendance = &a
	}
	if c.Feedback != nil {
		f := *c.Feedback
		reg.Feedback = &f
	}
}
