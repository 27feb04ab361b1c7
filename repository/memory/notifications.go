package memory

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

type NotificationRepo struct {
	db *DB
}

func (r *NotificationRepo) Create(_ context.Context, n *models.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if _, ok := r.db.notifications[n.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *n
	r.db.notifications[n.ID] = &cp
	return nil
}

func (r *NotificationRepo) List(_ context.Context, recipient primitive.ObjectID, unreadOnly bool, page repository.Page) ([]models.Notification, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []models.Notification
	for _, n := range r.db.notifications {
		if n.Recipient != recipient || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
	}
	sortByCreatedDesc(out, func(n models.Notification) int64 { return n.CreatedAt.UnixNano() })
	return paginate(out, page), int64(len(out)), nil
}

func (r *NotificationRepo) CountUnread(_ context.Context, recipient primitive.ObjectID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, item := range r.db.notifications {
		if item.Recipient == recipient && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, recipient, id primitive.ObjectID, now time.Time) (*models.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n, ok := r.db.notifications[id]
	if !ok || n.Recipient != recipient {
		return nil, repository.ErrNotFound
	}
	if !n.IsRead {
		t := now
		n.IsRead = true
		n.ReadAt = &t
	}
	cp := *n
	return &cp, nil
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, recipient primitive.ObjectID, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var count int64
	for _, n := range r.db.notifications {
		if n.Recipient == recipient && !n.IsRead {
			t := now
			n.IsRead = true
			n.ReadAt = &t
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) Delete(_ context.Context, recipient, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n, ok := r.db.notifications[id]
	if !ok || n.Recipient != recipient {
		return repository.ErrNotFound
	}
	delete(r.db.notifications, id)
	return nil
}

func (r *NotificationRepo) DeleteAll(_ context.Context, recipient primitive.ObjectID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var count int64
	for id, n := range r.db.notifications {
		if n.Recipient == recipient {
			delete(r.db.notifications, id)
			count++
		}
	}
	return count, nil
}

type OutboxRepo struct {
	db *DB
}

func (r *OutboxRepo) Enqueue(_ context.Context, msgs ...models.OutboxMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	seen := make(map[string]bool, len(r.db.outbox))
	for _, m := range r.db.outbox {
		if m.DedupeKey != "" {
			seen[m.DedupeKey] = true
		}
	}
	for _, m := range msgs {
		if m.DedupeKey != "" && seen[m.DedupeKey] {
			continue
		}
		if m.ID.IsZero() {
			m.ID = primitive.NewObjectID()
		}
		cp := m
		r.db.outbox[m.ID] = &cp
		seen[m.DedupeKey] = true
	}
	return nil
}

func (r *OutboxRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stale := now.Add(-repository.ClaimLease)
	var due []*models.OutboxMessage
	for _, m := range r.db.outbox {
		pending := m.Status == models.OutboxPending && !m.AvailableAt.After(now)
		expired := m.Status == models.OutboxProcessing && !m.UpdatedAt.After(stale)
		if pending || expired {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].AvailableAt.Before(due[j].AvailableAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]models.OutboxMessage, 0, len(due))
	for _, m := range due {
		m.Status = models.OutboxProcessing
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkDelivered(_ context.Context, id primitive.ObjectID, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = models.OutboxDelivered
	m.UpdatedAt = now
	return nil
}

func (r *OutboxRepo) MarkFailed(_ context.Context, id primitive.ObjectID, reason string, retryAt time.Time, dead bool, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Attempts++
	m.LastError = reason
	m.UpdatedAt = now
	if dead {
		m.Status = models.OutboxDead
		return nil
	}
	m.Status = models.OutboxPending
	m.AvailableAt = retryAt
	return nil
}

// Messages returns a snapshot of the outbox, for inspection in tests and
// local runs.
func (r *OutboxRepo) Messages() []models.OutboxMessage {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.OutboxMessage, 0, len(r.db.outbox))
	for _, m := range r.db.outbox {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type UserDirectory struct {
	db *DB
}

func (u *UserDirectory) Lookup(_ context.Context, id primitive.ObjectID) (*repository.Recipient, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	r, ok := u.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}
