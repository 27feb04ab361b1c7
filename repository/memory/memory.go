// Package memory is an in-process implementation of the repository
// contracts. It keeps the same conditional-update semantics as the MongoDB
// store and backs tests and STORE_DRIVER=memory runs.
package memory

import (
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

// DB holds every collection behind one lock.
type DB struct {
	mu            sync.Mutex
	events        map[primitive.ObjectID]*models.Event
	registrations map[primitive.ObjectID]*models.Registration
	notifications map[primitive.ObjectID]*models.Notification
	outbox        map[primitive.ObjectID]*models.OutboxMessage
	users         map[primitive.ObjectID]repository.Recipient
}

func New() *DB {
	return &DB{
		events:        make(map[primitive.ObjectID]*models.Event),
		registrations: make(map[primitive.ObjectID]*models.Registration),
		notifications: make(map[primitive.ObjectID]*models.Notification),
		outbox:        make(map[primitive.ObjectID]*models.OutboxMessage),
		users:         make(map[primitive.ObjectID]repository.Recipient),
	}
}

// Store returns the repositories backed by db.
func (db *DB) Store() repository.Store {
	return repository.Store{
		Events:        &EventRepo{db: db},
		Registrations: &RegistrationRepo{db: db},
		Notifications: &NotificationRepo{db: db},
		Outbox:        &OutboxRepo{db: db},
		Users:         &UserDirectory{db: db},
	}
}

// AddUser seeds the user directory.
func (db *DB) AddUser(r repository.Recipient) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[r.ID] = r
}

func paginate[T any](items []T, p repository.Page) []T {
	p = p.Normalize()
	skip := p.Skip()
	if skip < 0 || skip >= int64(len(items)) {
		return []T{}
	}
	start := int(skip)
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func cloneEvent(e *models.Event) *models.Event {
	out := *e
	out.Images = append([]string(nil), e.Images...)
	if e.Location.Coordinates != nil {
		c := *e.Location.Coordinates
		out.Location.Coordinates = &c
	}
	if e.ContactInfo != nil {
		ci := *e.ContactInfo
		out.ContactInfo = &ci
	}
	if e.DeletedAt != nil {
		d := *e.DeletedAt
		out.DeletedAt = &d
	}
	return &out
}

func cloneRegistration(r *models.Registration) *models.Registration {
	out := *r
	if r.Attendance != nil {
		a := *r.Attendance
		out.Attendance = &a
	}
	if r.Feedback != nil {
		f := *r.Feedback
		out.Feedback = &f
	}
	return &out
}

func sortByCreatedDesc[T any](items []T, created func(T) int64) {
	sort.SliceStable(items, func(i, j int) bool { return created(items[i]) > created(items[j]) })
}
