// Package realtime fans delivered notifications out to connected clients.
//
// Redis PUB/SUB carries them between processes; Hub does the same inside a
// single process when Redis is not configured.
package realtime

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/models"
)

// Publisher pushes a stored notification to its recipient's live sessions.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// Subscriber streams the notifications published for one user until ctx is
// done. The returned channel is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, userID primitive.ObjectID) (<-chan models.Notification, error)
}

// Channel is the pub/sub channel of a user.
func Channel(userID primitive.ObjectID) string {
	return "notifications:" + userID.Hex()
}

// NopPublisher drops every notification.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.Notification) error { return nil }

const subscriberBuffer = 16

// Hub is an in-process Publisher and Subscriber. Slow subscribers miss
// notifications rather than block publishers; the inbox still has them.
type Hub struct {
	mu   sync.Mutex
	subs map[primitive.ObjectID]map[chan models.Notification]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[primitive.ObjectID]map[chan models.Notification]struct{})}
}

func (h *Hub) Publish(_ context.Context, n *models.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[n.Recipient] {
		select {
		case ch <- *n:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, userID primitive.ObjectID) (<-chan models.Notification, error) {
	ch := make(chan models.Notification, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan models.Notification]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[userID], ch)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(ch)
	}()
	return ch, nil
}

// Subscribers returns how many live subscriptions a user has.
func (h *Hub) Subscribers(userID primitive.ObjectID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
