package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gomodule/redigo/redis"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/logger"
	"github.com/phillip/volunteer-events-go/models"
)

// RedisBroker publishes and subscribes over Redis PUB/SUB.
type RedisBroker struct {
	pool *redis.Pool
}

func NewRedisBroker(pool *redis.Pool) *RedisBroker {
	return &RedisBroker{pool: pool}
}

func (r *RedisBroker) Publish(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("PUBLISH", Channel(n.Recipient), payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (r *RedisBroker) Subscribe(ctx context.Context, userID primitive.ObjectID) (<-chan models.Notification, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis conn: %w", err)
	}
	psc := &redis.PubSubConn{Conn: conn}
	if err := psc.Subscribe(Channel(userID)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan models.Notification, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			psc.Unsubscribe()
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			switch msg := psc.Receive().(type) {
			case redis.Message:
				var n models.Notification
				if err := json.Unmarshal(msg.Data, &n); err != nil {
					logger.Log(zapcore.WarnLevel, "drop malformed notification: "+err.Error(), "RedisBroker", "subscribe")
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}

			case redis.Subscription:
				if msg.Count == 0 {
					return
				}

			case error:
				if ctx.Err() == nil {
					logger.Log(zapcore.ErrorLevel, "receive: "+msg.Error(), "RedisBroker", "subscribe")
				}
				return
			}
		}
	}()
	return out, nil
}

// Health pings the pool.
func (r *RedisBroker) Health(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	return err
}
