package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// RedisBroker fans events out across server instances with Redis pub/sub.
type RedisBroker struct {
	client *redisv9.Client
	prefix string
}

func NewRedisBroker(client *redisv9.Client, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string, handler Handler) (func(), error) {
	if topic == "" || handler == nil {
		return nil, fmt.Errorf("topic and handler are required")
	}

	pubsub := b.client.Subscribe(ctx, b.prefix+topic)
	// Receive blocks until the subscription is confirmed, so failures surface
	// here instead of on the delivery goroutine.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s failed: %w", topic, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("decode realtime event on %s failed: %v", topic, err)
				continue
			}
			handler(event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Printf("close subscription %s failed: %v", topic, err)
			}
			<-done
		})
	}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	if event.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if event.SentAt.IsZero() {
		event.SentAt = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal realtime event failed: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+event.Topic, payload).Err(); err != nil {
		return fmt.Errorf("publish realtime event failed: %w", err)
	}
	return nil
}
