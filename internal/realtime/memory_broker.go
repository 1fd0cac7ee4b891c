package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker delivers synchronously inside one process.
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string]map[uint64]Handler
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[uint64]Handler)}
}

func (b *MemoryBroker) Subscribe(_ context.Context, topic string, handler Handler) (func(), error) {
	if topic == "" || handler == nil {
		return nil, fmt.Errorf("topic and handler are required")
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]Handler)
	}
	b.topics[topic][id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs := b.topics[topic]; subs != nil {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
		})
	}, nil
}

func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	if event.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if event.SentAt.IsZero() {
		event.SentAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.topics[event.Topic]))
	for _, h := range b.topics[event.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *MemoryBroker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
