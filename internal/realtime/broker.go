// Package realtime carries publish/subscribe events between live sessions.
package realtime

import (
	"context"
	"encoding/json"
	"time"
)

type Event struct {
	Topic    string            `json:"topic"`
	Kind     string            `json:"kind"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
	UserID   string            `json:"userId,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sentAt"`
}

type Handler func(Event)

// Broker fans events out to every subscriber of a topic. Handlers must not
// block for long; they run on the broker's delivery path.
type Broker interface {
	Subscribe(ctx context.Context, topic string, handler Handler) (unsubscribe func(), err error)
	Publish(ctx context.Context, event Event) error
}
