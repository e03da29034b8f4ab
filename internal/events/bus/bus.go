// Package bus carries the orchestration domain events: session lifecycle
// transitions, task outcomes and conversation appends. The in-memory bus
// serves single-process deployments; NATS serves distributed ones.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one domain occurrence on the bus. Data holds the subject's
// identifiers (session_id, task_id, agent_kind) rather than full records;
// consumers needing state read it from the store.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent allocates an event with a fresh id and UTC timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler consumes one delivered event. A returned error is logged
// by the bus; it does not stop the subscription.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription is a handle on an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the delivery contract shared by the memory and NATS
// implementations. Subjects are dot-separated and support NATS-style
// wildcards: * for one token, > for the remainder.
type EventBus interface {
	// Publish delivers the event to every subscriber matching the subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe registers a handler for a subject pattern.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// QueueSubscribe registers a handler in a queue group; each event
	// reaches exactly one member of the group.
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)

	// Request publishes with a reply inbox and waits for the first answer.
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)

	// Close tears the bus down; further publishes fail.
	Close()

	// IsConnected reports whether the bus can still deliver.
	IsConnected() bool
}
