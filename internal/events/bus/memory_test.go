package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agenttool/agenttool/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.New(logger.Config{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func TestNewMemoryEventBus(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	if bus == nil {
		t.Fatal("Expected non-nil bus")
	}
	if !bus.IsConnected() {
		t.Error("Expected bus to be connected")
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 1)

	sub, err := bus.Subscribe("sessions.created", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	event := NewEvent("session.created", "orchestrator", map[string]interface{}{"session_id": "s1"})
	if err := bus.Publish(ctx, "sessions.created", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-received:
		if e.ID != event.ID {
			t.Errorf("Expected event ID %s, got %s", event.ID, e.ID)
		}
		if e.Type != event.Type {
			t.Errorf("Expected event type %s, got %s", event.Type, e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestMemoryEventBus_WildcardSubscription(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 2)

	_, err := bus.Subscribe("agenttool.>", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, "agenttool.sessions", NewEvent("session.created", "orchestrator", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := bus.Publish(ctx, "agenttool.tasks", NewEvent("task.completed", "orchestrator", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := bus.Publish(ctx, "other.subject", NewEvent("ignored", "orchestrator", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("Timeout waiting for wildcard events")
		}
	}

	select {
	case e := <-received:
		t.Fatalf("Unexpected event delivered: %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubjectMatching(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"agenttool.sessions", "agenttool.sessions", true},
		{"agenttool.sessions", "agenttool.tasks", false},
		{"agenttool.>", "agenttool.sessions", true},
		{"agenttool.>", "agenttool.tasks.results", true},
		{"agenttool.>", "other.sessions", false},
		{"agenttool.*", "agenttool.tasks", true},
		{"agenttool.*", "agenttool.tasks.results", false},
		{"_INBOX.*", "_INBOX.abc123", true},
	}

	for _, tt := range tests {
		got := subjectMatches(tt.subject, tt.pattern, compilePattern(tt.pattern))
		if got != tt.want {
			t.Errorf("subjectMatches(%q, %q) = %v, want %v", tt.subject, tt.pattern, got, tt.want)
		}
	}
}

func TestMemoryEventBus_RequestReply(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()

	_, err := bus.Subscribe("agenttool.agents.status", func(ctx context.Context, event *Event) error {
		reply, ok := event.Data["_reply"].(string)
		if !ok {
			t.Error("Expected reply subject on request event")
			return nil
		}
		return bus.Publish(ctx, reply, NewEvent("agent.status", "registry", map[string]interface{}{
			"status": "ready",
		}))
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	response, err := bus.Request(ctx, "agenttool.agents.status",
		NewEvent("agent.status.query", "api", nil), time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if response.Type != "agent.status" {
		t.Errorf("Expected agent.status response, got %s", response.Type)
	}
	if response.Data["status"] != "ready" {
		t.Errorf("Expected ready status, got %v", response.Data["status"])
	}
}

func TestMemoryEventBus_RequestTimeout(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	_, err := bus.Request(context.Background(), "agenttool.nowhere",
		NewEvent("unanswered", "api", nil), 50*time.Millisecond)
	if err == nil {
		t.Fatal("Expected timeout error for unanswered request")
	}
}

func TestMemoryEventBus_QueueSubscribeDeliversOnce(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32
	done := make(chan struct{}, 2)

	for i := 0; i < 2; i++ {
		_, err := bus.QueueSubscribe("agenttool.tasks", "workers", func(ctx context.Context, event *Event) error {
			atomic.AddInt32(&count, 1)
			done <- struct{}{}
			return nil
		})
		if err != nil {
			t.Fatalf("QueueSubscribe failed: %v", err)
		}
	}

	if err := bus.Publish(ctx, "agenttool.tasks", NewEvent("task.started", "orchestrator", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for queue delivery")
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 1 {
		t.Errorf("Expected exactly one delivery, got %d", got)
	}
}

func TestMemoryEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 1)

	sub, err := bus.Subscribe("agenttool.messages", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("Expected subscription to be invalid after unsubscribe")
	}

	if err := bus.Publish(ctx, "agenttool.messages", NewEvent("message.added", "orchestrator", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-received:
		t.Fatal("Received event after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryEventBus_PublishAfterClose(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	bus.Close()

	if bus.IsConnected() {
		t.Error("Expected bus to be disconnected after close")
	}
	if err := bus.Publish(context.Background(), "agenttool.sessions", NewEvent("session.created", "orchestrator", nil)); err == nil {
		t.Error("Expected publish on closed bus to fail")
	}
}
