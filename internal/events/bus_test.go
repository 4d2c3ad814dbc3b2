package events

import (
	"testing"
	"time"
)

func anchored(id string) TaskAnchoredEvent {
	return TaskAnchoredEvent{
		ID:        id,
		Start:     time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		Linked:    true,
		Timestamp: time.Now(),
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)
	bus.Publish(TopicTask, anchored("ep1-picture-lock"))

	select {
	case received := <-ch:
		if received.TaskID() != "ep1-picture-lock" {
			t.Errorf("expected task ID 'ep1-picture-lock', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeTaskAnchored {
			t.Errorf("expected event type '%s', got '%s'", EventTypeTaskAnchored, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskReleasedEvent{ID: "ep2-online-conform", Timestamp: time.Now()})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "ep2-online-conform" {
				t.Errorf("subscriber %d: got task ID '%s'", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestNonBlockingSend verifies a full subscriber never stalls the publisher.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicSchedule, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TopicSchedule, RecalculatedEvent{Version: i + 1, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	select {
	case received := <-ch:
		ev, ok := received.(RecalculatedEvent)
		if !ok || ev.Version != 1 {
			t.Errorf("expected first recalculation in buffer, got %#v", received)
		}
	default:
		t.Error("expected one event in buffer")
	}

	if got := bus.Dropped(); got != 9 {
		t.Errorf("Dropped() = %d, want 9", got)
	}
}

func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicSchedule, 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for _, c := range []<-chan Event{ch, all} {
		received := 0
		for range c {
			received++
		}
		if received != 0 {
			t.Errorf("expected 0 events after close, got %d", received)
		}
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := NewEventBus()
	bus.Close()

	ch := bus.Subscribe(TopicConflict, 0)
	if _, ok := <-ch; ok {
		t.Error("subscription after close should be closed")
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicTask, 10)
	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()
	bus.Publish(TopicTask, anchored("ep1-directors-cut"))

	if _, ok := <-ch; ok {
		t.Error("received event after bus was closed")
	}
}

// TestMultipleTopics verifies topic isolation.
func TestMultipleTopics(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	conflictCh := bus.Subscribe(TopicConflict, 10)

	bus.Publish(TopicTask, anchored("ep3-picture-lock"))
	bus.Publish(TopicConflict, ConflictsPendingEvent{
		Conflicts: []ConflictSummary{{TaskID: "ep3-picture-lock", Episode: 3, Delta: -4, Reason: "drift", Recommended: "preserve"}},
		Timestamp: time.Now(),
	})

	select {
	case received := <-taskCh:
		if received.EventType() != EventTypeTaskAnchored {
			t.Errorf("task channel: got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("task channel: timeout waiting for event")
	}

	select {
	case received := <-conflictCh:
		ev, ok := received.(ConflictsPendingEvent)
		if !ok || len(ev.Conflicts) != 1 {
			t.Errorf("conflict channel: got %#v", received)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("conflict channel: timeout waiting for event")
	}

	select {
	case <-taskCh:
		t.Error("task channel received unexpected event")
	case <-conflictCh:
		t.Error("conflict channel received unexpected event")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(20)

	bus.Publish(TopicTask, anchored("ep1-picture-lock"))
	bus.Publish(TopicSchedule, RecalculatedEvent{Version: 2, Timestamp: time.Now()})

	receivedTypes := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case received := <-allCh:
			receivedTypes[received.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}

	if !receivedTypes[EventTypeTaskAnchored] {
		t.Error("SubscribeAll did not receive task event")
	}
	if !receivedTypes[EventTypeRecalculated] {
		t.Error("SubscribeAll did not receive schedule event")
	}

	select {
	case <-allCh:
		t.Error("received unexpected third event")
	case <-time.After(10 * time.Millisecond):
	}
}
