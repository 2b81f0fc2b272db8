package logs

import (
	"testing"

	"github.com/victorarias/cclog/internal/logging"
)

func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestConnectionManagerBroadcast(t *testing.T) {
	m := NewConnectionManager(logging.Nop())

	id1, ch1 := m.Subscribe(Subscription{IncludeMessages: true})
	_, ch2 := m.Subscribe(Subscription{IncludeMessages: true})

	if m.ClientCount() != 2 {
		t.Fatalf("client count = %d", m.ClientCount())
	}

	m.Broadcast(NewEvent(EventNewSession, map[string]any{"session_id": "s1", "project_id": "p1"}))

	for i, ch := range []<-chan Event{ch1, ch2} {
		events := drain(ch)
		if len(events) != 1 || events[0].Type != EventNewSession {
			t.Errorf("subscriber %d: events = %v", i, events)
		}
	}

	m.Unsubscribe(id1)
	if m.ClientCount() != 1 {
		t.Errorf("client count after unsubscribe = %d", m.ClientCount())
	}
	if _, ok := <-ch1; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestConnectionManagerSessionFilter(t *testing.T) {
	m := NewConnectionManager(logging.Nop())

	_, ch := m.Subscribe(Subscription{
		SessionIDs:      map[string]struct{}{"wanted": {}},
		IncludeMessages: true,
	})

	m.Broadcast(NewEvent(EventSessionUpdated, map[string]any{"session_id": "wanted"}))
	m.Broadcast(NewEvent(EventSessionUpdated, map[string]any{"session_id": "other"}))
	// Events without a session id always pass the session filter.
	m.Broadcast(NewEvent(EventNewProject, map[string]any{"id": "p9"}))

	events := drain(ch)
	if len(events) != 2 {
		t.Fatalf("got %d events: %v", len(events), events)
	}
	if events[0].Data["session_id"] != "wanted" || events[1].Type != EventNewProject {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestConnectionManagerProjectFilter(t *testing.T) {
	m := NewConnectionManager(logging.Nop())

	_, ch := m.Subscribe(Subscription{
		ProjectIDs:      map[string]struct{}{"p1": {}},
		IncludeMessages: true,
	})

	m.Broadcast(NewEvent(EventNewSession, map[string]any{"session_id": "s1", "project_id": "p1"}))
	m.Broadcast(NewEvent(EventNewSession, map[string]any{"session_id": "s2", "project_id": "p2"}))

	events := drain(ch)
	if len(events) != 1 || events[0].Data["project_id"] != "p1" {
		t.Errorf("events = %v", events)
	}
}

func TestConnectionManagerMessageOptOut(t *testing.T) {
	m := NewConnectionManager(logging.Nop())

	_, ch := m.Subscribe(Subscription{IncludeMessages: false})

	m.Broadcast(NewEvent(EventNewMessage, map[string]any{"session_id": "s1"}))
	m.Broadcast(NewEvent(EventSessionUpdated, map[string]any{"session_id": "s1"}))

	events := drain(ch)
	if len(events) != 1 || events[0].Type != EventSessionUpdated {
		t.Errorf("events = %v", events)
	}
}

func TestConnectionManagerDropsSlowSubscriber(t *testing.T) {
	m := NewConnectionManager(logging.Nop())

	_, ch := m.Subscribe(Subscription{IncludeMessages: true})
	_, healthy := m.Subscribe(Subscription{IncludeMessages: true})

	// Overflow the buffer without reading.
	for i := 0; i <= subscriberBuffer; i++ {
		m.Broadcast(NewEvent(EventSessionUpdated, map[string]any{"session_id": "s1"}))
		drain(healthy)
	}

	if m.ClientCount() != 1 {
		t.Fatalf("client count = %d, slow subscriber should be dropped", m.ClientCount())
	}

	// The dropped channel delivers what was buffered, then closes.
	for range ch {
	}
}
