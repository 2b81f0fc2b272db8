package logs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventNewProject     = "new_project"
	EventNewSession     = "new_session"
	EventNewMessage     = "new_message"
	EventSessionUpdated = "session_updated"
	EventError          = "error"
)

// Event is a live notification pushed to subscribed clients.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func NewEvent(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}

// Subscription filters which events a client receives. Empty id sets mean
// no filtering on that dimension; events that carry no session or project id
// always pass those checks.
type Subscription struct {
	SessionIDs      map[string]struct{}
	ProjectIDs      map[string]struct{}
	IncludeMessages bool
}

func (s Subscription) wants(e Event) bool {
	sessionID, _ := e.Data["session_id"].(string)
	projectID, _ := e.Data["project_id"].(string)

	if len(s.SessionIDs) > 0 && sessionID != "" {
		if _, ok := s.SessionIDs[sessionID]; !ok {
			return false
		}
	}
	if len(s.ProjectIDs) > 0 && projectID != "" {
		if _, ok := s.ProjectIDs[projectID]; !ok {
			return false
		}
	}
	if e.Type == EventNewMessage && !s.IncludeMessages {
		return false
	}
	return true
}

const subscriberBuffer = 100

type subscriber struct {
	id     string
	sub    Subscription
	events chan Event
}

// ConnectionManager fans events out to live subscribers. Sends never block:
// a subscriber whose buffer is full is treated as gone and dropped, the same
// way a failed socket write would disconnect it.
type ConnectionManager struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	logger      *slog.Logger
}

func NewConnectionManager(logger *slog.Logger) *ConnectionManager {
	return &ConnectionManager{
		subscribers: make(map[string]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers a client and returns its id plus the channel events
// arrive on. The channel is closed on Unsubscribe or when the client falls
// too far behind.
func (m *ConnectionManager) Subscribe(sub Subscription) (string, <-chan Event) {
	s := &subscriber{
		id:     uuid.NewString(),
		sub:    sub,
		events: make(chan Event, subscriberBuffer),
	}

	m.mu.Lock()
	m.subscribers[s.id] = s
	m.mu.Unlock()

	return s.id, s.events
}

func (m *ConnectionManager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subscribers[id]; ok {
		delete(m.subscribers, id)
		close(s.events)
	}
}

// Broadcast delivers the event to every subscriber whose filters accept it.
func (m *ConnectionManager) Broadcast(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dropped []string
	for id, s := range m.subscribers {
		if !s.sub.wants(event) {
			continue
		}
		select {
		case s.events <- event:
		default:
			dropped = append(dropped, id)
		}
	}

	for _, id := range dropped {
		if s, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(s.events)
			m.logger.Warn("dropping slow event subscriber", "id", id)
		}
	}
}

func (m *ConnectionManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}
