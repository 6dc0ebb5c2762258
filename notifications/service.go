// Package notifications fans state changes out to the shell's SSE stream.
package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventConnected          EventType = "connected"
	EventHistoryChanged     EventType = "history-changed"
	EventPreferencesChanged EventType = "preferences-changed"
	EventToolActivated      EventType = "tool-activated"
	EventScanState          EventType = "scan-state"
	EventScanResult         EventType = "scan-result"
	EventOperation          EventType = "operation"
	EventDataCleared        EventType = "data-cleared"
)

// Event represents a notification event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Service manages SSE subscriptions and event broadcasting
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewService creates a new notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe creates a new subscription channel
// Returns the event channel and an unsubscribe function
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	s.mu.Lock()
	if s.closed {
		close(ch)
	} else {
		s.subscribers[ch] = struct{}{}
	}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Only close if the channel is still in subscribers map
		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Notify broadcasts an event to all subscribers. Slow subscribers miss
// events rather than blocking the publisher.
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *Service) NotifyHistoryChanged() {
	s.Notify(Event{Type: EventHistoryChanged})
}

func (s *Service) NotifyPreferencesChanged(prefs any) {
	s.Notify(Event{Type: EventPreferencesChanged, Data: prefs})
}

func (s *Service) NotifyToolActivated(tool string) {
	s.Notify(Event{
		Type: EventToolActivated,
		Data: map[string]string{"tool": tool},
	})
}

// NotifyScanState sends a scan-state event with the session snapshot
func (s *Service) NotifyScanState(snapshot any) {
	s.Notify(Event{Type: EventScanState, Data: snapshot})
}

// NotifyScanResult sends a scan-result event for a decoded code
func (s *Service) NotifyScanResult(result any) {
	s.Notify(Event{Type: EventScanResult, Data: result})
}

// NotifyOperation sends an operation status update (progress or terminal)
func (s *Service) NotifyOperation(status any) {
	s.Notify(Event{Type: EventOperation, Data: status})
}

func (s *Service) NotifyDataCleared() {
	s.Notify(Event{Type: EventDataCleared})
}

// Shutdown closes the notification service
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	// Close all subscriber channels
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
