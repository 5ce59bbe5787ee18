package hub

import (
	"sync"

	"github.com/tinyland-inc/omnichat/pkg/logger"
)

// EventType enumerates the hub's subscriber-facing events.
type EventType string

const (
	// EventMessage fires for every normalized inbound message.
	EventMessage EventType = "message"
	// EventMessageSent fires for every successful outbound send.
	EventMessageSent EventType = "message_sent"
	// EventIntegrationStatus fires on adapter connectivity transitions.
	EventIntegrationStatus EventType = "integration_status"
)

// Event is what subscribers receive. Message is set for message and
// message_sent events; Platform and Status for integration_status.
type Event struct {
	Type     EventType `json:"type"`
	Message  *Message  `json:"message,omitempty"`
	Platform Platform  `json:"platform,omitempty"`
	Status   string    `json:"status,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// subscribers is an observer list with non-blocking delivery: a full
// subscriber buffer drops the event instead of stalling normalization.
type subscribers struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[*subscriber]struct{})}
}

func (s *subscribers) add(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{ch: make(chan Event, buffer)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return sub.ch, cancel
}

func (s *subscribers) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			logger.WarnCF("hub", "Dropping event for slow subscriber", map[string]any{
				"event": string(ev.Type),
			})
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		close(sub.ch)
	}
	s.subs = make(map[*subscriber]struct{})
}
