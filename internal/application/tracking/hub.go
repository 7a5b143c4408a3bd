package tracking

import (
	"context"
	"sync"

	"github.com/andrescamacho/fleettrack-go/internal/adapters/metrics"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
)

// DefaultSubscriberBuffer is the per-session outbound buffer capacity
const DefaultSubscriberBuffer = 32

// Session is a durable client connection receiving events for the shipments
// it subscribed to. Its outbound buffer is bounded: on overflow the oldest
// event is dropped and a lagged marker is appended so the client can refetch
// authoritative state.
type Session struct {
	ID string

	mu       sync.Mutex
	queue    []tracking.Event
	capacity int
	lagged   map[string]int // shipment id -> drops pending a marker
	notify   chan struct{}
	closed   bool
}

func newSession(id string, capacity int) *Session {
	return &Session{
		ID:       id,
		capacity: capacity,
		lagged:   make(map[string]int),
		notify:   make(chan struct{}, 1),
	}
}

// enqueue appends an event, dropping the oldest on overflow. Never blocks.
func (s *Session) enqueue(ev tracking.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	for len(s.queue) >= s.capacity {
		victim := s.queue[0]
		s.queue = s.queue[1:]
		s.lagged[victim.Shipment()]++
		metrics.RecordEventDropped(victim.EventType())
	}
	s.queue = append(s.queue, ev)

	// Surface accumulated drops as lagged markers, coalescing with a
	// marker already at the tail for the same shipment.
	for shipmentID, n := range s.lagged {
		if last, ok := s.queue[len(s.queue)-1].(tracking.LaggedEvent); ok && last.ShipmentID == shipmentID {
			last.Dropped += n
			s.queue[len(s.queue)-1] = last
		} else {
			s.queue = append(s.queue, tracking.LaggedEvent{ShipmentID: shipmentID, Dropped: n})
		}
		delete(s.lagged, shipmentID)
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Receive returns the next event in publish order, blocking until one is
// available, the context is cancelled, or the session is closed.
func (s *Session) Receive(ctx context.Context) (tracking.Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Pending returns the number of buffered events (for tests and monitoring)
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Hub is the per-shipment topic registry fanning events out to subscriber
// sessions. Publication cost scales with the subscribers of one topic, not
// with total topics: the registry lock is only held to snapshot the
// subscriber set, and enqueueing uses per-session locks.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[string]*Session // shipment id -> session id -> session
	sessions map[string]map[string]bool     // session id -> shipment ids
	buffer   int
}

// NewHub creates a hub with the given per-session buffer capacity
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		topics:   make(map[string]map[string]*Session),
		sessions: make(map[string]map[string]bool),
		buffer:   buffer,
	}
}

// OpenSession registers a new subscriber session
func (h *Hub) OpenSession(id string) *Session {
	s := newSession(id, h.buffer)
	h.mu.Lock()
	h.sessions[id] = make(map[string]bool)
	h.mu.Unlock()
	metrics.RecordSessionOpened()
	return s
}

// CloseSession removes the session from all topics and reclaims resources
func (h *Hub) CloseSession(s *Session) {
	h.mu.Lock()
	for shipmentID := range h.sessions[s.ID] {
		delete(h.topics[shipmentID], s.ID)
		if len(h.topics[shipmentID]) == 0 {
			delete(h.topics, shipmentID)
		}
	}
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	s.close()
	metrics.RecordSessionClosed()
}

// Subscribe adds the session to a shipment topic. A session may subscribe
// to many shipments.
func (h *Hub) Subscribe(s *Session, shipmentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.ID]; !ok {
		return // closed session
	}
	if h.topics[shipmentID] == nil {
		h.topics[shipmentID] = make(map[string]*Session)
	}
	h.topics[shipmentID][s.ID] = s
	h.sessions[s.ID][shipmentID] = true
}

// Unsubscribe removes the session from a shipment topic
func (h *Hub) Unsubscribe(s *Session, shipmentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[shipmentID], s.ID)
	if len(h.topics[shipmentID]) == 0 {
		delete(h.topics, shipmentID)
	}
	delete(h.sessions[s.ID], shipmentID)
}

// Publish fans an event out to every subscriber of the shipment.
// Non-blocking; per-session overflow is handled by the session buffer.
// Within one shipment, events reach each session in publish order.
func (h *Hub) Publish(shipmentID string, event tracking.Event) {
	h.mu.RLock()
	subs := make([]*Session, 0, len(h.topics[shipmentID]))
	for _, s := range h.topics[shipmentID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.enqueue(event)
	}
	metrics.RecordEventPublished(event.EventType())
}

// SubscriberCount returns the number of sessions subscribed to a shipment.
// Useful for testing and monitoring.
func (h *Hub) SubscriberCount(shipmentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[shipmentID])
}

var _ tracking.EventPublisher = (*Hub)(nil)
