// Package realtime pushes booking status changes to connected browsers.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Subscriber is one websocket connection watching one booking.
type Subscriber struct {
	BookingID uuid.UUID
	Send      chan []byte

	hub    *Hub
	mu     sync.Mutex
	closed bool
}

// Close unregisters the subscriber and closes Send. Safe to call twice.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.hub != nil {
		s.hub.unregister(s)
	}
	close(s.Send)
}

type Hub struct {
	mu        sync.RWMutex
	byBooking map[uuid.UUID]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{byBooking: make(map[uuid.UUID]map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber for bookingID.
func (h *Hub) Subscribe(bookingID uuid.UUID) *Subscriber {
	s := &Subscriber{BookingID: bookingID, Send: make(chan []byte, 16), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byBooking[bookingID] == nil {
		h.byBooking[bookingID] = make(map[*Subscriber]struct{})
	}
	h.byBooking[bookingID][s] = struct{}{}
	return s
}

func (h *Hub) unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byBooking[s.BookingID]; m != nil {
		delete(m, s)
		if len(m) == 0 {
			delete(h.byBooking, s.BookingID)
		}
	}
}

// Publish sends payload to every subscriber of bookingID. Slow subscribers
// miss the frame rather than block the caller.
func (h *Hub) Publish(bookingID uuid.UUID, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	m := h.byBooking[bookingID]
	subs := make([]*Subscriber, 0, len(m))
	for s := range m {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			select {
			case s.Send <- data:
			default:
			}
		}
		s.mu.Unlock()
	}
}

// SubscriberCount reports how many connections watch bookingID.
func (h *Hub) SubscriberCount(bookingID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byBooking[bookingID])
}
