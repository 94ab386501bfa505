// Package fanout broadcasts booking lifecycle events to live staff
// connections. The registry is in-memory and scoped to one process instance.
package fanout

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tablio/internal/metrics"
)

// Event types broadcast to subscribers.
const (
	EventNew            = "new"
	EventChanged        = "changed"
	EventCancelled      = "cancelled"
	EventChangeRequest  = "change_request"
	EventChangeResponse = "change_response"
)

// Event is the broadcast envelope delivered to every live subscriber of the
// restaurant it belongs to.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	RestaurantID int64           `json:"restaurant_id"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"ts"`
}

// NewEvent builds an event envelope, marshalling the payload.
func NewEvent(eventType string, restaurantID int64, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		RestaurantID: restaurantID,
		Payload:      raw,
		Timestamp:    time.Now(),
	}, nil
}

// Conn is a live staff connection able to receive events. Implementations
// must be safe for concurrent SendEvent calls.
type Conn interface {
	SendEvent(event Event) error
}

// Fanout maps restaurant identity to the set of currently subscribed
// connections.
type Fanout struct {
	mu     sync.RWMutex
	subs   map[int64]map[Conn]struct{}
	logger zerolog.Logger
}

// New constructs an empty fanout registry.
func New(logger zerolog.Logger) *Fanout {
	return &Fanout{
		subs:   make(map[int64]map[Conn]struct{}),
		logger: logger.With().Str("component", "fanout").Logger(),
	}
}

// Subscribe adds a connection to the restaurant's subscriber set.
func (f *Fanout) Subscribe(restaurantID int64, conn Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.subs[restaurantID]
	if !ok {
		set = make(map[Conn]struct{})
		f.subs[restaurantID] = set
	}
	set[conn] = struct{}{}
}

// Unsubscribe removes the connection from every set it belongs to.
func (f *Fanout) Unsubscribe(conn Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for restaurantID, set := range f.subs {
		delete(set, conn)
		if len(set) == 0 {
			delete(f.subs, restaurantID)
		}
	}
}

// Subscribers returns the number of live connections for a restaurant.
func (f *Fanout) Subscribers(restaurantID int64) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[restaurantID])
}

// Publish delivers the event to every connection currently subscribed to the
// restaurant. Delivery is fire-and-forget: each connection is served on its
// own goroutine, so one slow or failed connection never blocks the others,
// and a failure never reaches the caller whose mutation triggered it.
func (f *Fanout) Publish(restaurantID int64, event Event) {
	f.mu.RLock()
	conns := make([]Conn, 0, len(f.subs[restaurantID]))
	for conn := range f.subs[restaurantID] {
		conns = append(conns, conn)
	}
	f.mu.RUnlock()

	for _, conn := range conns {
		go func(c Conn) {
			if err := c.SendEvent(event); err != nil {
				metrics.IncFanoutDropped(event.Type)
				f.logger.Warn().
					Err(err).
					Str("event_type", event.Type).
					Int64("restaurant_id", restaurantID).
					Msg("event delivery failed")
				return
			}
			metrics.IncFanoutDelivered(event.Type)
		}(conn)
	}
}
