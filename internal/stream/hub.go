// Package stream distributes journal change events to live views.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
)

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of consecutive drops before logging.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:                256,
		SubscriberBufferSize:      16,
		SlowConsumerDropThreshold: 10,
	}
}

// Hub fans out journal events to subscribers keyed by user id. Every event
// describes the full state of a user's journal, so a subscriber that falls
// behind loses intermediate events and catches up on the next one.
type Hub struct {
	config      HubConfig
	log         zerolog.Logger
	metrics     *metrics.Metrics
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	events      chan journal.Event
	done        chan struct{}
	started     bool

	eventsReceived  atomic.Uint64
	eventsDelivered atomic.Uint64
	eventsDropped   atomic.Uint64
}

// Subscriber is one receiver of a user's events.
type Subscriber struct {
	UserID    string
	Channel   chan journal.Event
	CreatedAt time.Time
	dropped   atomic.Int64
}

// Dropped returns the number of consecutive events this subscriber missed.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// NewHub creates a hub with the default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a hub with a custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	if config.BufferSize < 1 {
		config.BufferSize = 1
	}
	if config.SubscriberBufferSize < 1 {
		config.SubscriberBufferSize = 1
	}
	return &Hub{
		config:      config,
		log:         logging.WithComponent(logger, "stream"),
		subscribers: make(map[string][]*Subscriber),
		events:      make(chan journal.Event, config.BufferSize),
	}
}

// SetMetrics tracks connected subscribers on the live client gauge.
func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.mu.Lock()
	h.metrics = m
	h.mu.Unlock()
}

// Start begins the distribution loop. It returns immediately; the loop ends
// when ctx is cancelled or Stop is called.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}
	h.started = true
	h.done = make(chan struct{})

	go h.broadcastLoop(ctx, h.done)
	return nil
}

func (h *Hub) broadcastLoop(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-done:
			return
		case e := <-h.events:
			h.eventsReceived.Add(1)
			h.broadcast(e)
		}
	}
}

// Stop ends the distribution loop and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for userID, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
			h.liveClientsLocked(-1)
		}
		delete(h.subscribers, userID)
	}
}

// Subscribe registers a receiver for userID's events.
func (h *Hub) Subscribe(userID string) <-chan journal.Event {
	sub := &Subscriber{
		UserID:    userID,
		Channel:   make(chan journal.Event, h.config.SubscriberBufferSize),
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[userID] = append(h.subscribers[userID], sub)
	h.liveClientsLocked(1)
	h.mu.Unlock()

	return sub.Channel
}

// Unsubscribe removes and closes a channel returned by Subscribe. Unknown or
// already closed channels are ignored.
func (h *Hub) Unsubscribe(userID string, ch <-chan journal.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[userID]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.liveClientsLocked(-1)
			h.subscribers[userID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[userID]) == 0 {
		delete(h.subscribers, userID)
	}
}

// Publish queues an event for distribution. It never blocks: when the queue
// is full the event is dropped.
func (h *Hub) Publish(e journal.Event) {
	select {
	case h.events <- e:
	default:
		h.eventsDropped.Add(1)
	}
}

// broadcast delivers an event to the user's subscribers. The read lock is
// held across the sends so Stop cannot close a channel mid-send.
func (h *Hub) broadcast(e journal.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[e.UserID] {
		select {
		case sub.Channel <- e:
			sub.dropped.Store(0)
			h.eventsDelivered.Add(1)
		default:
			h.eventsDropped.Add(1)
			n := sub.dropped.Add(1)
			if h.config.SlowConsumerDropThreshold > 0 && n == int64(h.config.SlowConsumerDropThreshold) {
				h.log.Warn().Str("user_id", e.UserID).Int64("dropped", n).Msg("Slow live subscriber")
			}
		}
	}
}

func (h *Hub) liveClientsLocked(delta float64) {
	if h.metrics != nil {
		h.metrics.LiveClients.Add(delta)
	}
}

// SubscriberCount returns the number of subscribers for a user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

// TotalSubscriberCount returns the number of subscribers across all users.
func (h *Hub) TotalSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subs := range h.subscribers {
		count += len(subs)
	}
	return count
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	EventsReceived  uint64
	EventsDelivered uint64
	EventsDropped   uint64
	Subscribers     int
	Users           int
}

// Metrics returns a snapshot of the hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	users := len(h.subscribers)
	h.mu.RUnlock()

	return HubMetrics{
		EventsReceived:  h.eventsReceived.Load(),
		EventsDelivered: h.eventsDelivered.Load(),
		EventsDropped:   h.eventsDropped.Load(),
		Subscribers:     h.TotalSubscriberCount(),
		Users:           users,
	}
}

// IsStarted reports whether the distribution loop is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

var _ journal.Publisher = (*Hub)(nil)
