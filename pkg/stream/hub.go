package stream

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

// HubConfig holds the fan-out policy
type HubConfig struct {
	// SubscriberBuffer is the channel capacity given to each subscriber
	SubscriberBuffer int `json:"subscriber_buffer" mapstructure:"subscriber_buffer"`
	// DropWhenFull drops buffers for a subscriber whose channel is full
	// instead of blocking the publisher
	DropWhenFull bool `json:"drop_when_full" mapstructure:"drop_when_full"`
}

// DefaultHubConfig blocks the publisher on slow subscribers
func DefaultHubConfig() HubConfig {
	return HubConfig{SubscriberBuffer: 8}
}

// Hub fans published buffers out to every subscriber in publish order.
//
// Publish and Close must be called by a single producer. Subscribe and
// Subscription.Cancel may be called from any goroutine.
type Hub struct {
	config HubConfig

	// sendMu serializes sends with channel closes
	sendMu sync.Mutex

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// Subscription is one subscriber's view of a Hub. C is closed at end of stream.
type Subscription struct {
	C <-chan audio.SampleBuffer

	id      uint64
	ch      chan audio.SampleBuffer
	done    chan struct{}
	once    sync.Once
	hub     *Hub
	dropped atomic.Uint64
}

// NewHub creates a hub with the given policy
func NewHub(config HubConfig) *Hub {
	if config.SubscriberBuffer < 0 {
		config.SubscriberBuffer = 0
	}
	return &Hub{
		config: config,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed hub returns
// a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan audio.SampleBuffer, h.config.SubscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, done: make(chan struct{}), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	sub.id = h.nextID
	h.nextID++
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers buf to every subscriber. In blocking mode it waits for
// each subscriber to accept the buffer or for ctx to end.
func (h *Hub) Publish(ctx context.Context, buf audio.SampleBuffer) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	slices.SortFunc(subs, func(a, b *Subscription) int {
		return cmp.Compare(a.id, b.id)
	})

	for _, sub := range subs {
		if h.config.DropWhenFull {
			select {
			case sub.ch <- buf:
			case <-sub.done:
			default:
				sub.dropped.Add(1)
			}
			continue
		}

		select {
		case sub.ch <- buf:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close ends the stream for every subscriber. It is safe to call more than once.
func (h *Hub) Close() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.once.Do(func() { close(sub.done) })
		close(sub.ch)
		delete(h.subs, id)
	}
}

// Subscribers returns the number of active subscriptions
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Cancel detaches the subscription and closes C. Buffers still queued in C
// may be drained.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)

		h := s.hub
		h.sendMu.Lock()
		defer h.sendMu.Unlock()

		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.subs[s.id]; ok {
			delete(h.subs, s.id)
			close(s.ch)
		}
	})
}

// Dropped returns the number of buffers this subscriber missed because its
// channel was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
