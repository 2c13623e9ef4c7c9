// Package notification provides the notification manager for broadcasting mixer events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

const (
	// defaultSendTimeout bounds how long Broadcast waits on one subscriber.
	defaultSendTimeout = 500 * time.Millisecond
	// queueSize is the number of events a slow subscriber may lag behind.
	queueSize = 32
)

// EventType identifies what happened.
type EventType string

const (
	EventTrackSubmitted   EventType = "track_submitted"
	EventSourceEvicted    EventType = "source_evicted"
	EventNoDistinctTrack  EventType = "no_distinct_track"
	EventTickFailed       EventType = "tick_failed"
	EventThrottled        EventType = "throttled"
	EventMixChanged       EventType = "mix_changed"
	EventLibraryRefreshed EventType = "library_refreshed"
)

// Event is a notification delivered to every subscriber.
type Event struct {
	SequenceNo uint64    `json:"sequence_no"`
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	SourceID   string    `json:"source_id,omitempty"`
	TrackID    string    `json:"track_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	Time       time.Time `json:"time"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Event) error
}

// delivery is one event queued for a subscriber's sender.
type delivery struct {
	event  Event
	result chan error
}

// subscription represents a subscriber's subscription. Its sender goroutine
// is the only caller of stream.Send, so sends to a stream never overlap.
type subscription struct {
	id     string
	stream Stream
	queue  chan delivery
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Option configures a Manager.
type Option func(*Manager)

// WithSendTimeout sets how long Broadcast waits on each subscriber.
func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sendTimeout = d
		}
	}
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	sub := &subscription{
		id:     uuid.New().String(),
		stream: stream,
		queue:  make(chan delivery, queueSize),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	m.mu.Unlock()

	go m.send(sub)
	return sub.id
}

// send delivers queued events in order until the subscription stops or a
// send fails.
func (m *Manager) send(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case d := <-sub.queue:
			err := sub.stream.Send(&d.event)
			d.result <- err
			if err != nil {
				zlog.Debug().Msgf("notification: dropping subscriber: subscription_id=%s error=%v", sub.id, err)
				m.Unsubscribe(sub.id)
				return
			}
		}
	}
}

// Unsubscribe removes a subscription and stops its sender.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[subscriptionID]
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// Publish stamps the event and broadcasts it.
func (m *Manager) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	m.Broadcast(&event)
}

// Broadcast queues an event for every subscriber and waits up to the send
// timeout for each delivery. A subscriber that is still busy keeps the event
// queued; one whose queue is full misses it. Subscribers whose send fails
// are removed.
func (m *Manager) Broadcast(event *Event) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	event.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			// Each subscriber gets its own copy.
			d := delivery{event: *event, result: make(chan error, 1)}
			select {
			case s.queue <- d:
			case <-s.done:
				return
			default:
				zlog.Debug().Msgf("notification: queue full, event dropped: subscription_id=%s sequence_no=%d", s.id, event.SequenceNo)
				return
			}

			select {
			case err := <-d.result:
				if err != nil {
					m.Unsubscribe(s.id)
				}
			case <-s.done:
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: subscription_id=%s", s.id)
			}
		}(sub)
	}

	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[string]*subscription)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}
