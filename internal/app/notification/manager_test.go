package notification

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingStream) Send(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, *e)
	return nil
}

func (s *recordingStream) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type blockingStream struct {
	release chan struct{}
}

func (s *blockingStream) Send(*Event) error {
	<-s.release
	return nil
}

// slowStream records how many sends overlap.
type slowStream struct {
	delay    time.Duration
	inFlight atomic.Int32
	overlaps atomic.Int32
	recordingStream
}

func (s *slowStream) Send(e *Event) error {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	defer s.inFlight.Add(-1)
	time.Sleep(s.delay)
	return s.recordingStream.Send(e)
}

func TestManager_Publish(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	m.Publish(Event{Type: EventTrackSubmitted, TrackID: "t1"})
	m.Publish(Event{Type: EventSourceEvicted, SourceID: "s1"})

	for _, s := range []*recordingStream{a, b} {
		events := s.received()
		require.Len(t, events, 2)
		assert.Equal(t, uint64(1), events[0].SequenceNo)
		assert.Equal(t, uint64(2), events[1].SequenceNo)
		assert.Equal(t, EventTrackSubmitted, events[0].Type)
		assert.Equal(t, "s1", events[1].SourceID)
		assert.False(t, events[0].Time.IsZero())
	}
}

func TestManager_DropsFailingSubscriber(t *testing.T) {
	m := NewManager()
	ok := &recordingStream{}
	broken := &recordingStream{err: errors.New("stream closed")}
	m.Subscribe(ok)
	m.Subscribe(broken)

	m.Publish(Event{Type: EventMixChanged})

	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, ok.received(), 1)
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	slow := &blockingStream{release: make(chan struct{})}
	defer close(slow.release)
	m.Subscribe(slow)

	start := time.Now()
	m.Publish(Event{Type: EventTickFailed})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, m.SubscriberCount(), "timeouts keep the subscription")
}

func TestManager_UnsubscribeAndClose(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)
	m.Subscribe(&recordingStream{})

	m.Unsubscribe(id)
	assert.Equal(t, 1, m.SubscriberCount())

	m.Publish(Event{Type: EventMixChanged})
	assert.Empty(t, s.received())

	m.Close()
	assert.Zero(t, m.SubscriberCount())
}

func TestManager_SendsToOneStreamNeverOverlap(t *testing.T) {
	m := NewManager(WithSendTimeout(10 * time.Millisecond))
	defer m.Close()
	slow := &slowStream{delay: 40 * time.Millisecond}
	m.Subscribe(slow)

	for i := 0; i < 5; i++ {
		m.Publish(Event{Type: EventTrackSubmitted})
	}

	require.Eventually(t, func() bool { return len(slow.received()) == 5 },
		2*time.Second, 10*time.Millisecond)
	assert.Zero(t, slow.overlaps.Load())
	for i, e := range slow.received() {
		assert.Equal(t, uint64(i+1), e.SequenceNo, "events arrive in order")
	}
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_CloseStopsSenders(t *testing.T) {
	m := NewManager(WithSendTimeout(10 * time.Millisecond))
	s := &recordingStream{}
	m.Subscribe(s)
	m.Close()

	m.Publish(Event{Type: EventMixChanged})
	assert.Zero(t, m.SubscriberCount())
	assert.Empty(t, s.received())
}
