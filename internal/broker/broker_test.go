package broker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"wireloop/internal/stream"
)

func TestActiveReflectsSubscriberCount(t *testing.T) {
	m := NewManager(uuid.New())
	assert.False(t, m.Active())

	s := &subscriber{sendCh: make(chan any, 1), done: make(chan struct{})}
	m.register(s)
	assert.True(t, m.Active())

	m.unregister(s)
	assert.False(t, m.Active())
}

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	m := NewManager(uuid.New())
	a := &subscriber{sendCh: make(chan any, 1), done: make(chan struct{})}
	b := &subscriber{sendCh: make(chan any, 1), done: make(chan struct{})}
	m.register(a)
	m.register(b)

	m.Publish(StatusMessage{NetworkTime: 1.5, Dispatched: 3})

	gotA := (<-a.sendCh).(StatusMessage)
	gotB := (<-b.sendCh).(StatusMessage)
	assert.Equal(t, 1.5, gotA.NetworkTime)
	assert.Equal(t, 1.5, gotB.NetworkTime)
	assert.NotEmpty(t, gotA.RunID)
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	m := NewManager(uuid.New())
	s := &subscriber{sendCh: make(chan any, 1), done: make(chan struct{})}
	m.register(s)

	m.Publish(StatusMessage{Dispatched: 1})
	m.Publish(StatusMessage{Dispatched: 2}) // buffer full, dropped, must not block

	got := (<-s.sendCh).(StatusMessage)
	assert.Equal(t, 1, got.Dispatched)
}

func TestPublishStreamEventFansOutToSubscribers(t *testing.T) {
	m := NewManager(uuid.New())
	s := &subscriber{sendCh: make(chan any, 1), done: make(chan struct{})}
	m.register(s)

	m.PublishStreamEvent(7, &stream.HTTPTransaction{Method: "GET", URL: "/widgets", StatusCode: 200})

	got := (<-s.sendCh).(StreamEvent)
	assert.Equal(t, uint64(7), got.StreamID)
	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, "/widgets", got.URL)
	assert.Equal(t, 200, got.Status)
	assert.NotEmpty(t, got.RunID)
}

func TestPublishStreamEventIgnoresNilTransaction(t *testing.T) {
	m := NewManager(uuid.New())
	s := &subscriber{sendCh: make(chan any, 1), done: make(chan struct{})}
	m.register(s)

	m.PublishStreamEvent(1, nil)

	select {
	case <-s.sendCh:
		t.Fatal("expected no event for a nil transaction")
	default:
	}
}
