package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerFanout(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	first := b.Subscribe()
	second := b.Subscribe()
	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventTaskAssigned, WorkerID: "w1", TaskID: "run:a"})

	for _, sub := range []Subscriber{first, second} {
		e := receive(t, sub)
		assert.Equal(t, EventTaskAssigned, e.Type)
		assert.Equal(t, "w1", e.WorkerID)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestBrokerFiltersByType(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	workers := b.Subscribe(EventWorkerAdded, EventWorkerRemoved)
	all := b.Subscribe()

	b.Publish(&Event{Type: EventTaskAssigned})
	b.Publish(&Event{Type: EventWorkerRemoved, WorkerID: "w2"})

	assert.Equal(t, EventTaskAssigned, receive(t, all).Type)
	assert.Equal(t, EventWorkerRemoved, receive(t, all).Type)

	e := receive(t, workers)
	assert.Equal(t, EventWorkerRemoved, e.Type)
	select {
	case extra := <-workers:
		t.Fatalf("unexpected event %s", extra.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBrokerPreservesOrder(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	for _, id := range []string{"a", "b", "c"} {
		b.Publish(&Event{Type: EventTaskOrphaned, TaskID: id})
	}

	assert.Equal(t, "a", receive(t, sub).TaskID)
	assert.Equal(t, "b", receive(t, sub).TaskID)
	assert.Equal(t, "c", receive(t, sub).TaskID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Zero(t, b.SubscriberCount())
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(&Event{Type: EventTaskRejected})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}

func TestSlowSubscriberMissesEvents(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	for i := 0; i < cap(sub)+5; i++ {
		b.broadcast(&Event{Type: EventTaskAssigned})
	}

	assert.Len(t, sub, cap(sub))
	assert.Equal(t, uint64(5), b.Dropped())
}
