package broadcast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingopad/lexsync/pkg/broadcast"
	"github.com/lingopad/lexsync/pkg/core"
)

func event(id, eventID, parentRef string) core.Event {
	return core.Event{
		EventID:   eventID,
		Type:      core.EventUpdated,
		Kind:      core.KindNote,
		ID:        id,
		ParentRef: parentRef,
	}
}

func recv(t *testing.T, ch <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return core.Event{}
	}
}

func TestBroker_FanOut(t *testing.T) {
	broker := broadcast.NewBroker(0, nil)
	defer broker.Close()

	first, cancelFirst := broker.Subscribe("")
	second, cancelSecond := broker.Subscribe("")
	defer cancelFirst()
	defer cancelSecond()

	broker.Publish(event("n1", "e1", "daily"))

	assert.Equal(t, "n1", recv(t, first).ID)
	assert.Equal(t, "n1", recv(t, second).ID)
}

func TestBroker_FilterByTopic(t *testing.T) {
	broker := broadcast.NewBroker(0, nil)
	defer broker.Close()

	daily, cancelDaily := broker.Subscribe("notes/daily")
	all, cancelAll := broker.Subscribe("notes/**")
	defer cancelDaily()
	defer cancelAll()

	broker.Publish(event("n1", "e1", "weekly"))
	broker.Publish(event("n2", "e2", "daily"))

	// The scoped subscriber only sees its group.
	assert.Equal(t, "n2", recv(t, daily).ID)
	select {
	case ev := <-daily:
		t.Fatalf("unexpected event for scoped subscriber: %v", ev)
	default:
	}

	// The wildcard subscriber sees both.
	assert.Equal(t, "n1", recv(t, all).ID)
	assert.Equal(t, "n2", recv(t, all).ID)
}

func TestBroker_DeduplicatesByEventID(t *testing.T) {
	broker := broadcast.NewBroker(0, nil)
	defer broker.Close()

	events, cancel := broker.Subscribe("")
	defer cancel()

	broker.Publish(event("n1", "e1", "daily"))
	broker.Publish(event("n1", "e1", "daily")) // Replay, e.g. from the spool.

	assert.Equal(t, "e1", recv(t, events).EventID)
	select {
	case ev := <-events:
		t.Fatalf("duplicate delivered: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	// Buffer of one and no reader: the second publish must not block.
	broker := broadcast.NewBroker(1, nil)
	defer broker.Close()

	events, cancel := broker.Subscribe("")
	defer cancel()

	done := make(chan struct{})
	go func() {
		broker.Publish(event("n1", "e1", "daily"))
		broker.Publish(event("n2", "e2", "daily"))
		broker.Publish(event("n3", "e3", "daily"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on saturated subscriber")
	}

	// The first event was delivered, the overflow dropped.
	assert.Equal(t, "n1", recv(t, events).ID)

	state, ok := broker.State().(broadcast.BrokerState)
	require.True(t, ok)
	assert.Equal(t, 2, state.Dropped)
}

func TestBroker_CancelIsIdempotent(t *testing.T) {
	broker := broadcast.NewBroker(0, nil)
	defer broker.Close()

	events, cancel := broker.Subscribe("")
	cancel()
	cancel() // Second cancel must not panic or double-close.

	_, open := <-events
	assert.False(t, open)
}
