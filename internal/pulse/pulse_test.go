package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{CycleID: 8, ReceiptsCount: 3})

	select {
	case ev := <-ch:
		require.Equal(t, uint64(8), ev.CycleID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pulse event")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < bufferSize+10; i++ {
		b.Publish(Event{CycleID: uint64(i)})
	}
	// Must not deadlock or panic; excess events are dropped.
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	require.Equal(t, 0, b.SubscriberCount())
	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestSubscriberCount(t *testing.T) {
	b := NewBus()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	require.Equal(t, 2, b.SubscriberCount())
}
