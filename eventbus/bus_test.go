package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus, err := New("test_bus_1")
	require.NoError(t, err)
	defer bus.Stop()

	ch, unsubscribe := bus.Subscribe(TopicPeerActive, 4)
	defer unsubscribe()

	bus.Publish(TopicPeerActive, "peer-1")

	select {
	case evt := <-ch:
		require.Equal(t, TopicPeerActive, evt.Topic)
		require.Equal(t, "peer-1", evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus, err := New("test_bus_2")
	require.NoError(t, err)
	defer bus.Stop()

	ch, unsubscribe := bus.Subscribe(TopicNodeBan, 4)
	unsubscribe()

	bus.Publish(TopicNodeBan, []byte("pubkey"))

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected closed channel, got neither value nor close")
	}
}

func TestDispatchDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus, err := New("test_bus_3")
	require.NoError(t, err)
	defer bus.Stop()

	ch, unsubscribe := bus.Subscribe(TopicPeerClose, 1)
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		bus.Publish(TopicPeerClose, i)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected at least one delivered event")
	}
}
