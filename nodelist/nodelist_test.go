package nodelist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/eventbus"
	"github.com/oxidex/peerpool/reputation"
	"github.com/oxidex/peerpool/store"
)

func newTestList(t *testing.T) *NodeList {
	t.Helper()
	return New(store.NewMemoryStore(), nil, nil)
}

func pub(b byte) []byte {
	return []byte{b, b, b, b}
}

func TestCreateNodeRejectsDuplicate(t *testing.T) {
	l := newTestList(t)
	n := &store.Node{PubKey: pub(1)}
	require.NoError(t, l.CreateNode(n))
	require.ErrorIs(t, l.CreateNode(n), ErrNodeExists)
	require.Equal(t, 1, l.Count())
}

func TestGetAliasIsDeterministicAndReversible(t *testing.T) {
	l := newTestList(t)
	n := &store.Node{PubKey: pub(2)}
	require.NoError(t, l.CreateNode(n))

	alias := l.GetAlias(n.PubKey)
	require.NotEmpty(t, alias)

	got, err := l.GetPubKeyForAlias(alias)
	require.NoError(t, err)
	require.Equal(t, n.PubKey, got)

	_, err = l.GetPubKeyForAlias("not-a-real-alias")
	require.ErrorIs(t, err, ErrUnknownAlias)
}

func TestUpdateAddressesPreservesLastConnected(t *testing.T) {
	l := newTestList(t)
	n := &store.Node{PubKey: pub(3)}
	require.NoError(t, l.CreateNode(n))

	first := []address.Address{{Host: "1.1.1.1", Port: 1}}
	require.NoError(t, l.UpdateAddresses(n.PubKey, first, nil))

	got, _ := l.Get(n.PubKey)
	require.True(t, got.Addresses[0].LastConnected.IsZero())

	got.MarkConnected(first[0], time.Now())
	require.NoError(t, l.UpdateAddresses(n.PubKey, got.Addresses, nil))

	second := []address.Address{{Host: "1.1.1.1", Port: 1}, {Host: "2.2.2.2", Port: 2}}
	require.NoError(t, l.UpdateAddresses(n.PubKey, second, nil))

	final, _ := l.Get(n.PubKey)
	require.False(t, final.Addresses[0].LastConnected.IsZero())
	require.True(t, final.Addresses[1].LastConnected.IsZero())
}

func TestAddReputationEventAutoBans(t *testing.T) {
	bus, err := newTestBus(t)
	require.NoError(t, err)
	defer bus.Stop()

	l := New(store.NewMemoryStore(), bus, nil)
	n := &store.Node{PubKey: pub(4)}
	require.NoError(t, l.CreateNode(n))

	ch, unsubscribe := bus.Subscribe(eventbus.TopicNodeBan, 2)
	defer unsubscribe()

	require.NoError(t, l.AddReputationEvent(n.PubKey, reputation.SwapAbuse))
	require.NoError(t, l.AddReputationEvent(n.PubKey, reputation.SwapAbuse))
	require.True(t, l.IsBanned(n.PubKey))

	select {
	case evt := <-ch:
		require.Equal(t, eventbus.TopicNodeBan, evt.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected a node.ban event")
	}
}

func TestManualBanIsNeverOffsettable(t *testing.T) {
	l := newTestList(t)
	n := &store.Node{PubKey: pub(5)}
	require.NoError(t, l.CreateNode(n))

	require.NoError(t, l.AddReputationEvent(n.PubKey, reputation.ManualBan))
	require.True(t, l.IsBanned(n.PubKey))

	for i := 0; i < 1000; i++ {
		require.NoError(t, l.AddReputationEvent(n.PubKey, reputation.SwapSuccess))
	}
	got, _ := l.Get(n.PubKey)
	require.True(t, got.Banned)
	require.Less(t, got.ReputationScore, reputation.BanThreshold)
}

func TestBanUnbanIdempotence(t *testing.T) {
	l := newTestList(t)
	n := &store.Node{PubKey: pub(6)}
	require.NoError(t, l.CreateNode(n))

	require.NoError(t, l.Ban(n.PubKey))
	require.ErrorIs(t, l.Ban(n.PubKey), ErrAlreadyBanned)

	require.NoError(t, l.UnBan(n.PubKey))
	require.ErrorIs(t, l.UnBan(n.PubKey), ErrNotBanned)
}

func TestForEachVisitsInsertionOrder(t *testing.T) {
	l := newTestList(t)
	for _, b := range []byte{10, 20, 30} {
		require.NoError(t, l.CreateNode(&store.Node{PubKey: pub(b)}))
	}
	var seen []byte
	l.ForEach(func(n *store.Node) bool {
		seen = append(seen, n.PubKey[0])
		return true
	})
	require.Equal(t, []byte{10, 20, 30}, seen)
}

func TestPurgeBannedRemovesOnlyBannedNodes(t *testing.T) {
	l := newTestList(t)
	keep := &store.Node{PubKey: pub(7)}
	gone := &store.Node{PubKey: pub(8)}
	require.NoError(t, l.CreateNode(keep))
	require.NoError(t, l.CreateNode(gone))
	require.NoError(t, l.Ban(gone.PubKey))

	require.Equal(t, 1, l.PurgeBanned())
	require.True(t, l.Has(keep.PubKey))
	require.False(t, l.Has(gone.PubKey))
	require.Equal(t, 1, l.Count())
}

func newTestBus(t *testing.T) (*eventbus.Bus, error) {
	t.Helper()
	return eventbus.New("nodelist_test_bus")
}
