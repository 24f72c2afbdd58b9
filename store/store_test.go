package store

import (
	"os"
	"testing"
	"time"

	"github.com/oxidex/peerpool/address"
	"github.com/stretchr/testify/require"
)

func sampleNode() *Node {
	return &Node{
		PubKey: []byte{0x02, 0xaa, 0xbb, 0xcc},
		Addresses: []address.Address{
			{Host: "10.0.0.1", Port: 8333, LastConnected: time.Unix(1000, 0)},
			{Host: "example.onion", Port: 8333},
		},
		ReputationScore: 42,
		Banned:          false,
	}
}

func testStore(t *testing.T, s NodeStore) {
	t.Helper()

	n := sampleNode()
	n.LastAddress = &n.Addresses[0]
	require.NoError(t, s.Upsert(n))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, n.PubKey, loaded[0].PubKey)
	require.Equal(t, n.ReputationScore, loaded[0].ReputationScore)
	require.Len(t, loaded[0].Addresses, 2)
	require.True(t, loaded[0].Addresses[0].LastConnected.Equal(n.Addresses[0].LastConnected))
	require.NotNil(t, loaded[0].LastAddress)

	n.ReputationScore = -5
	n.Banned = true
	require.NoError(t, s.Upsert(n))
	loaded, err = s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, -5, loaded[0].ReputationScore)
	require.True(t, loaded[0].Banned)

	require.NoError(t, s.Remove(n.PubKey))
	loaded, err = s.Load()
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLevelStore(t *testing.T) {
	dir, err := os.MkdirTemp("", "peerpool-nodestore-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := OpenLevelStore(dir)
	require.NoError(t, err)
	defer s.Close()

	testStore(t, s)
}

func TestLevelStoreRejectsEmptyPubKey(t *testing.T) {
	dir, err := os.MkdirTemp("", "peerpool-nodestore-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := OpenLevelStore(dir)
	require.NoError(t, err)
	defer s.Close()

	require.Error(t, s.Upsert(&Node{}))
}

func TestNodeMarkConnected(t *testing.T) {
	n := sampleNode()
	at := time.Now()
	n.MarkConnected(address.New("10.0.0.1", 8333), at)
	require.True(t, n.Addresses[0].LastConnected.Equal(at))
	require.Same(t, &n.Addresses[0], n.LastAddress)

	n.MarkConnected(address.New("192.168.1.1", 9000), at)
	require.Len(t, n.Addresses, 3)
	require.True(t, n.Addresses[2].LastConnected.Equal(at))
}

func TestTouchLastConnectedPreservesMatchingEntries(t *testing.T) {
	existing := []address.Address{
		{Host: "10.0.0.1", Port: 8333, LastConnected: time.Unix(500, 0)},
	}
	incoming := []address.Address{
		{Host: "10.0.0.1", Port: 8333},
		{Host: "10.0.0.2", Port: 8333},
	}
	out := touchLastConnected(existing, incoming)
	require.True(t, out[0].LastConnected.Equal(time.Unix(500, 0)))
	require.True(t, out[1].LastConnected.IsZero())
}
