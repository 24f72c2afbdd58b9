package pool

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/identity"
	"github.com/oxidex/peerpool/store"
	"github.com/oxidex/peerpool/wire"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func newTestPool(t *testing.T, mutate func(*Config)) (*Pool, *identity.Secp256k1Key) {
	t.Helper()
	key, err := identity.NewSecp256k1Key()
	require.NoError(t, err)
	cfg := Config{Listen: true, Port: 0}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg, key, store.NewMemoryStore(), testLog())
	require.NoError(t, err)
	require.NoError(t, p.Init())
	t.Cleanup(p.Disconnect)
	return p, key
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func connectPools(t *testing.T, a, b *Pool) {
	t.Helper()
	addr := address.New("127.0.0.1", a.ListenPort())
	_, err := b.AddOutbound(addr, a.key.PubKey(), false, nil)
	require.NoError(t, err)
	waitForCondition(t, 2*time.Second, func() bool {
		return len(a.ListPeers()) == 1 && len(b.ListPeers()) == 1
	})
}

// Scenario 1: Self-dial — addOutbound to our own pubkey is rejected
// without ever touching the network.
func TestAddOutboundRejectsSelf(t *testing.T) {
	p, key := newTestPool(t, nil)
	addr := address.New("127.0.0.1", p.ListenPort())
	_, err := p.AddOutbound(addr, key.PubKey(), false, nil)
	require.ErrorIs(t, err, ErrAttemptedConnectionToSelf)
}

// A successful reachability probe against our own listener surfaces
// ConnectedToSelf without ever publishing a peer.active event.
func TestProbeReachabilityDetectsSelf(t *testing.T) {
	p, _ := newTestPool(t, nil)
	ch, unsubscribe := p.Bus().Subscribe("peer.active", 4)
	defer unsubscribe()

	p.bgWG.Add(1)
	p.probeReachability(address.New("127.0.0.1", p.ListenPort()))

	select {
	case <-ch:
		t.Fatal("probe connection must never be admitted as a peer")
	case <-time.After(100 * time.Millisecond):
	}
	require.Empty(t, p.ListPeers())
}

// Two pools dialing each other complete the handshake and both sides end
// up admitted.
func TestTwoPoolsHandshakeAndAdmit(t *testing.T) {
	a, _ := newTestPool(t, nil)
	b, _ := newTestPool(t, nil)
	connectPools(t, a, b)

	require.Len(t, a.ListPeers(), 1)
	require.Len(t, b.ListPeers(), 1)
	require.Equal(t, b.key.PubKey(), a.ListPeers()[0].NodePubKey())
}

// Scenario 2: duplicate connection race. Two simultaneous connections
// between the same pair of pools resolve to exactly one admitted peer on
// each side, regardless of which socket wins. Run in a loop per the
// testable-property's explicit regression-test requirement.
func TestDuplicateConnectionResolvesToOnePeer(t *testing.T) {
	for i := 0; i < 50; i++ {
		func() {
			a, _ := newTestPool(t, nil)
			b, _ := newTestPool(t, nil)

			addrA := address.New("127.0.0.1", a.ListenPort())
			addrB := address.New("127.0.0.1", b.ListenPort())

			done := make(chan struct{}, 2)
			go func() { _, _ = a.AddOutbound(addrB, b.key.PubKey(), false, nil); done <- struct{}{} }()
			go func() { _, _ = b.AddOutbound(addrA, a.key.PubKey(), false, nil); done <- struct{}{} }()
			<-done
			<-done

			waitForCondition(t, 2*time.Second, func() bool {
				return len(a.ListPeers()) >= 1 && len(b.ListPeers()) >= 1
			})
			// allow the loser of the race time to fully close
			time.Sleep(50 * time.Millisecond)

			require.Len(t, a.ListPeers(), 1, "iteration %d", i)
			require.Len(t, b.ListPeers(), 1, "iteration %d", i)

			a.Disconnect()
			b.Disconnect()
		}()
	}
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return uint16(port)
}

// Scenario 3: gossip propagation. A third pool learns of B's address via
// A's GetNodes/Nodes exchange and connects to it. B needs a known,
// advertised listening address for A to be able to gossip it onward.
func TestGossipPropagation(t *testing.T) {
	bPort := freePort(t)
	a, _ := newTestPool(t, func(c *Config) { c.Discover = true })
	b, _ := newTestPool(t, func(c *Config) {
		c.Discover = true
		c.Port = bPort
		c.Addresses = []string{fmt.Sprintf("127.0.0.1:%d", bPort)}
	})
	c, _ := newTestPool(t, func(c *Config) { c.Discover = true })

	connectPools(t, a, b)
	// c dials a directly: a already has b as a peer, so connectPools'
	// one-peer-each condition does not apply to this second connection.
	_, err := c.AddOutbound(address.New("127.0.0.1", a.ListenPort()), a.key.PubKey(), false, nil)
	require.NoError(t, err)

	waitForCondition(t, 3*time.Second, func() bool {
		for _, pr := range c.ListPeers() {
			if string(pr.NodePubKey()) == string(b.key.PubKey()) {
				return true
			}
		}
		return false
	})
}

// Scenario 4: version rejection. A node below our minimum compatible
// version never reaches admission.
func TestIncompatibleVersionRejected(t *testing.T) {
	a, _ := newTestPool(t, func(c *Config) { c.OurVersion = "2.0.0"; c.MinCompatibleVersion = "2.0.0" })
	b, _ := newTestPool(t, func(c *Config) { c.OurVersion = "1.0.0"; c.MinCompatibleVersion = "1.0.0" })

	addr := address.New("127.0.0.1", a.ListenPort())
	_, err := b.AddOutbound(addr, a.key.PubKey(), false, nil)
	require.NoError(t, err) // dial succeeds; handshake fails asynchronously

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, a.ListPeers())
	require.Empty(t, b.ListPeers())
}

// Scenario 5: ban cascade. Banning a connected node's pubkey closes its
// live connection.
func TestBanCascadeClosesLivePeer(t *testing.T) {
	a, _ := newTestPool(t, nil)
	b, _ := newTestPool(t, nil)
	connectPools(t, a, b)

	require.NoError(t, a.BanNode(b.key.PubKey()))

	waitForCondition(t, 2*time.Second, func() bool {
		return len(a.ListPeers()) == 0
	})
}

// Unbanning a node that was never banned is rejected.
func TestUnbanNotBannedRejected(t *testing.T) {
	p, _ := newTestPool(t, nil)
	key, err := identity.NewSecp256k1Key()
	require.NoError(t, err)
	err = p.UnbanNode(key.PubKey(), false)
	require.ErrorIs(t, err, ErrNodeNotBanned)
}

// ClosePeer with an explicit reason closes the named connection.
func TestClosePeerByReason(t *testing.T) {
	a, _ := newTestPool(t, nil)
	b, _ := newTestPool(t, nil)
	connectPools(t, a, b)

	reason := wire.DiscWireProtocolErr
	require.NoError(t, a.ClosePeer(b.key.PubKey(), &reason))

	waitForCondition(t, 2*time.Second, func() bool {
		return len(a.ListPeers()) == 0
	})
}

// BroadcastOrder only reaches peers advertising the order's pair.
func TestBroadcastOrderFiltersByPair(t *testing.T) {
	a, _ := newTestPool(t, nil)
	b, _ := newTestPool(t, nil)
	connectPools(t, a, b)

	b.UpdatePairs([]string{"BTC_ETH"})
	waitForCondition(t, 2*time.Second, func() bool {
		return len(a.ListPeers()[0].NodeState().Pairs) == 1
	})

	ch, unsubscribe := b.Bus().Subscribe("packet.order", 4)
	defer unsubscribe()

	a.BroadcastOrder(&wire.Order{PairID: "BTC_ETH", Payload: []byte("o1")})
	a.BroadcastOrder(&wire.Order{PairID: "LTC_BTC", Payload: []byte("o2")})

	select {
	case evt := <-ch:
		pe, ok := evt.Payload.(PacketEvent)
		require.True(t, ok)
		order, ok := pe.Packet.Body.(*wire.Order)
		require.True(t, ok)
		require.Equal(t, "BTC_ETH", order.PairID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the BTC_ETH order to reach b")
	}
	select {
	case <-ch:
		t.Fatal("the LTC_BTC order must not reach b, which does not advertise that pair")
	case <-time.After(200 * time.Millisecond):
	}
}

// Stats reflects admitted-peer count.
func TestStatsReflectsPeerCount(t *testing.T) {
	a, _ := newTestPool(t, nil)
	b, _ := newTestPool(t, nil)
	require.EqualValues(t, 0, a.Stats().PeersConnected)
	connectPools(t, a, b)
	require.EqualValues(t, 1, a.Stats().PeersConnected)
}

// Disconnect is idempotent and releases the listening socket.
func TestDisconnectIdempotent(t *testing.T) {
	p, _ := newTestPool(t, nil)
	p.Disconnect()
	p.Disconnect()
	require.False(t, p.Connected())
}

func TestResolveAliasUnknown(t *testing.T) {
	p, _ := newTestPool(t, nil)
	_, err := p.ResolveAlias("nonexistent-alias")
	require.Error(t, err)
}

