package peer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/identity"
	"github.com/oxidex/peerpool/wire"
)

func testAddr() address.Address { return address.New("127.0.0.1", 1) }

// connPair returns both ends of a loopback TCP connection. Unlike
// net.Pipe, a TCP socket buffers writes, so both sides can send their
// Hello before either reads.
func connPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := l.Accept()
		accepted <- c
	}()
	dialed, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	return dialed, <-accepted
}

func openPair(t *testing.T, cfg Config) (a, b *Peer, keyA, keyB *identity.Secp256k1Key) {
	t.Helper()
	connA, connB := connPair(t)

	var err error
	keyA, err = identity.NewSecp256k1Key()
	require.NoError(t, err)
	keyB, err = identity.NewSecp256k1Key()
	require.NoError(t, err)

	a = New(connA, Outbound, testAddr(), keyA, identity.VerifySignature, cfg, Callbacks{}, nil)
	b = New(connB, Inbound, testAddr(), keyB, identity.VerifySignature, cfg, Callbacks{}, nil)

	errs := make(chan error, 2)
	go func() { errs <- a.Open(wire.NodeStateBody{}) }()
	go func() { errs <- b.Open(wire.NodeStateBody{}) }()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	return a, b, keyA, keyB
}

func TestHandshakeCompletesBothSidesOpen(t *testing.T) {
	a, b, keyA, keyB := openPair(t, Config{OurVersion: "1.0.0", MinCompatibleVersion: "1.0.0"})
	defer a.Close(nil, nil)
	defer b.Close(nil, nil)

	require.Equal(t, StateOpen, a.State())
	require.Equal(t, StateOpen, b.State())
	require.Equal(t, keyB.PubKey(), a.NodePubKey())
	require.Equal(t, keyA.PubKey(), b.NodePubKey())
	require.NotEmpty(t, a.Alias())
}

func TestHandshakeRejectsIncompatibleVersion(t *testing.T) {
	connA, connB := connPair(t)
	keyA, err := identity.NewSecp256k1Key()
	require.NoError(t, err)
	keyB, err := identity.NewSecp256k1Key()
	require.NoError(t, err)

	a := New(connA, Outbound, testAddr(), keyA, identity.VerifySignature, Config{OurVersion: "2.0.0", MinCompatibleVersion: "1.0.0"}, Callbacks{}, nil)
	b := New(connB, Inbound, testAddr(), keyB, identity.VerifySignature, Config{OurVersion: "0.1.0", MinCompatibleVersion: "1.0.0"}, Callbacks{}, nil)

	errs := make(chan error, 2)
	go func() { errs <- a.Open(wire.NodeStateBody{}) }()
	go func() { errs <- b.Open(wire.NodeStateBody{}) }()

	e1, e2 := <-errs, <-errs
	require.True(t, e1 != nil || e2 != nil)
}

func TestHandshakeRejectsSelfConnection(t *testing.T) {
	connA, connB := connPair(t)
	key, err := identity.NewSecp256k1Key()
	require.NoError(t, err)

	a := New(connA, Outbound, testAddr(), key, identity.VerifySignature, Config{OurVersion: "1.0.0", MinCompatibleVersion: "1.0.0"}, Callbacks{}, nil)
	b := New(connB, Inbound, testAddr(), key, identity.VerifySignature, Config{OurVersion: "1.0.0", MinCompatibleVersion: "1.0.0"}, Callbacks{}, nil)

	errs := make(chan error, 2)
	go func() { errs <- a.Open(wire.NodeStateBody{}) }()
	go func() { errs <- b.Open(wire.NodeStateBody{}) }()

	e1, e2 := <-errs, <-errs
	require.True(t, e1 == ErrConnectedToSelf || e2 == ErrConnectedToSelf)
}

func TestHeartbeatPingPong(t *testing.T) {
	a, b, _, _ := openPair(t, Config{OurVersion: "1.0.0", MinCompatibleVersion: "1.0.0", StallInterval: 50 * time.Millisecond})
	defer a.Close(nil, nil)
	defer b.Close(nil, nil)

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, StateOpen, a.State())
	require.Equal(t, StateOpen, b.State())
}

func TestCloseDeliversOnCloseCallback(t *testing.T) {
	connA, connB := connPair(t)
	keyA, _ := identity.NewSecp256k1Key()
	keyB, _ := identity.NewSecp256k1Key()

	closedCh := make(chan *wire.DisconnectionReason, 1)
	cbB := Callbacks{OnClose: func(p *Peer, sent, recv *wire.DisconnectionReason) {
		closedCh <- recv
	}}

	a := New(connA, Outbound, testAddr(), keyA, identity.VerifySignature, Config{OurVersion: "1.0.0", MinCompatibleVersion: "1.0.0"}, Callbacks{}, nil)
	b := New(connB, Inbound, testAddr(), keyB, identity.VerifySignature, Config{OurVersion: "1.0.0", MinCompatibleVersion: "1.0.0"}, cbB, nil)

	errs := make(chan error, 2)
	go func() { errs <- a.Open(wire.NodeStateBody{}) }()
	go func() { errs <- b.Open(wire.NodeStateBody{}) }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	shutdown := wire.DiscShutdown
	a.Close(&shutdown, nil)

	select {
	case <-closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected b's OnClose to fire after a closed")
	}
}

func TestHigherPubKeyIsConsistentAndAntisymmetric(t *testing.T) {
	a := []byte{0x01, 0x02}
	b := []byte{0x01, 0x03}
	require.True(t, HigherPubKey(b, a))
	require.False(t, HigherPubKey(a, b))
	require.False(t, HigherPubKey(a, a))
}
