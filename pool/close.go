package pool

import (
	"sync/atomic"

	"github.com/oxidex/peerpool/common/mclock"
	"github.com/oxidex/peerpool/eventbus"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/wire"
)

// onPeerClosed handles every Peer's OnClose callback, admitted or not.
// Peers that never reached admission (failed handshake, lost a duplicate-
// connection race) are simply absent from st.peers and this is a no-op;
// their cleanup already happened via onHandshakeResult or
// resolveDuplicate.
func (p *Pool) onPeerClosed(st *runState, evt *closeEvent) {
	var key string
	var entry *peerEntry
	for k, e := range st.peers {
		if e.peer == evt.p {
			key, entry = k, e
			break
		}
	}
	if key == "" {
		return
	}
	delete(st.peers, key)
	evt.p.SetActive(false)
	atomic.StoreInt64(&p.counters.peersConnected, int64(len(st.peers)))

	p.log.WithField("alias", evt.p.Alias()).
		WithField("duration", mclock.Now().Sub(entry.connectedAt)).
		WithField("peers", len(st.peers)).
		Info("peer disconnected")

	reconnect := p.shouldReconnect(evt.p, evt.sent, evt.recv)
	p.bus.Publish(eventbus.TopicPeerClose, PeerCloseEvent{
		PubKey:    evt.p.NodePubKey(),
		Alias:     evt.p.Alias(),
		Sent:      evt.sent,
		Recv:      evt.recv,
		Reconnect: reconnect,
	})

	if reconnect {
		p.scheduleReconnect(evt.p.NodePubKey())
	}
}

// shouldReconnect decides whether a closed outbound peer is worth
// retrying, based on direction, pool state, and the disconnection
// reasons on each side.
func (p *Pool) shouldReconnect(pr *peer.Peer, sent, recv *wire.DisconnectionReason) bool {
	if pr.Direction() != peer.Outbound {
		return false
	}
	if p.disconnecting.Load() || !p.connected.Load() {
		return false
	}
	pubKey := pr.NodePubKey()
	if len(pubKey) == 0 {
		return false
	}
	if sent != nil && *sent != wire.DiscResponseStalling {
		return false
	}
	if recv != nil {
		switch *recv {
		case wire.DiscResponseStalling, wire.DiscAlreadyConnected, wire.DiscShutdown:
		default:
			return false
		}
	}
	n, ok := p.nodes.Get(pubKey)
	if !ok {
		return false
	}
	return len(n.Addresses) > 0 || n.LastAddress != nil
}

func (p *Pool) scheduleReconnect(pubKey []byte) {
	n, ok := p.nodes.Get(pubKey)
	if !ok {
		return
	}
	p.reconnectWG.Add(1)
	go func() {
		defer p.reconnectWG.Done()
		p.tryConnectNode(n, true)
	}()
}
