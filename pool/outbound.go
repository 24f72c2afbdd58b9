package pool

import (
	"bytes"
	"net"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/store"
)

// AddOutbound dials addr claiming pubKey. The dial
// itself (including backoff retries, if retry is set) runs synchronously
// on the calling goroutine, and closing revokeRetries cancels those
// retries; once a TCP connection is established the handshake continues
// in the background and the Peer is returned immediately so the caller
// holds a handle to it.
func (p *Pool) AddOutbound(addr address.Address, pubKey []byte, retry bool, revokeRetries <-chan struct{}) (*peer.Peer, error) {
	return p.addOutbound(addr, pubKey, retry, revokeRetries)
}

func (p *Pool) addOutbound(addr address.Address, pubKey []byte, retry bool, revokeRetries <-chan struct{}) (*peer.Peer, error) {
	if bytes.Equal(pubKey, p.key.PubKey()) {
		return nil, ErrAttemptedConnectionToSelf
	}
	if addr.IsOnion() && !p.cfg.Tor {
		return nil, ErrNodeTorAddress
	}
	if p.nodes.IsBanned(pubKey) {
		return nil, ErrNodeIsBanned
	}

	key := pubKeyHex(pubKey)
	if _, err := p.do(func(st *runState) (interface{}, error) {
		if _, ok := st.peers[key]; ok {
			return nil, ErrNodeAlreadyConnected
		}
		if _, ok := st.pendingOutbound[key]; ok {
			return nil, ErrAlreadyConnecting
		}
		st.pendingOutbound[key] = nil
		return nil, nil
	}); err != nil {
		return nil, err
	}

	conn, err := p.dial(addr, retry, revokeRetries)
	if err != nil {
		p.do(func(st *runState) (interface{}, error) {
			delete(st.pendingOutbound, key)
			return nil, nil
		})
		return nil, err
	}

	pr := peer.New(conn, peer.Outbound, addr, p.key, p.verify, p.peerConfig(), p.callbacksFor(), p.log)
	pr.SetExpectedNodePubKey(pubKey)

	p.do(func(st *runState) (interface{}, error) {
		st.pendingOutbound[key] = pr
		return nil, nil
	})

	go func() {
		err := pr.Open(p.ourNodeState())
		select {
		case p.handshakeCh <- &handshakeEvent{p: pr, pubKeyHex: key, inbound: false, err: err}:
		case <-p.quit:
		}
	}()

	return pr, nil
}

// dial performs a single attempt when retry is false, or the full
// backoff-bounded retry loop when retry is true.
func (p *Pool) dial(addr address.Address, retry bool, revokeRetries <-chan struct{}) (net.Conn, error) {
	if !retry {
		return net.DialTimeout("tcp", addr.String(), p.cfg.DialTimeout)
	}
	return peer.Dial(addr, p.peerConfig(), revokeRetries)
}

// candidateAddresses orders a node's addresses the way tryConnectNode
// wants them: lastAddress first, then the remaining addresses
// by descending lastConnected, skipping any equal to lastAddress.
func candidateAddresses(n *store.Node) []address.Address {
	var out []address.Address
	if n.LastAddress != nil {
		out = append(out, *n.LastAddress)
	}
	rest := append([]address.Address(nil), n.Addresses...)
	address.SortByLastConnectedDesc(rest)
	for _, a := range rest {
		if n.LastAddress != nil && a.Equal(*n.LastAddress) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// tryConnectNode implements the outbound connection policy: try
// candidates in order, stop on first success; if all fail and
// retryConnecting was requested, retry lastAddress with backoff. Internal
// reconnect attempts use the Pool's dedicated retryCancel channel as the
// revoke signal, closed at the very start of Disconnect so any
// in-flight backoff cancels immediately, before reconnectWG.Wait() is
// reached.
func (p *Pool) tryConnectNode(n *store.Node, retryConnecting bool) {
	if p.disconnecting.Load() {
		return
	}
	for _, a := range candidateAddresses(n) {
		if _, err := p.addOutbound(a, n.PubKey, false, p.retryCancel); err == nil {
			return
		}
	}
	if retryConnecting && n.LastAddress != nil {
		_, _ = p.addOutbound(*n.LastAddress, n.PubKey, true, p.retryCancel)
	}
}
