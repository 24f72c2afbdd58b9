package pool

import (
	"time"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/store"
)

// onNodeObserved records (or updates) the Node catalog entry for a freshly
// admitted peer. lastConnected is stamped only here — after a fully
// successful handshake — never optimistically before it. See DESIGN.md
// for why.
func (p *Pool) onNodeObserved(pr *peer.Peer) error {
	pubKey := pr.NodePubKey()
	advertised := pr.NodeState().Addresses
	now := time.Now()

	n, known := p.nodes.Get(pubKey)
	if !known {
		n = &store.Node{PubKey: append([]byte(nil), pubKey...)}
	}
	n.Addresses = address.Dedupe(append(append([]address.Address(nil), n.Addresses...), advertised...))

	// Only an outbound connection's target address is something we
	// dialed ourselves; an inbound socket's remote address is an
	// ephemeral client port, not a reachable listening address.
	if pr.Direction() == peer.Outbound {
		n.MarkConnected(pr.Address(), now)
	}

	if !known {
		return p.nodes.CreateNode(n)
	}
	return p.nodes.UpdateAddresses(pubKey, n.Addresses, n.LastAddress)
}
