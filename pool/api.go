package pool

import (
	"errors"
	"sort"

	"github.com/oxidex/peerpool/nodelist"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/reputation"
	"github.com/oxidex/peerpool/wire"
)

// getPeer returns the admitted Peer for pubKey, or nil.
func (p *Pool) getPeer(pubKey []byte) *peer.Peer {
	res, _ := p.do(func(st *runState) (interface{}, error) {
		e, ok := st.peers[pubKeyHex(pubKey)]
		if !ok {
			return nil, nil
		}
		return e.peer, nil
	})
	pr, _ := res.(*peer.Peer)
	return pr
}

// GetPeer exposes the admitted Peer for pubKey.
func (p *Pool) GetPeer(pubKey []byte) (*peer.Peer, error) {
	pr := p.getPeer(pubKey)
	if pr == nil {
		return nil, ErrNodeNotFound
	}
	return pr, nil
}

// listPeers returns every currently admitted Peer, sorted by pubkey hex for
// deterministic iteration order.
func (p *Pool) listPeers() []*peer.Peer {
	res, _ := p.do(func(st *runState) (interface{}, error) {
		keys := make([]string, 0, len(st.peers))
		for k := range st.peers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]*peer.Peer, 0, len(keys))
		for _, k := range keys {
			out = append(out, st.peers[k].peer)
		}
		return out, nil
	})
	peers, _ := res.([]*peer.Peer)
	return peers
}

// ListPeers exposes every currently admitted Peer.
func (p *Pool) ListPeers() []*peer.Peer { return p.listPeers() }

// ClosePeer closes an admitted connection by pubkey.
func (p *Pool) ClosePeer(pubKey []byte, reason *wire.DisconnectionReason) error {
	pr := p.getPeer(pubKey)
	if pr == nil {
		return ErrNotConnected
	}
	pr.Close(reason, nil)
	return nil
}

// BanNode bans a node and closes any live connection to it.
func (p *Pool) BanNode(pubKey []byte) error {
	if p.nodes.IsBanned(pubKey) {
		return ErrNodeAlreadyBanned
	}
	if err := p.nodes.Ban(pubKey); err != nil {
		return err
	}
	if pr := p.getPeer(pubKey); pr != nil {
		reason := wire.DiscBanned
		pr.Close(&reason, nil)
	}
	return nil
}

// UnbanNode reverses a ban, optionally kicking off a reconnection attempt.
func (p *Pool) UnbanNode(pubKey []byte, reconnect bool) error {
	if !p.nodes.IsBanned(pubKey) {
		return ErrNodeNotBanned
	}
	if err := p.nodes.UnBan(pubKey); err != nil {
		return err
	}
	if reconnect {
		if n, ok := p.nodes.Get(pubKey); ok {
			p.reconnectWG.Add(1)
			go func() {
				defer p.reconnectWG.Done()
				p.tryConnectNode(n, false)
			}()
		}
	}
	return nil
}

// DiscoverNodes sends a single GetNodes to the given peer, or to every
// admitted peer when pubKey is nil.
func (p *Pool) DiscoverNodes(pubKey []byte) error {
	pkt := &wire.Packet{Header: wire.NewHeader(), Body: &wire.GetNodes{}}
	if pubKey == nil {
		for _, pr := range p.listPeers() {
			_ = pr.SendPacket(pkt)
		}
		return nil
	}
	pr := p.getPeer(pubKey)
	if pr == nil {
		return ErrNotConnected
	}
	return pr.SendPacket(pkt)
}

// AddReputationEvent applies a reputation delta outside of a peer's own
// OnReputation callback path, e.g. for externally observed misbehavior.
func (p *Pool) AddReputationEvent(pubKey []byte, event reputation.Event) error {
	if err := p.nodes.AddReputationEvent(pubKey, event); err != nil {
		return err
	}
	if p.nodes.IsBanned(pubKey) {
		if pr := p.getPeer(pubKey); pr != nil {
			reason := wire.DiscBanned
			pr.Close(&reason, nil)
		}
	}
	return nil
}

// SendToPeer delivers a packet to one admitted peer.
func (p *Pool) SendToPeer(pubKey []byte, pkt *wire.Packet) error {
	pr := p.getPeer(pubKey)
	if pr == nil {
		return ErrNotConnected
	}
	return pr.SendPacket(pkt)
}

// isPairActive reports whether pr has advertised pairID among its trading
// pairs.
func isPairActive(pr *peer.Peer, pairID string) bool {
	for _, p := range pr.NodeState().Pairs {
		if p == pairID {
			return true
		}
	}
	return false
}

// BroadcastOrder sends order to every peer advertising its trading pair.
// Sends do not block on each other; a
// stalled peer is later closed by its own send-queue stall detector.
func (p *Pool) BroadcastOrder(order *wire.Order) {
	pkt := &wire.Packet{Header: wire.NewHeader(), Body: order}
	for _, pr := range p.listPeers() {
		if isPairActive(pr, order.PairID) {
			_ = pr.SendPacket(pkt)
		}
	}
}

// BroadcastOrderInvalidation sends portion to every peer advertising its
// pair, skipping exclude if non-nil.
func (p *Pool) BroadcastOrderInvalidation(portion *wire.OrderInvalidation, exclude []byte) {
	pkt := &wire.Packet{Header: wire.NewHeader(), Body: portion}
	for _, pr := range p.listPeers() {
		if exclude != nil && pubKeyHex(pr.NodePubKey()) == pubKeyHex(exclude) {
			continue
		}
		if isPairActive(pr, portion.PairID) {
			_ = pr.SendPacket(pkt)
		}
	}
}

// UpdatePairs replaces our own advertised trading pairs and republishes
// NodeState to every admitted peer.
func (p *Pool) UpdatePairs(pairIDs []string) {
	p.nodeStateMu.Lock()
	p.nodeState.Pairs = append([]string(nil), pairIDs...)
	p.nodeStateMu.Unlock()
	p.broadcastNodeStateUpdate()
}

// UpdateAuxState replaces our own advertised auxiliary chain identifiers
// and republishes NodeState.
func (p *Pool) UpdateAuxState(identifiers, pubKeys map[string]string, uris map[string][]string, tokenIdentifiers map[string]string) {
	p.nodeStateMu.Lock()
	p.nodeState.AuxIdentifiers = identifiers
	p.nodeState.AuxPubKeys = pubKeys
	p.nodeState.AuxUris = uris
	p.nodeState.TokenIdentifiers = tokenIdentifiers
	p.nodeStateMu.Unlock()
	p.broadcastNodeStateUpdate()
}

func (p *Pool) broadcastNodeStateUpdate() {
	state := p.ourNodeState()
	pkt := &wire.Packet{Header: wire.NewHeader(), Body: &wire.NodeStateUpdate{NodeState: state}}
	for _, pr := range p.listPeers() {
		_ = pr.SendPacket(pkt)
	}
}

// ResolveAlias maps a deterministic alias back to the pubkey that derives
// it.
func (p *Pool) ResolveAlias(alias string) ([]byte, error) {
	pubKey, err := p.nodes.GetPubKeyForAlias(alias)
	if errors.Is(err, nodelist.ErrUnknownAlias) {
		return nil, errUnknownAlias
	}
	return pubKey, err
}
