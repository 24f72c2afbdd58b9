package pool

import (
	"bytes"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/store"
	"github.com/oxidex/peerpool/wire"
)

// handleGetNodes answers a gossip request with every currently open peer
// except the requester, excluding peers without known listening
// addresses.
func (p *Pool) handleGetNodes(pr *peer.Peer, pkt *wire.Packet) {
	entries := make([]wire.NodeEntry, 0)
	for _, other := range p.listPeers() {
		if bytes.Equal(other.NodePubKey(), pr.NodePubKey()) {
			continue
		}
		addrs := other.NodeState().Addresses
		if len(addrs) == 0 {
			continue
		}
		entries = append(entries, wire.NodeEntry{PubKey: other.NodePubKey(), Addresses: addrs})
	}
	reply := &wire.Packet{Header: wire.NewResponseHeader(pkt.Header.ID), Body: &wire.Nodes{Entries: entries}}
	_ = pr.SendPacket(reply)
}

// handleNodes feeds a gossip reply into connectNodes(allowKnown=true,
// retryConnecting=false): we connect only to genuinely new entries we
// have addresses for.
func (p *Pool) handleNodes(body *wire.Nodes) {
	for _, entry := range nodesWithAddresses(body.Entries) {
		p.connectDiscoveredNode(entry)
	}
}

func (p *Pool) connectDiscoveredNode(entry wire.NodeEntry) {
	if bytes.Equal(entry.PubKey, p.key.PubKey()) {
		return
	}
	if p.nodes.IsBanned(entry.PubKey) {
		return
	}

	key := pubKeyHex(entry.PubKey)
	res, _ := p.do(func(st *runState) (interface{}, error) {
		_, inPeers := st.peers[key]
		_, inPending := st.pendingOutbound[key]
		return inPeers || inPending, nil
	})
	if already, _ := res.(bool); already {
		return
	}

	if !p.nodes.Has(entry.PubKey) {
		_ = p.nodes.CreateNode(&store.Node{
			PubKey:    append([]byte(nil), entry.PubKey...),
			Addresses: append([]address.Address(nil), entry.Addresses...),
		})
	}

	addr := entry.Addresses[0]
	go func() {
		_, _ = p.addOutbound(addr, entry.PubKey, false, p.quit)
	}()
}
