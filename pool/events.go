package pool

import (
	"github.com/oxidex/peerpool/wire"
)

// Event payload shapes published on the bus returned by Pool.Bus().
// Packet-forwarding topics (packet.order, packet.sanitySwapInit, ...)
// carry a PacketEvent; lifecycle topics carry their own named struct.

// PacketEvent wraps a packet the Pool does not interpret beyond routing:
// Order, OrderInvalidation, GetOrders, SanitySwapInit, SwapRequest,
// SwapAccepted and SwapFailed are forwarded this way. NodeStateUpdate is
// published as a NodeStateUpdateEvent instead, and Orders packets are not
// published.
type PacketEvent struct {
	PubKey []byte
	Alias  string
	Packet *wire.Packet
}

// PeerActiveEvent fires once a Peer is admitted into the peers map.
type PeerActiveEvent struct {
	PubKey    []byte
	Alias     string
	Direction string
}

// PeerCloseEvent fires once an admitted Peer leaves the peers map.
type PeerCloseEvent struct {
	PubKey    []byte
	Alias     string
	Sent      *wire.DisconnectionReason
	Recv      *wire.DisconnectionReason
	Reconnect bool
}

// VerifyPairsEvent and PairDroppedEvent surface the Peer callbacks of the
// same name.
type VerifyPairsEvent struct {
	PubKey []byte
	Pairs  []string
}

type PairDroppedEvent struct {
	PubKey []byte
	PairID string
}

// NodeStateUpdateEvent mirrors the peer.nodeStateUpdate topic.
type NodeStateUpdateEvent struct {
	PubKey    []byte
	NodeState wire.NodeStateBody
}

// nodesWithAddresses narrows a gossip reply's NodeEntry list down to
// entries carrying at least one address, excluding peers without known
// listening addresses.
func nodesWithAddresses(entries []wire.NodeEntry) []wire.NodeEntry {
	out := make([]wire.NodeEntry, 0, len(entries))
	for _, e := range entries {
		if len(e.Addresses) > 0 {
			out = append(out, e)
		}
	}
	return out
}
