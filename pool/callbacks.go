package pool

import (
	"sync/atomic"

	"github.com/oxidex/peerpool/eventbus"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/reputation"
	"github.com/oxidex/peerpool/wire"
)

// callbacksFor builds the Peer.Callbacks a Pool installs at
// construction — the weak back-reference a Peer holds to its owning
// Pool. Every callback runs on the Peer's own goroutines and must not
// block; each either posts to the Pool's supervisory channels or fires
// the event bus directly (eventbus.Bus.Publish is itself non-blocking).
func (p *Pool) callbacksFor() peer.Callbacks {
	return peer.Callbacks{
		OnPacket:          p.onPeerPacket,
		OnPairDropped:     p.onPeerPairDropped,
		OnVerifyPairs:     p.onPeerVerifyPairs,
		OnNodeStateUpdate: p.onPeerNodeStateUpdate,
		OnReputation:      p.onPeerReputation,
		OnClose:           p.onPeerClose,
	}
}

// onPeerPacket routes the packets the Pool interprets internally
// (GetNodes/Nodes) to their handlers and forwards Order,
// OrderInvalidation, GetOrders, SanitySwapInit, SwapRequest, SwapAccepted
// and SwapFailed as typed external events. Every other packet that reaches
// it (Ping, Pong, Disconnecting, NodeStateUpdate, Orders) is only counted:
// the first three are handled inside package peer and NodeStateUpdate is
// published through OnNodeStateUpdate.
func (p *Pool) onPeerPacket(pr *peer.Peer, pkt *wire.Packet) {
	switch body := pkt.Body.(type) {
	case *wire.GetNodes:
		p.handleGetNodes(pr, pkt)
	case *wire.Nodes:
		p.handleNodes(body)
	case *wire.Order:
		p.forward(pr, eventbus.TopicOrder, pkt)
	case *wire.OrderInvalidation:
		p.forward(pr, eventbus.TopicOrderInvalidation, pkt)
	case *wire.GetOrders:
		p.forward(pr, eventbus.TopicGetOrders, pkt)
	case *wire.SanitySwapInit:
		p.forward(pr, eventbus.TopicSanitySwapInit, pkt)
	case *wire.SwapRequest:
		p.forward(pr, eventbus.TopicSwapRequest, pkt)
	case *wire.SwapAccepted:
		p.forward(pr, eventbus.TopicSwapAccepted, pkt)
	case *wire.SwapFailed:
		p.forward(pr, eventbus.TopicSwapFailed, pkt)
	}
	atomic.AddInt64(&p.counters.packetsReceived, 1)
}

func (p *Pool) forward(pr *peer.Peer, topic eventbus.Topic, pkt *wire.Packet) {
	p.bus.Publish(topic, PacketEvent{PubKey: pr.NodePubKey(), Alias: pr.Alias(), Packet: pkt})
}

func (p *Pool) onPeerPairDropped(pr *peer.Peer, pairID string) {
	p.bus.Publish(eventbus.TopicPeerPairDropped, PairDroppedEvent{PubKey: pr.NodePubKey(), PairID: pairID})
}

func (p *Pool) onPeerVerifyPairs(pr *peer.Peer, pairs []string) {
	p.bus.Publish(eventbus.TopicPeerVerifyPairs, VerifyPairsEvent{PubKey: pr.NodePubKey(), Pairs: pairs})
}

func (p *Pool) onPeerNodeStateUpdate(pr *peer.Peer, state wire.NodeStateBody) {
	p.bus.Publish(eventbus.TopicPeerNodeStateUpdate, NodeStateUpdateEvent{PubKey: pr.NodePubKey(), NodeState: state})
}

func (p *Pool) onPeerReputation(pr *peer.Peer, event reputation.Event) {
	atomic.AddInt64(&p.counters.reputationEventsApplied, 1)
	if err := p.nodes.AddReputationEvent(pr.NodePubKey(), event); err != nil {
		p.log.WithError(err).Debug("failed to apply reputation event")
	}
}

func (p *Pool) onPeerClose(pr *peer.Peer, sent, recv *wire.DisconnectionReason) {
	select {
	case p.closeCh <- &closeEvent{p: pr, sent: sent, recv: recv}:
	case <-p.quit:
	}
}
