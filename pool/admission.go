package pool

import (
	"sync/atomic"
	"time"

	"github.com/oxidex/peerpool/common/mclock"
	"github.com/oxidex/peerpool/eventbus"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/wire"
)

// onHandshakeResult is invoked from the run() goroutine when a dialed or
// accepted Peer finishes (or fails) its handshake. It implements spec
// §4.4's validatePeer admission checks that the Peer's own handshake
// cannot perform itself: disconnected pool, banned node, and duplicate
// connection resolution.
func (p *Pool) onHandshakeResult(st *runState, evt *handshakeEvent) {
	if evt.inbound {
		delete(st.pendingInbound, evt.p)
	} else {
		delete(st.pendingOutbound, evt.pubKeyHex)
	}

	if evt.err != nil {
		p.log.WithError(evt.err).WithField("direction", evt.p.Direction().String()).Debug("handshake failed")
		return
	}

	p.admit(st, evt.p)
}

// admit runs the remaining validatePeer checks once a Peer's own
// handshake has already ruled out self-connection and version mismatch,
// then either installs the Peer into st.peers or closes it.
func (p *Pool) admit(st *runState, pr *peer.Peer) {
	if p.disconnecting.Load() || !p.connected.Load() {
		reason := wire.DiscNotAcceptingConnections
		pr.Close(&reason, nil)
		return
	}

	key := pubKeyHex(pr.NodePubKey())

	if p.nodes.IsBanned(pr.NodePubKey()) {
		reason := wire.DiscBanned
		pr.Close(&reason, nil)
		return
	}

	if existing, ok := st.peers[key]; ok {
		p.resolveDuplicate(st, key, pr, existing.peer)
		return
	}

	p.finishAdmit(st, key, pr)
}

// resolveDuplicate implements the symmetric duplicate-connection
// tie-break: the connection with the higher pubkey closes itself immediately; the one
// with the lower pubkey waits up to STALL_INTERVAL for the existing
// socket to close before giving up. The wait happens off the run()
// goroutine so it never blocks the Pool's other supervisory work; the
// eventual outcome is fed back in through a fresh op.
func (p *Pool) resolveDuplicate(st *runState, key string, pr, existing *peer.Peer) {
	if peer.HigherPubKey(p.key.PubKey(), pr.NodePubKey()) {
		reason := wire.DiscAlreadyConnected
		pr.Close(&reason, nil)
		return
	}

	existingDone := existing.Done()
	wait := p.cfg.StallInterval
	p.bgWG.Add(1)
	go func() {
		defer p.bgWG.Done()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-existingDone:
		case <-timer.C:
			reason := wire.DiscAlreadyConnected
			pr.Close(&reason, nil)
			return
		case <-p.quit:
			return
		}
		p.do(func(st *runState) (interface{}, error) {
			if _, stillThere := st.peers[key]; stillThere {
				// existing closed but another connection won the race
				// first; this one loses too.
				reason := wire.DiscAlreadyConnected
				pr.Close(&reason, nil)
				return nil, nil
			}
			p.finishAdmit(st, key, pr)
			return nil, nil
		})
	}()
}

// finishAdmit is the single place a Peer actually enters st.peers (spec
// §3: "active flag and membership in peers are set together").
func (p *Pool) finishAdmit(st *runState, key string, pr *peer.Peer) {
	pr.SetActive(true)
	st.peers[key] = &peerEntry{peer: pr, admittedAt: time.Now(), connectedAt: mclock.Now()}
	atomic.StoreInt64(&p.counters.peersConnected, int64(len(st.peers)))

	if err := p.onNodeObserved(pr); err != nil {
		p.log.WithError(err).Debug("failed to record observed node")
	}

	p.bus.Publish(eventbus.TopicPeerActive, PeerActiveEvent{PubKey: pr.NodePubKey(), Alias: pr.Alias(), Direction: pr.Direction().String()})

	if p.cfg.Discover {
		_ = pr.SendPacket(&wire.Packet{Header: wire.NewHeader(), Body: &wire.GetNodes{}})
	}
}
