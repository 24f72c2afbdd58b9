package pool

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/eventbus"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/store"
	"github.com/oxidex/peerpool/wire"
)

// bulkReconnect asynchronously attempts outbound connections to every
// known, unbanned node at startup, with retries enabled.
func (p *Pool) bulkReconnect() {
	defer p.bgWG.Done()
	p.nodes.ForEach(func(n *store.Node) bool {
		if p.disconnecting.Load() {
			return false
		}
		if n.Banned {
			return true
		}
		p.reconnectWG.Add(1)
		go func(node *store.Node) {
			defer p.reconnectWG.Done()
			p.tryConnectNode(node, true)
		}(n)
		return true
	})
}

// probeReachability dials one of our own advertised addresses: a
// handshake reaching ConnectedToSelf proves the address is publicly
// reachable; any other outcome only logs
// a warning and does not change advertised state. This bypasses the
// normal admission path entirely — the probe connection never enters
// peers or pendingOutboundPeers.
func (p *Pool) probeReachability(addr address.Address) {
	defer p.bgWG.Done()

	conn, err := net.DialTimeout("tcp", addr.String(), p.cfg.DialTimeout)
	if err != nil {
		p.log.WithError(err).WithField("address", addr.String()).Debug("reachability probe could not dial")
		return
	}

	pr := peer.New(conn, peer.Outbound, addr, p.key, p.verify, p.peerConfig(), peer.Callbacks{}, p.log)
	err = pr.Open(p.ourNodeState())
	if err == peer.ErrConnectedToSelf {
		p.log.WithField("address", addr.String()).Info("reachability probe confirmed address is publicly reachable")
		return
	}
	p.log.WithError(err).WithField("address", addr.String()).Warn("reachability probe did not confirm reachability")
	if err == nil {
		pr.Close(nil, nil)
	}
}

// discoveryTicker sends a periodic GetNodes to every open peer, every
// discoverMinutes minutes.
func (p *Pool) discoveryTicker() {
	defer p.bgWG.Done()
	ticker := time.NewTicker(time.Duration(p.cfg.DiscoverMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			for _, pr := range p.listPeers() {
				_ = pr.SendPacket(&wire.Packet{Header: wire.NewHeader(), Body: &wire.GetNodes{}})
			}
		}
	}
}

// watchBans closes any currently connected peer whose node the NodeList
// just banned.
func (p *Pool) watchBans() {
	defer p.bgWG.Done()
	ch, unsubscribe := p.bus.Subscribe(eventbus.TopicNodeBan, 16)
	defer unsubscribe()
	for {
		select {
		case <-p.quit:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			pubKey, _ := evt.Payload.([]byte)
			if len(pubKey) == 0 {
				continue
			}
			atomic.AddInt64(&p.counters.nodesBanned, 1)
			if pr := p.getPeer(pubKey); pr != nil {
				reason := wire.DiscBanned
				pr.Close(&reason, nil)
			}
		}
	}
}
