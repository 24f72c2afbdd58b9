package pool

import (
	"net"
	"strings"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/store"
)

// acceptLoop runs in its own goroutine and accepts inbound connections.
func (p *Pool) acceptLoop() {
	defer p.bgWG.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.quit:
				return
			default:
				p.log.WithError(err).Warn("accept failed")
				continue
			}
		}
		go p.handleInbound(conn)
	}
}

// handleInbound applies the cheap pre-handshake IP-ban filter, rejecting
// any remote IP already associated with a banned node, then creates a
// Peer in the pendingInboundPeers set, letting the handshake run in the
// background.
func (p *Pool) handleInbound(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return
	}
	if p.isAddressBanned(host) {
		conn.Close()
		return
	}

	addr := address.New(host, 0)
	pr := peer.New(conn, peer.Inbound, addr, p.key, p.verify, p.peerConfig(), p.callbacksFor(), p.log)

	p.do(func(st *runState) (interface{}, error) {
		st.pendingInbound[pr] = struct{}{}
		return nil, nil
	})

	go func() {
		err := pr.Open(p.ourNodeState())
		select {
		case p.handshakeCh <- &handshakeEvent{p: pr, inbound: true, err: err}:
		case <-p.quit:
		}
	}()
}

func (p *Pool) isAddressBanned(host string) bool {
	banned := false
	p.nodes.ForEach(func(n *store.Node) bool {
		if !n.Banned {
			return true
		}
		for _, a := range n.Addresses {
			if strings.EqualFold(a.Host, host) {
				banned = true
				return false
			}
		}
		return true
	})
	return banned
}
