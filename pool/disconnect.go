package pool

import (
	"sync"

	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/wire"
)

// Disconnect performs the pool's full teardown sequence: cancel and await
// pending reconnection dials, close the listener, snapshot every admitted
// and pending connection, stop the supervisory loop, close the
// snapshotted connections with Shutdown, then wait for the accept, probe,
// discovery and ban-watcher goroutines to exit. Safe to call more than
// once; only the first call after Init does anything.
func (p *Pool) Disconnect() {
	if p.disconnecting.Swap(true) {
		return
	}
	if !p.connected.Load() {
		p.disconnecting.Store(false)
		return
	}

	// Cancel any in-flight bulk-reconnect or reconnect-on-close backoff
	// before waiting on reconnectWG, so a dial currently sleeping off
	// RetryMaxPeriod returns immediately instead of holding up shutdown.
	close(p.retryCancel)
	p.reconnectWG.Wait()

	if p.listener != nil {
		_ = p.listener.Close()
	}

	res, _ := p.do(func(st *runState) (interface{}, error) {
		all := make([]*peer.Peer, 0, len(st.peers)+len(st.pendingOutbound)+len(st.pendingInbound))
		for _, e := range st.peers {
			all = append(all, e.peer)
		}
		for _, pr := range st.pendingOutbound {
			if pr != nil {
				all = append(all, pr)
			}
		}
		for pr := range st.pendingInbound {
			all = append(all, pr)
		}
		return all, nil
	})
	peers, _ := res.([]*peer.Peer)

	close(p.quit)
	<-p.loopDone

	reason := wire.DiscShutdown
	var wg sync.WaitGroup
	for _, pr := range peers {
		wg.Add(1)
		go func(pr *peer.Peer) {
			defer wg.Done()
			pr.Close(&reason, nil)
			<-pr.Done()
		}(pr)
	}
	wg.Wait()

	p.bgWG.Wait()

	p.connected.Store(false)
	p.disconnecting.Store(false)
}
