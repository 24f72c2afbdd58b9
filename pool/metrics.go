package pool

import "sync/atomic"

// Stats is a lightweight in-process metrics surface, without any
// push/reporter machinery — the pool only needs a point-in-time snapshot,
// not a metrics pipeline.
type Stats struct {
	PeersConnected          int64
	ReputationEventsApplied int64
	PacketsReceived         int64
	NodesBanned             int64
}

type counters struct {
	peersConnected          int64
	reputationEventsApplied int64
	packetsReceived         int64
	nodesBanned             int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		PeersConnected:          atomic.LoadInt64(&c.peersConnected),
		ReputationEventsApplied: atomic.LoadInt64(&c.reputationEventsApplied),
		PacketsReceived:         atomic.LoadInt64(&c.packetsReceived),
		NodesBanned:             atomic.LoadInt64(&c.nodesBanned),
	}
}

// Stats returns a point-in-time snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	return p.counters.snapshot()
}
