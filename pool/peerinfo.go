package pool

import (
	"sort"
	"time"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/peer"
)

// PeerInfo is an introspection snapshot of one admitted peer, useful to
// an RPC surface even though the RPC surface itself is out of scope here.
type PeerInfo struct {
	ID        string
	Alias     string
	Address   address.Address
	Direction string
	Version   string
	UptimeSec int64
}

func newPeerInfo(id string, p *peer.Peer, since time.Time) PeerInfo {
	return PeerInfo{
		ID:        id,
		Alias:     p.Alias(),
		Address:   p.Address(),
		Direction: p.Direction().String(),
		Version:   p.Version(),
		UptimeSec: int64(time.Since(since).Seconds()),
	}
}

// PeersInfo returns a sorted snapshot of every admitted peer.
func (p *Pool) PeersInfo() []PeerInfo {
	res, _ := p.do(func(st *runState) (interface{}, error) {
		out := make([]PeerInfo, 0, len(st.peers))
		for id, entry := range st.peers {
			out = append(out, newPeerInfo(id, entry.peer, entry.admittedAt))
		}
		return out, nil
	})
	infos, _ := res.([]PeerInfo)
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
