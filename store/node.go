// Package store defines the NodeStore contract the pool consumes for
// durable node persistence, plus two implementations: an in-memory store
// for tests and embedders that don't need durability, and a
// goleveldb-backed store for everyone else.
package store

import (
	"time"

	"github.com/oxidex/peerpool/address"
)

// Node is the persistent, durable record of a known peer.
type Node struct {
	PubKey          []byte
	Addresses       []address.Address
	LastAddress     *address.Address
	ReputationScore int
	Banned          bool
}

// Clone returns a deep copy so callers cannot mutate store-owned state
// through an aliased slice/pointer.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.PubKey = append([]byte(nil), n.PubKey...)
	cp.Addresses = append([]address.Address(nil), n.Addresses...)
	if n.LastAddress != nil {
		la := *n.LastAddress
		cp.LastAddress = &la
	}
	return &cp
}

// touchLastConnected stamps LastConnected on the matching address entry,
// preserving the rest of the address set untouched. It is used by
// NodeList.UpdateAddresses to carry forward LastConnected on entries
// that already existed.
func touchLastConnected(existing, incoming []address.Address) []address.Address {
	out := make([]address.Address, len(incoming))
	for i, in := range incoming {
		out[i] = in
		for _, old := range existing {
			if old.Equal(in) && !old.LastConnected.IsZero() {
				out[i].LastConnected = old.LastConnected
				break
			}
		}
	}
	return out
}

// ReplaceAddresses swaps in a new address set, preserving LastConnected on
// entries that match an existing address, and sets LastAddress to
// lastAddress (clearing it when lastAddress is nil).
func (n *Node) ReplaceAddresses(incoming []address.Address, lastAddress *address.Address) {
	n.Addresses = touchLastConnected(n.Addresses, incoming)
	if lastAddress == nil {
		n.LastAddress = nil
		return
	}
	for i, a := range n.Addresses {
		if a.Equal(*lastAddress) {
			n.LastAddress = &n.Addresses[i]
			return
		}
	}
	la := *lastAddress
	n.LastAddress = &la
}

// MarkConnected stamps LastConnected = at on the given address within the
// node's address set, inserting it if absent.
func (n *Node) MarkConnected(addr address.Address, at time.Time) {
	addr.LastConnected = at
	for i, a := range n.Addresses {
		if a.Equal(addr) {
			n.Addresses[i].LastConnected = at
			n.LastAddress = &n.Addresses[i]
			return
		}
	}
	n.Addresses = append(n.Addresses, addr)
	n.LastAddress = &n.Addresses[len(n.Addresses)-1]
}
