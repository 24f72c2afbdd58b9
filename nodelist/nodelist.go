// Package nodelist implements the in-memory, NodeStore-backed catalog of
// known nodes keyed by public key.
package nodelist

import (
	"encoding/hex"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/eventbus"
	"github.com/oxidex/peerpool/identity"
	"github.com/oxidex/peerpool/reputation"
	"github.com/oxidex/peerpool/store"
)

// NodeList is the durable node catalog. All mutations persist through the
// configured store.NodeStore on a best-effort basis: a persistence
// failure is logged and the in-memory state remains authoritative for the
// session.
type NodeList struct {
	mu      sync.RWMutex
	store   store.NodeStore
	bus     *eventbus.Bus
	log     *logrus.Entry
	nodes   map[string]*store.Node
	order   []string
	aliases map[string]string
}

// New builds an empty NodeList. Call Load to populate it from store.
func New(s store.NodeStore, bus *eventbus.Bus, log *logrus.Entry) *NodeList {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &NodeList{
		store:   s,
		bus:     bus,
		log:     log.WithField("component", "nodelist"),
		nodes:   make(map[string]*store.Node),
		order:   nil,
		aliases: make(map[string]string),
	}
}

func key(pubKey []byte) string {
	return string(pubKey)
}

// Load performs the one-shot bulk read NodeList.load() uses at startup.
func (l *NodeList) Load() error {
	nodes, err := l.store.Load()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range nodes {
		k := key(n.PubKey)
		if _, exists := l.nodes[k]; !exists {
			l.order = append(l.order, k)
		}
		l.nodes[k] = n
		l.aliases[identity.Alias(n.PubKey)] = k
	}
	return nil
}

// Get returns a clone of the node record for pubKey, if known.
func (l *NodeList) Get(pubKey []byte) (*store.Node, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.nodes[key(pubKey)]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Has reports whether pubKey is a known node.
func (l *NodeList) Has(pubKey []byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.nodes[key(pubKey)]
	return ok
}

// Count returns the number of known nodes.
func (l *NodeList) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.nodes)
}

// GetID returns a stable, human-readable identifier for pubKey.
func (l *NodeList) GetID(pubKey []byte) string {
	return hex.EncodeToString(pubKey)
}

// GetAlias returns the deterministic alias for pubKey.
func (l *NodeList) GetAlias(pubKey []byte) string {
	return identity.Alias(pubKey)
}

// GetPubKeyForAlias reverses GetAlias.
func (l *NodeList) GetPubKeyForAlias(alias string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	k, ok := l.aliases[alias]
	if !ok {
		return nil, ErrUnknownAlias
	}
	return []byte(k), nil
}

// CreateNode inserts a new node record, failing if pubKey is already
// known.
func (l *NodeList) CreateNode(n *store.Node) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(n.PubKey)
	if _, exists := l.nodes[k]; exists {
		return ErrNodeExists
	}
	stored := n.Clone()
	l.nodes[k] = stored
	l.order = append(l.order, k)
	l.aliases[identity.Alias(stored.PubKey)] = k
	return l.persist(stored)
}

// UpdateAddresses replaces pubKey's address set, preserving lastConnected
// on matching entries.
func (l *NodeList) UpdateAddresses(pubKey []byte, addrs []address.Address, lastAddress *address.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nodes[key(pubKey)]
	if !ok {
		return ErrNodeNotFound
	}
	n.ReplaceAddresses(addrs, lastAddress)
	return l.persist(n)
}

// RemoveAddress prunes a single unreachable address from a node's set.
func (l *NodeList) RemoveAddress(pubKey []byte, addr address.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nodes[key(pubKey)]
	if !ok {
		return ErrNodeNotFound
	}
	out := n.Addresses[:0]
	for _, a := range n.Addresses {
		if !a.Equal(addr) {
			out = append(out, a)
		}
	}
	n.Addresses = out
	if n.LastAddress != nil && n.LastAddress.Equal(addr) {
		n.LastAddress = nil
	}
	return l.persist(n)
}

// AddReputationEvent applies event's signed delta to pubKey's score,
// auto-banning below reputation.BanThreshold. Accumulation is
// overflow-safe: saturatingAdd clamps the score to the int range, so a
// negative delta after ManualBan's MinScore lowers it further without
// wrapping.
func (l *NodeList) AddReputationEvent(pubKey []byte, event reputation.Event) error {
	l.mu.Lock()
	n, ok := l.nodes[key(pubKey)]
	if !ok {
		l.mu.Unlock()
		return ErrNodeNotFound
	}
	n.ReputationScore = saturatingAdd(n.ReputationScore, reputation.Delta(event))

	becameBanned := !n.Banned && n.ReputationScore < reputation.BanThreshold
	if becameBanned {
		n.Banned = true
	}
	err := l.persist(n)
	l.mu.Unlock()

	if becameBanned && l.bus != nil {
		l.bus.Publish(eventbus.TopicNodeBan, append([]byte(nil), pubKey...))
	}
	return err
}

// saturatingAdd adds b to a, clamping to the int range instead of
// wrapping on overflow.
func saturatingAdd(a, b int) int {
	sum := a + b
	if b > 0 && sum < a {
		return math.MaxInt
	}
	if b < 0 && sum > a {
		return math.MinInt
	}
	return sum
}

// Ban sets pubKey's banned flag. Idempotent: banning an already-banned
// node returns ErrAlreadyBanned without side effects.
func (l *NodeList) Ban(pubKey []byte) error {
	l.mu.Lock()
	n, ok := l.nodes[key(pubKey)]
	if !ok {
		l.mu.Unlock()
		return ErrNodeNotFound
	}
	if n.Banned {
		l.mu.Unlock()
		return ErrAlreadyBanned
	}
	n.Banned = true
	err := l.persist(n)
	l.mu.Unlock()

	if err == nil && l.bus != nil {
		l.bus.Publish(eventbus.TopicNodeBan, append([]byte(nil), pubKey...))
	}
	return err
}

// UnBan clears pubKey's banned flag. Idempotent: unbanning an
// already-unbanned node returns ErrNotBanned without side effects.
func (l *NodeList) UnBan(pubKey []byte) error {
	l.mu.Lock()
	n, ok := l.nodes[key(pubKey)]
	if !ok {
		l.mu.Unlock()
		return ErrNodeNotFound
	}
	if !n.Banned {
		l.mu.Unlock()
		return ErrNotBanned
	}
	n.Banned = false
	err := l.persist(n)
	l.mu.Unlock()

	if err == nil && l.bus != nil {
		l.bus.Publish(eventbus.TopicNodeUnban, append([]byte(nil), pubKey...))
	}
	return err
}

// IsBanned reports pubKey's ban state. Unknown nodes are not banned.
func (l *NodeList) IsBanned(pubKey []byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.nodes[key(pubKey)]
	return ok && n.Banned
}

// ForEach visits every node in insertion order, used for bulk
// reconnection at startup. Visiting stops early if visitor returns false.
func (l *NodeList) ForEach(visitor func(*store.Node) bool) {
	l.mu.RLock()
	snapshot := make([]*store.Node, 0, len(l.order))
	for _, k := range l.order {
		if n, ok := l.nodes[k]; ok {
			snapshot = append(snapshot, n.Clone())
		}
	}
	l.mu.RUnlock()

	for _, n := range snapshot {
		if !visitor(n) {
			return
		}
	}
}

// PurgeBanned removes every banned node's record entirely: nodes are
// otherwise never deleted, only flagged banned, so this is the one
// explicit way to reclaim that storage. Returns the count purged.
func (l *NodeList) PurgeBanned() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	purged := 0
	remaining := l.order[:0]
	for _, k := range l.order {
		n, ok := l.nodes[k]
		if ok && n.Banned {
			delete(l.nodes, k)
			delete(l.aliases, identity.Alias(n.PubKey))
			if err := l.store.Remove(n.PubKey); err != nil {
				l.log.WithError(err).Warn("failed to remove banned node from store")
			}
			purged++
			continue
		}
		remaining = append(remaining, k)
	}
	l.order = remaining
	return purged
}

// persist writes n to the backing store, logging and swallowing failures:
// in-memory state stays authoritative for the session.
func (l *NodeList) persist(n *store.Node) error {
	if err := l.store.Upsert(n); err != nil {
		l.log.WithError(err).WithField("node", l.GetID(n.PubKey)).Warn("failed to persist node record")
		return err
	}
	return nil
}
