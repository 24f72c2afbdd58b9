// Package pool implements the Pool: it owns the listening socket, the
// set of active peers, the pending inbound/outbound peers, and drives
// discovery, reconnection, broadcast, peer validation, and gossip
// responses. Its supervisory state is owned by one run() goroutine
// selecting over channels — a single command channel standing in for
// what a dispatch loop would otherwise split across several
// purpose-built channels (addpeer, delpeer, peerOp, ...), generalized
// here to the broader set of operations this pool's contract requires.
package pool

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/common/mclock"
	"github.com/oxidex/peerpool/eventbus"
	"github.com/oxidex/peerpool/identity"
	"github.com/oxidex/peerpool/nodelist"
	"github.com/oxidex/peerpool/peer"
	"github.com/oxidex/peerpool/store"
	"github.com/oxidex/peerpool/wire"
)

// peerEntry pairs an admitted Peer with its admission time, used for the
// PeersInfo() uptime column and, via connectedAt, for the
// connection-duration field logged when the peer later closes.
type peerEntry struct {
	peer        *peer.Peer
	admittedAt  time.Time
	connectedAt mclock.AbsTime
}

// runState is the supervisory state the run() goroutine exclusively
// owns: the peers, pendingOutboundPeers, and pendingInboundPeers
// collections, mutated from nowhere else.
type runState struct {
	peers           map[string]*peerEntry // key: hex(nodePubKey), admitted
	pendingOutbound map[string]*peer.Peer // key: hex(nodePubKey), dialing or handshaking
	pendingInbound  map[*peer.Peer]struct{}
}

type opResult struct {
	val interface{}
	err error
}

type opRequest struct {
	fn    func(st *runState) (interface{}, error)
	reply chan opResult
}

type handshakeEvent struct {
	p         *peer.Peer
	pubKeyHex string // known ahead of time for outbound dials; empty until decoded for inbound
	inbound   bool
	err       error
}

type closeEvent struct {
	p      *peer.Peer
	sent   *wire.DisconnectionReason
	recv   *wire.DisconnectionReason
}

// Pool is the daemon's sole collaborator for remote-node traffic.
type Pool struct {
	cfg    Config
	key    identity.NodeKey
	verify func(pubKey, nonce, signature []byte) bool
	nodes  *nodelist.NodeList
	store  store.NodeStore
	bus    *eventbus.Bus
	log    *logrus.Entry

	listener   net.Listener
	listenPort uint16

	advertisedMu sync.RWMutex
	advertised   []address.Address

	nodeStateMu sync.RWMutex
	nodeState   wire.NodeStateBody

	connected     atomic.Bool
	disconnecting atomic.Bool

	quit        chan struct{}
	loopDone    chan struct{}
	ops         chan opRequest
	handshakeCh chan *handshakeEvent
	closeCh     chan *closeEvent

	// retryCancel is closed at the very start of Disconnect, before
	// anything else, so a bulk-reconnect or reconnect-on-close dial
	// currently backing off unblocks immediately instead of holding up
	// reconnectWG.Wait() for as long as RetryMaxPeriod.
	retryCancel chan struct{}

	counters counters

	bgWG        sync.WaitGroup // accept loop, reachability probes, discovery ticker, ban watcher
	reconnectWG sync.WaitGroup // bulk-reconnect and reconnect-on-close dial attempts
}

// New constructs a Pool around the given identity and durable node
// catalog, the Config struct embedded the way a daemon's own top-level
// config typically embeds its subsystems' configs. An eventbus.Bus is
// spawned internally, surfacing every peer/packet lifecycle event plus
// node.ban/node.unban.
func New(cfg Config, key identity.NodeKey, s store.NodeStore, log *logrus.Entry) (*Pool, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	bus, err := eventbus.New(fmt.Sprintf("peerpool_bus_%p", key))
	if err != nil {
		return nil, err
	}
	log = log.WithField("component", "pool")
	p := &Pool{
		cfg:         cfg.withDefaults(),
		key:         key,
		store:       s,
		bus:         bus,
		log:         log,
		nodes:       nodelist.New(s, bus, log),
		quit:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		ops:         make(chan opRequest),
		handshakeCh: make(chan *handshakeEvent),
		closeCh:     make(chan *closeEvent),
		retryCancel: make(chan struct{}),
	}
	if v, ok := key.(identity.Verifier); ok {
		p.verify = v.Verify
	} else {
		p.verify = identity.VerifySignature
	}
	for _, a := range cfg.Addresses {
		if parsed, err := address.Parse(a); err == nil {
			p.advertised = append(p.advertised, parsed)
		} else {
			log.WithError(err).WithField("address", a).Warn("ignoring unparsable configured address")
		}
	}
	return p, nil
}

// Bus exposes the event bus adapter for external subscribers.
func (p *Pool) Bus() *eventbus.Bus { return p.bus }

// Connected reports whether Init has completed and Disconnect has not yet
// finished.
func (p *Pool) Connected() bool { return p.connected.Load() }

// ListenPort returns the bound listening port, useful when cfg.Port is 0
// and the OS assigned an ephemeral one. Zero if not listening.
func (p *Pool) ListenPort() uint16 { return p.listenPort }

func (p *Pool) peerConfig() peer.Config {
	return peer.Config{
		OurVersion:           p.cfg.OurVersion,
		MinCompatibleVersion: p.cfg.MinCompatibleVersion,
		StallInterval:        p.cfg.StallInterval,
		SendQueueHighWater:   p.cfg.SendQueueHighWater,
		DialTimeout:          p.cfg.DialTimeout,
		RetryMaxPeriod:       p.cfg.RetryMaxPeriod,
	}
}

func (p *Pool) ourNodeState() wire.NodeStateBody {
	p.nodeStateMu.RLock()
	defer p.nodeStateMu.RUnlock()
	ns := p.nodeState
	ns.Addresses = p.AdvertisedAddresses()
	return ns
}

// AdvertisedAddresses returns the pool's own advertised address set.
func (p *Pool) AdvertisedAddresses() []address.Address {
	p.advertisedMu.RLock()
	defer p.advertisedMu.RUnlock()
	return append([]address.Address(nil), p.advertised...)
}

func pubKeyHex(pubKey []byte) string { return hex.EncodeToString(pubKey) }

// do submits fn to the run() goroutine and blocks for its result — a
// single general-purpose command channel rather than one purpose-built
// channel per operation, to cover the Pool's broader command surface.
func (p *Pool) do(fn func(st *runState) (interface{}, error)) (interface{}, error) {
	reply := make(chan opResult, 1)
	select {
	case p.ops <- opRequest{fn: fn, reply: reply}:
	case <-p.quit:
		return nil, ErrPoolClosed
	}
	select {
	case res := <-reply:
		return res.val, res.err
	case <-p.quit:
		return nil, ErrPoolClosed
	}
}

// Init performs the pool's startup sequence: bind the listener if
// configured, resolve the external address if enabled, load the
// NodeList, start the supervisory loop, then asynchronously attempt
// outbound connections to every known node and fire reachability probes.
// Init returns once listening succeeds (or immediately, if not
// listening); bulk reconnection runs in the background.
func (p *Pool) Init() error {
	if p.cfg.Listen {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", p.cfg.Port))
		if err != nil {
			return err
		}
		p.listener = l
		p.listenPort = uint16(l.Addr().(*net.TCPAddr).Port)
		p.bgWG.Add(1)
		go p.acceptLoop()
	}

	if p.cfg.DetectExternalIP {
		if ip, err := detectExternalIP(context.Background()); err == nil {
			p.advertisedMu.Lock()
			p.advertised = append(p.advertised, address.New(ip.String(), p.listenPort))
			p.advertisedMu.Unlock()
		} else {
			p.log.WithError(err).Debug("external IP detection failed")
		}
	}

	if err := p.nodes.Load(); err != nil {
		p.log.WithError(err).Warn("failed to load node catalog")
	}

	go p.run()
	p.connected.Store(true)

	p.bgWG.Add(1)
	go p.bulkReconnect()

	for _, a := range p.AdvertisedAddresses() {
		p.bgWG.Add(1)
		go p.probeReachability(a)
	}

	if p.cfg.Discover && p.cfg.DiscoverMinutes > 0 {
		p.bgWG.Add(1)
		go p.discoveryTicker()
	}

	p.bgWG.Add(1)
	go p.watchBans()

	return nil
}

// run is the Pool's single supervisory goroutine: every mutation of
// peers, pendingOutbound, and pendingInbound happens here.
func (p *Pool) run() {
	defer close(p.loopDone)
	st := &runState{
		peers:           make(map[string]*peerEntry),
		pendingOutbound: make(map[string]*peer.Peer),
		pendingInbound:  make(map[*peer.Peer]struct{}),
	}
	for {
		select {
		case <-p.quit:
			return
		case req := <-p.ops:
			val, err := req.fn(st)
			req.reply <- opResult{val: val, err: err}
		case evt := <-p.handshakeCh:
			p.onHandshakeResult(st, evt)
		case evt := <-p.closeCh:
			p.onPeerClosed(st, evt)
		}
	}
}
