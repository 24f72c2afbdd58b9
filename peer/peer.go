// Package peer implements per-connection handshake, heartbeat, send
// queue, and stall detection for one remote node socket. It owns no
// knowledge of other peers; the Pool is its sole collaborator, reached
// through the Callbacks a Pool installs at construction — a weak
// back-reference used purely for event delivery.
package peer

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/sirupsen/logrus"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/identity"
	"github.com/oxidex/peerpool/reputation"
	"github.com/oxidex/peerpool/wire"
)

// Direction distinguishes who dialed whom.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// State is the Peer lifecycle: Connecting -> Handshaking -> Open ->
// Closing -> Closed. An un-admitted Peer failing at any earlier state is
// discarded without reaching Open.
type State int32

const (
	StateConnecting State = iota
	StateHandshaking
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks is the Pool's weak back-reference, installed once at
// construction. Every callback is invoked from the Peer's own goroutines
// and must not block or call back into the Peer synchronously.
type Callbacks struct {
	OnPacket          func(p *Peer, pkt *wire.Packet)
	OnPairDropped     func(p *Peer, pairID string)
	OnVerifyPairs     func(p *Peer, pairs []string)
	OnNodeStateUpdate func(p *Peer, state wire.NodeStateBody)
	OnReputation      func(p *Peer, event reputation.Event)
	OnClose           func(p *Peer, sent, recv *wire.DisconnectionReason)
}

// Config tunes timing and policy; zero-value fields fall back to the
// spec's stated defaults via withDefaults.
type Config struct {
	OurVersion           string
	MinCompatibleVersion string

	StallInterval         time.Duration // default 30s (heartbeat & detection)
	SendQueueHighWater    time.Duration // default 10s
	RetryInitialBackoff   time.Duration // default 1s
	RetryMaxBackoff       time.Duration // default 60s
	RetryMaxPeriod        time.Duration // default 7m
	DialTimeout           time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.StallInterval == 0 {
		c.StallInterval = 30 * time.Second
	}
	if c.SendQueueHighWater == 0 {
		c.SendQueueHighWater = 10 * time.Second
	}
	if c.RetryInitialBackoff == 0 {
		c.RetryInitialBackoff = time.Second
	}
	if c.RetryMaxBackoff == 0 {
		c.RetryMaxBackoff = 60 * time.Second
	}
	if c.RetryMaxPeriod == 0 {
		c.RetryMaxPeriod = 7 * time.Minute
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Peer is one remote connection's state machine.
type Peer struct {
	cfg       Config
	key       identity.NodeKey
	verify    func(pubKey, nonce, signature []byte) bool
	log       *logrus.Entry
	callbacks Callbacks

	direction          Direction
	addr               address.Address
	expectedNodePubKey []byte // set on outbound dials with a known target

	conn    net.Conn
	framer  *wire.Framer
	writeMu sync.Mutex // serializes framer writes across the send actor, heartbeat, and close paths

	mu                      sync.RWMutex
	state                   State
	nodePubKey              []byte
	version                 string
	alias                   string
	active                  bool
	nodeState               wire.NodeStateBody
	sentDisconnectionReason *wire.DisconnectionReason
	recvDisconnectionReason *wire.DisconnectionReason

	sendPID *actor.PID

	stallTimer *time.Timer
	pingTimer  *time.Timer

	closeOnce sync.Once
	closed    chan struct{}

	retryCancel chan struct{}
}

// New constructs a Peer around an already-established net.Conn (either
// accepted inbound, or dialed outbound by the caller). direction and addr
// describe the connection; expectedNodePubKey, if non-nil, is checked
// against the remote's handshake claim on outbound connections.
func New(conn net.Conn, direction Direction, addr address.Address, key identity.NodeKey, verify func(pubKey, nonce, signature []byte) bool, cfg Config, callbacks Callbacks, log *logrus.Entry) *Peer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Peer{
		cfg:       cfg.withDefaults(),
		key:       key,
		verify:    verify,
		log:       log.WithField("component", "peer").WithField("remote", addr.String()).WithField("direction", direction.String()),
		callbacks: callbacks,
		direction: direction,
		addr:      addr,
		conn:      conn,
		framer:    wire.NewFramer(conn),
		state:     StateConnecting,
		closed:    make(chan struct{}),
	}
}

// writePacket serializes every outbound frame regardless of which
// goroutine originates it (send actor, heartbeat, or close path) — the
// Framer itself is not safe for concurrent writers.
func (p *Peer) writePacket(pkt *wire.Packet) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.framer.WritePacket(pkt)
}

// SetExpectedNodePubKey restricts an outbound Peer to the given claimed
// identity; a mismatch during beginOpen fails the handshake.
func (p *Peer) SetExpectedNodePubKey(pubKey []byte) {
	p.expectedNodePubKey = append([]byte(nil), pubKey...)
}

// Direction, Address, NodePubKey, Version, Alias, State, Active are
// read-only snapshots of Peer identity and lifecycle.
func (p *Peer) Direction() Direction { return p.direction }
func (p *Peer) Address() address.Address { return p.addr }

func (p *Peer) NodePubKey() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]byte(nil), p.nodePubKey...)
}

func (p *Peer) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

func (p *Peer) Alias() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alias
}

func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// SetActive is called by the Pool exactly when it admits or evicts this
// Peer from its peers map: the active flag and peers-map membership are
// always set and cleared together.
func (p *Peer) SetActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
}

// NodeState returns the peer's last-known advertised capabilities.
func (p *Peer) NodeState() wire.NodeStateBody {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodeState
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// beginOpen performs phase one of the handshake: exchange Hello frames,
// verify the remote's self-claimed identity and version.
func (p *Peer) beginOpen(ourState wire.NodeStateBody) error {
	p.setState(StateHandshaking)

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sig, err := p.key.Sign(nonce)
	if err != nil {
		return err
	}
	hello := &wire.Hello{
		Version:    p.cfg.OurVersion,
		NodePubKey: p.key.PubKey(),
		Signature:  sig,
		Nonce:      nonce,
		NodeState:  ourState,
	}
	if err := p.writePacket(&wire.Packet{Header: wire.NewHeader(), Body: hello}); err != nil {
		return err
	}

	pkt, err := p.framer.ReadPacket()
	if err != nil {
		return err
	}
	remoteHello, ok := pkt.Body.(*wire.Hello)
	if !ok {
		p.failHandshake(wire.DiscWireProtocolErr)
		return fmt.Errorf("%w: expected Hello, got %s", ErrUnexpectedPacket, pkt.Type())
	}

	if err := p.validateRemoteHello(remoteHello); err != nil {
		return err
	}

	p.mu.Lock()
	p.nodePubKey = remoteHello.NodePubKey
	p.version = remoteHello.Version
	p.alias = identity.Alias(remoteHello.NodePubKey)
	p.nodeState = remoteHello.NodeState
	p.mu.Unlock()

	return nil
}

func (p *Peer) validateRemoteHello(h *wire.Hello) error {
	v, ok := parseSemver(h.Version)
	if !ok {
		p.failHandshake(wire.DiscMalformedVersion)
		return ErrMalformedVersion
	}
	if min, ok := parseSemver(p.cfg.MinCompatibleVersion); ok && !v.atLeast(min) {
		p.failHandshake(wire.DiscIncompatibleProtocolVersion)
		return ErrIncompatibleVersion
	}
	if subtle.ConstantTimeCompare(h.NodePubKey, p.key.PubKey()) == 1 {
		p.failHandshake(wire.DiscConnectedToSelf)
		return ErrConnectedToSelf
	}
	if p.direction == Outbound && len(p.expectedNodePubKey) > 0 {
		if subtle.ConstantTimeCompare(h.NodePubKey, p.expectedNodePubKey) != 1 {
			p.failHandshake(wire.DiscWireProtocolErr)
			return ErrUnexpectedPubKey
		}
	}
	if p.verify == nil || !p.verify(h.NodePubKey, h.Nonce, h.Signature) {
		p.failHandshake(wire.DiscWireProtocolErr)
		return ErrSignatureVerificationFailed
	}
	return nil
}

// completeOpen performs phase two: exchange SessionInitAck, then
// transition to Open and start the heartbeat/stall timers.
func (p *Peer) completeOpen() error {
	if err := p.writePacket(&wire.Packet{Header: wire.NewHeader(), Body: &wire.SessionInitAck{}}); err != nil {
		return err
	}
	pkt, err := p.framer.ReadPacket()
	if err != nil {
		return err
	}
	if _, ok := pkt.Body.(*wire.SessionInitAck); !ok {
		return fmt.Errorf("%w: expected SessionInitAck, got %s", ErrUnexpectedPacket, pkt.Type())
	}

	if err := p.startSendQueue(); err != nil {
		return err
	}
	p.setState(StateOpen)
	p.startHeartbeat()
	go p.readLoop()
	return nil
}

// Open runs the full handshake for either direction and, on success,
// leaves the Peer in StateOpen with its read loop and send queue running.
// On failure the Peer is closed: a failure that did not already close it
// with a specific reason (a framing error, an unexpected packet) closes it
// with WireProtocolErr.
func (p *Peer) Open(ourState wire.NodeStateBody) error {
	err := p.beginOpen(ourState)
	if err == nil {
		err = p.completeOpen()
	}
	if err != nil {
		p.failHandshake(wire.DiscWireProtocolErr)
	}
	return err
}

// --- send queue -----------------------------------------------------

type sendFrame struct {
	packet     *wire.Packet
	enqueuedAt time.Time
}

type sendActor struct{ peer *Peer }

// Receive drains the per-peer mailbox in FIFO order, writing each frame
// through the Framer. A frame that sat in the mailbox longer than
// SendQueueHighWater is dropped and triggers a ResponseStalling close —
// this is the Peer's backpressure signal to broadcasters.
func (a *sendActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *sendFrame:
		if time.Since(msg.enqueuedAt) > a.peer.cfg.SendQueueHighWater {
			a.peer.Close(ptrReason(wire.DiscResponseStalling), nil)
			return
		}
		if err := a.peer.writePacket(msg.packet); err != nil {
			a.peer.Close(nil, nil)
			return
		}
		a.peer.resetPingTimer()
	}
}

func (p *Peer) startSendQueue() error {
	props := actor.FromProducer(func() actor.Actor {
		return &sendActor{peer: p}
	})
	// Named per-instance, mirroring chain/service/chain.go's
	// actor.SpawnNamed("chain_message"); the pointer address keeps names
	// unique across the many Peers a Pool spawns over its lifetime.
	pid, err := actor.SpawnNamed(props, fmt.Sprintf("peer_send_%p", p))
	if err != nil {
		return err
	}
	p.sendPID = pid
	return nil
}

// SendPacket enqueues an outbound frame. A fresh header is assigned if
// the caller left one unset.
func (p *Peer) SendPacket(pkt *wire.Packet) error {
	if p.State() != StateOpen {
		return ErrNotOpen
	}
	if isZeroHeader(pkt.Header) {
		pkt.Header = wire.NewHeader()
	}
	p.sendPID.Tell(&sendFrame{packet: pkt, enqueuedAt: time.Now()})
	return nil
}

func isZeroHeader(h wire.Header) bool {
	var zero [16]byte
	return h.ID == zero
}

// --- heartbeat & stall -----------------------------------------------

func (p *Peer) startHeartbeat() {
	p.mu.Lock()
	p.stallTimer = time.AfterFunc(p.cfg.StallInterval, p.onStall)
	p.pingTimer = time.AfterFunc(p.cfg.StallInterval, p.onPingDue)
	p.mu.Unlock()
}

func (p *Peer) resetStallTimer() {
	p.mu.RLock()
	t := p.stallTimer
	p.mu.RUnlock()
	if t != nil {
		t.Reset(p.cfg.StallInterval)
	}
}

func (p *Peer) resetPingTimer() {
	p.mu.RLock()
	t := p.pingTimer
	p.mu.RUnlock()
	if t != nil {
		t.Reset(p.cfg.StallInterval)
	}
}

func (p *Peer) onStall() {
	if p.State() != StateOpen {
		return
	}
	reason := wire.DiscResponseStalling
	p.Close(&reason, nil)
}

func (p *Peer) onPingDue() {
	if p.State() != StateOpen {
		return
	}
	_ = p.SendPacket(&wire.Packet{Header: wire.NewHeader(), Body: &wire.Ping{}})
}

// --- read loop ---------------------------------------------------------

func (p *Peer) readLoop() {
	for {
		pkt, err := p.framer.ReadPacket()
		if err != nil {
			if p.State() != StateOpen {
				return // our own Close already tore the socket down
			}
			// Any framing error — FrameTooLarge, MalformedPacket,
			// UnexpectedEOF — closes with WireProtocolErr and emits the
			// matching reputation event.
			reason := wire.DiscWireProtocolErr
			p.Close(&reason, nil)
			if p.callbacks.OnReputation != nil {
				p.callbacks.OnReputation(p, reputation.WireProtocolErr)
			}
			return
		}
		p.resetStallTimer()
		p.handlePacket(pkt)
	}
}

func (p *Peer) handlePacket(pkt *wire.Packet) {
	switch body := pkt.Body.(type) {
	case *wire.Ping:
		reply := &wire.Packet{Header: wire.NewResponseHeader(pkt.Header.ID), Body: &wire.Pong{}}
		_ = p.SendPacket(reply)
	case *wire.Pong:
		// heartbeat satisfied by the stall-timer reset above; no reqId
		// correlation is required for liveness purposes.
	case *wire.Disconnecting:
		reason := body.Reason
		p.mu.Lock()
		p.recvDisconnectionReason = &reason
		p.mu.Unlock()
	case *wire.NodeStateUpdate:
		p.mu.Lock()
		p.nodeState = body.NodeState
		p.mu.Unlock()
		if p.callbacks.OnNodeStateUpdate != nil {
			p.callbacks.OnNodeStateUpdate(p, body.NodeState)
		}
	}
	if p.callbacks.OnPacket != nil {
		p.callbacks.OnPacket(p, pkt)
	}
}

// --- close ---------------------------------------------------------

// Close initiates graceful shutdown. If reason is non-nil, a
// Disconnecting frame is sent
// best-effort before the socket closes. The frame is written directly
// rather than through the send queue, which Close tears down immediately
// after; writePacket's mutex orders it against any frame the send actor
// is still writing. Safe to call more than once and from
// more than one goroutine; only the first call has effect.
func (p *Peer) Close(reason *wire.DisconnectionReason, payload []byte) {
	p.closeOnce.Do(func() {
		p.setState(StateClosing)
		if reason != nil {
			_ = p.writePacket(&wire.Packet{Header: wire.NewHeader(), Body: &wire.Disconnecting{Reason: *reason, Payload: payload}})
		}
		p.teardown(reason)
	})
}

// failHandshake is Close's handshake-phase counterpart: it runs before
// the send queue and heartbeat timers exist, so teardown has nothing to
// stop on those fronts beyond the socket itself.
func (p *Peer) failHandshake(reason wire.DisconnectionReason) {
	p.closeOnce.Do(func() {
		p.setState(StateClosing)
		_ = p.writePacket(&wire.Packet{Header: wire.NewHeader(), Body: &wire.Disconnecting{Reason: reason}})
		p.teardown(&reason)
	})
}

// teardown releases all peer resources and fires OnClose. Callers must
// already hold the closeOnce guard.
func (p *Peer) teardown(sent *wire.DisconnectionReason) {
	p.mu.Lock()
	if sent != nil {
		p.sentDisconnectionReason = sent
	}
	st, rt := p.stallTimer, p.pingTimer
	p.mu.Unlock()

	if st != nil {
		st.Stop()
	}
	if rt != nil {
		rt.Stop()
	}
	if p.sendPID != nil {
		p.sendPID.Stop()
	}
	_ = p.conn.Close()
	p.setState(StateClosed)
	close(p.closed)

	if p.callbacks.OnClose != nil {
		p.callbacks.OnClose(p, p.sentDisconnectionReason, p.recvDisconnectionReason)
	}
}

// Done returns a channel closed once the peer has fully shut down.
func (p *Peer) Done() <-chan struct{} {
	return p.closed
}

// RevokeConnectionRetries cancels a pending Dial retry loop that was given
// this Peer's RetryCancelChannel. Safe to call multiple times, and before
// Dial has started.
func (p *Peer) RevokeConnectionRetries() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retryCancel == nil {
		p.retryCancel = make(chan struct{})
	}
	select {
	case <-p.retryCancel:
	default:
		close(p.retryCancel)
	}
}

// SentDisconnectionReason and RecvDisconnectionReason expose the reasons
// recorded during close, for the Pool's reconnect-on-close decision.
func (p *Peer) SentDisconnectionReason() *wire.DisconnectionReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sentDisconnectionReason
}

func (p *Peer) RecvDisconnectionReason() *wire.DisconnectionReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.recvDisconnectionReason
}

func ptrReason(r wire.DisconnectionReason) *wire.DisconnectionReason { return &r }

// Dial establishes an outbound TCP connection to addr with exponential
// backoff: 1s doubling to 60s, bounded by a total retry window, default
// 7 minutes. A concurrent RevokeConnectionRetries call
// cancels pending retries immediately. This is a standalone function
// (not yet tied to a *Peer) so the Pool can dial before a Peer exists for
// the connection and wrap the result with New.
func Dial(addr address.Address, cfg Config, revokeCh <-chan struct{}) (net.Conn, error) {
	cfg = cfg.withDefaults()
	backoff := cfg.RetryInitialBackoff
	deadline := time.Now().Add(cfg.RetryMaxPeriod)

	for {
		conn, err := net.DialTimeout("tcp", addr.String(), cfg.DialTimeout)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrRetriesExceeded
		}
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-revokeCh:
			timer.Stop()
			return nil, ErrClosed
		}
		backoff *= 2
		if backoff > cfg.RetryMaxBackoff {
			backoff = cfg.RetryMaxBackoff
		}
	}
}

// RetryCancelChannel returns the channel RevokeConnectionRetries closes,
// creating it on first use, so it can be passed to Dial as the revoke
// signal.
func (p *Peer) RetryCancelChannel() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retryCancel == nil {
		p.retryCancel = make(chan struct{})
	}
	return p.retryCancel
}

// HigherPubKey reports whether a sorts after b under the lexicographic,
// constant-time comparison used to resolve a duplicate connection.
func HigherPubKey(a, b []byte) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	pa := make([]byte, n)
	pb := make([]byte, n)
	copy(pa, a)
	copy(pb, b)
	return subtle.ConstantTimeCompare(pa, pb) != 1 && greater(pa, pb)
}

func greater(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
