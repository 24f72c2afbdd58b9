package wire

import (
	"github.com/oxidex/peerpool/address"
)

func encodeAddress(e *encoder, a address.Address) {
	e.str(a.Host)
	e.u16(a.Port)
}

func decodeAddress(d *decoder) address.Address {
	host := d.str()
	port := d.u16()
	return address.New(host, port)
}

func encodeAddresses(e *encoder, addrs []address.Address) {
	e.u32(uint32(len(addrs)))
	for _, a := range addrs {
		encodeAddress(e, a)
	}
}

func decodeAddresses(d *decoder) []address.Address {
	n := d.u32()
	if d.err != nil || n > maxFieldBytes {
		return nil
	}
	out := make([]address.Address, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, decodeAddress(d))
	}
	return out
}

// NodeStateBody is the advertised-capabilities payload embedded in Hello
// and carried standalone in NodeStateUpdate.
type NodeStateBody struct {
	Addresses        []address.Address
	Pairs            []string
	AuxIdentifiers   map[string]string
	AuxPubKeys       map[string]string
	AuxUris          map[string][]string
	TokenIdentifiers map[string]string
}

func (n *NodeStateBody) encode(e *encoder) {
	encodeAddresses(e, n.Addresses)
	e.strSlice(n.Pairs)
	e.strMap(n.AuxIdentifiers)
	e.strMap(n.AuxPubKeys)
	e.strSliceMap(n.AuxUris)
	e.strMap(n.TokenIdentifiers)
}

func decodeNodeState(d *decoder) NodeStateBody {
	return NodeStateBody{
		Addresses:        decodeAddresses(d),
		Pairs:            d.strSlice(),
		AuxIdentifiers:   d.strMap(),
		AuxPubKeys:       d.strMap(),
		AuxUris:          d.strSliceMap(),
		TokenIdentifiers: d.strMap(),
	}
}

// Hello is the only frame required to be bit-exact for interoperability.
// It carries the handshake's identity claim and nonce.
type Hello struct {
	Version    string
	NodePubKey []byte
	Signature  []byte
	Nonce      []byte
	NodeState  NodeStateBody
}

func (*Hello) Type() PacketType { return PacketHello }

func (h *Hello) encode(e *encoder) {
	e.str(h.Version)
	e.rawBytes(h.NodePubKey)
	e.rawBytes(h.Signature)
	e.rawBytes(h.Nonce)
	h.NodeState.encode(e)
}

func (h *Hello) decode(d *decoder) error {
	h.Version = d.str()
	h.NodePubKey = d.rawBytes()
	h.Signature = d.rawBytes()
	h.Nonce = d.rawBytes()
	h.NodeState = decodeNodeState(d)
	return d.err
}

// SessionInitAck confirms receipt of Hello, completing phase two of the
// handshake.
type SessionInitAck struct{}

func (*SessionInitAck) Type() PacketType   { return PacketSessionInitAck }
func (*SessionInitAck) encode(*encoder)    {}
func (*SessionInitAck) decode(*decoder) error { return nil }

// Ping is a heartbeat request; Pong must echo its header id as reqId.
type Ping struct{}

func (*Ping) Type() PacketType      { return PacketPing }
func (*Ping) encode(*encoder)       {}
func (*Ping) decode(*decoder) error { return nil }

// Pong answers a Ping.
type Pong struct{}

func (*Pong) Type() PacketType      { return PacketPong }
func (*Pong) encode(*encoder)       {}
func (*Pong) decode(*decoder) error { return nil }

// Disconnecting announces the reason a peer is about to close the socket.
// Its absence on the wire is indistinguishable from network failure, so
// receivers must not rely on it being delivered.
type Disconnecting struct {
	Reason  DisconnectionReason
	Payload []byte
}

func (*Disconnecting) Type() PacketType { return PacketDisconnecting }

func (p *Disconnecting) encode(e *encoder) {
	e.u8(uint8(p.Reason))
	e.rawBytes(p.Payload)
}

func (p *Disconnecting) decode(d *decoder) error {
	p.Reason = DisconnectionReason(d.u8())
	p.Payload = d.rawBytes()
	return d.err
}

// Order is forwarded to external subscribers unmodified; the pool does
// not interpret its payload.
type Order struct {
	PairID  string
	Payload []byte
}

func (*Order) Type() PacketType { return PacketOrder }
func (o *Order) encode(e *encoder) {
	e.str(o.PairID)
	e.rawBytes(o.Payload)
}
func (o *Order) decode(d *decoder) error {
	o.PairID = d.str()
	o.Payload = d.rawBytes()
	return d.err
}

// OrderInvalidation signals withdrawal of a previously broadcast order.
type OrderInvalidation struct {
	OrderID string
	PairID  string
}

func (*OrderInvalidation) Type() PacketType { return PacketOrderInvalidation }
func (o *OrderInvalidation) encode(e *encoder) {
	e.str(o.OrderID)
	e.str(o.PairID)
}
func (o *OrderInvalidation) decode(d *decoder) error {
	o.OrderID = d.str()
	o.PairID = d.str()
	return d.err
}

// GetOrders requests the remote's order book for a trading pair.
type GetOrders struct {
	PairIDs []string
}

func (*GetOrders) Type() PacketType     { return PacketGetOrders }
func (g *GetOrders) encode(e *encoder)  { e.strSlice(g.PairIDs) }
func (g *GetOrders) decode(d *decoder) error {
	g.PairIDs = d.strSlice()
	return d.err
}

// Orders answers GetOrders with opaque order payloads.
type Orders struct {
	Payload []byte
}

func (*Orders) Type() PacketType    { return PacketOrders }
func (o *Orders) encode(e *encoder) { e.rawBytes(o.Payload) }
func (o *Orders) decode(d *decoder) error {
	o.Payload = d.rawBytes()
	return d.err
}

// GetNodes is the gossip request, answered with Nodes.
type GetNodes struct{}

func (*GetNodes) Type() PacketType      { return PacketGetNodes }
func (*GetNodes) encode(*encoder)       {}
func (*GetNodes) decode(*decoder) error { return nil }

// NodeEntry is one record in a Nodes reply.
type NodeEntry struct {
	PubKey    []byte
	Addresses []address.Address
}

// Nodes answers GetNodes with every currently open peer except the
// requester, excluding peers without known listening addresses.
type Nodes struct {
	Entries []NodeEntry
}

func (*Nodes) Type() PacketType { return PacketNodes }

func (n *Nodes) encode(e *encoder) {
	e.u32(uint32(len(n.Entries)))
	for _, ent := range n.Entries {
		e.rawBytes(ent.PubKey)
		encodeAddresses(e, ent.Addresses)
	}
}

func (n *Nodes) decode(d *decoder) error {
	cnt := d.u32()
	if d.err != nil {
		return d.err
	}
	if cnt > maxFieldBytes {
		return ErrMalformedPacket
	}
	n.Entries = make([]NodeEntry, 0, cnt)
	for i := uint32(0); i < cnt; i++ {
		pubKey := d.rawBytes()
		addrs := decodeAddresses(d)
		n.Entries = append(n.Entries, NodeEntry{PubKey: pubKey, Addresses: addrs})
	}
	return d.err
}

// NodeStateUpdate replaces the sender's mirrored NodeState mid-session.
type NodeStateUpdate struct {
	NodeState NodeStateBody
}

func (*NodeStateUpdate) Type() PacketType { return PacketNodeStateUpdate }
func (n *NodeStateUpdate) encode(e *encoder) {
	n.NodeState.encode(e)
}
func (n *NodeStateUpdate) decode(d *decoder) error {
	n.NodeState = decodeNodeState(d)
	return d.err
}

// SanitySwapInit, SwapRequest, SwapAccepted, SwapFailed are forwarded
// verbatim to external subscribers; the pool never interprets their
// contents.
type SanitySwapInit struct{ Payload []byte }

func (*SanitySwapInit) Type() PacketType      { return PacketSanitySwapInit }
func (s *SanitySwapInit) encode(e *encoder)   { e.rawBytes(s.Payload) }
func (s *SanitySwapInit) decode(d *decoder) error {
	s.Payload = d.rawBytes()
	return d.err
}

type SwapRequest struct{ Payload []byte }

func (*SwapRequest) Type() PacketType    { return PacketSwapRequest }
func (s *SwapRequest) encode(e *encoder) { e.rawBytes(s.Payload) }
func (s *SwapRequest) decode(d *decoder) error {
	s.Payload = d.rawBytes()
	return d.err
}

type SwapAccepted struct{ Payload []byte }

func (*SwapAccepted) Type() PacketType    { return PacketSwapAccepted }
func (s *SwapAccepted) encode(e *encoder) { e.rawBytes(s.Payload) }
func (s *SwapAccepted) decode(d *decoder) error {
	s.Payload = d.rawBytes()
	return d.err
}

type SwapFailed struct{ Payload []byte }

func (*SwapFailed) Type() PacketType    { return PacketSwapFailed }
func (s *SwapFailed) encode(e *encoder) { e.rawBytes(s.Payload) }
func (s *SwapFailed) decode(d *decoder) error {
	s.Payload = d.rawBytes()
	return d.err
}
