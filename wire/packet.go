// Package wire implements the length-prefixed binary frame codec and the
// packet taxonomy exchanged between peers.
package wire

import (
	"github.com/google/uuid"
)

// PacketType identifies the wire-level shape of a packet's body. Values are
// wire-stable; new types are appended, never renumbered.
type PacketType uint8

const (
	PacketHello PacketType = iota + 1
	PacketSessionInitAck
	PacketPing
	PacketPong
	PacketDisconnecting
	PacketOrder
	PacketOrderInvalidation
	PacketGetOrders
	PacketOrders
	PacketGetNodes
	PacketNodes
	PacketNodeStateUpdate
	PacketSanitySwapInit
	PacketSwapRequest
	PacketSwapAccepted
	PacketSwapFailed
)

func (t PacketType) String() string {
	switch t {
	case PacketHello:
		return "Hello"
	case PacketSessionInitAck:
		return "SessionInitAck"
	case PacketPing:
		return "Ping"
	case PacketPong:
		return "Pong"
	case PacketDisconnecting:
		return "Disconnecting"
	case PacketOrder:
		return "Order"
	case PacketOrderInvalidation:
		return "OrderInvalidation"
	case PacketGetOrders:
		return "GetOrders"
	case PacketOrders:
		return "Orders"
	case PacketGetNodes:
		return "GetNodes"
	case PacketNodes:
		return "Nodes"
	case PacketNodeStateUpdate:
		return "NodeStateUpdate"
	case PacketSanitySwapInit:
		return "SanitySwapInit"
	case PacketSwapRequest:
		return "SwapRequest"
	case PacketSwapAccepted:
		return "SwapAccepted"
	case PacketSwapFailed:
		return "SwapFailed"
	default:
		return "Unknown"
	}
}

// Header carries the packet's identity: every packet has a fresh UUIDv4
// id; response packets additionally carry reqId equal to the id of the
// request they answer.
type Header struct {
	ID    uuid.UUID
	ReqID *uuid.UUID
}

// NewHeader builds a header with a fresh random id and no reqId.
func NewHeader() Header {
	return Header{ID: uuid.New()}
}

// NewResponseHeader builds a header answering the given request id.
func NewResponseHeader(reqID uuid.UUID) Header {
	id := reqID
	return Header{ID: uuid.New(), ReqID: &id}
}

// Body is implemented by every packet payload type in this package.
type Body interface {
	Type() PacketType
	encode(w *encoder)
	decode(r *decoder) error
}

// Packet is a decoded frame: a typed body plus its header.
type Packet struct {
	Header Header
	Body   Body
}

func (p *Packet) Type() PacketType {
	return p.Body.Type()
}
