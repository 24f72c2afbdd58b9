package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const headerLen = 4 // 4-byte big-endian length prefix

// Framer reads and writes length-prefixed frames over a byte stream,
// encoding and decoding the Packet values carried inside them.
// A Framer is not safe for concurrent use by multiple readers, nor by
// multiple writers; Peer serializes its writes with a mutex (see
// Peer.writePacket) and reads from one goroutine at a time.
type Framer struct {
	rw io.ReadWriter
}

// NewFramer wraps a byte stream.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{rw: rw}
}

// WritePacket encodes and writes a single frame.
func (f *Framer) WritePacket(p *Packet) error {
	payload := encodePacket(p)
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var lenBuf [headerLen]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := f.rw.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.rw.Write(payload)
	return err
}

// ReadPacket blocks until a full frame has been read and decoded.
func (f *Framer) ReadPacket() (*Packet, error) {
	var lenBuf [headerLen]byte
	if _, err := io.ReadFull(f.rw, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, ErrUnexpectedEOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(f.rw, payload); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, ErrUnexpectedEOF
		}
		return nil, err
	}
	return decodePacket(payload)
}

func encodePacket(p *Packet) []byte {
	e := newEncoder()
	e.u8(uint8(p.Body.Type()))
	e.rawBytes(p.Header.ID[:])
	e.bool(p.Header.ReqID != nil)
	if p.Header.ReqID != nil {
		e.rawBytes(p.Header.ReqID[:])
	}
	p.Body.encode(e)
	return e.bytes()
}

func decodePacket(data []byte) (*Packet, error) {
	d := newDecoder(data)
	typ := PacketType(d.u8())
	idBytes := d.rawBytes()
	hasReqID := d.boolean()
	var reqID *uuid.UUID
	if hasReqID {
		reqBytes := d.rawBytes()
		if d.err == nil {
			id, err := uuid.FromBytes(reqBytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
			}
			reqID = &id
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	body, err := newBody(typ)
	if err != nil {
		return nil, err
	}
	if err := body.decode(d); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	return &Packet{
		Header: Header{ID: id, ReqID: reqID},
		Body:   body,
	}, nil
}

func newBody(t PacketType) (Body, error) {
	switch t {
	case PacketHello:
		return &Hello{}, nil
	case PacketSessionInitAck:
		return &SessionInitAck{}, nil
	case PacketPing:
		return &Ping{}, nil
	case PacketPong:
		return &Pong{}, nil
	case PacketDisconnecting:
		return &Disconnecting{}, nil
	case PacketOrder:
		return &Order{}, nil
	case PacketOrderInvalidation:
		return &OrderInvalidation{}, nil
	case PacketGetOrders:
		return &GetOrders{}, nil
	case PacketOrders:
		return &Orders{}, nil
	case PacketGetNodes:
		return &GetNodes{}, nil
	case PacketNodes:
		return &Nodes{}, nil
	case PacketNodeStateUpdate:
		return &NodeStateUpdate{}, nil
	case PacketSanitySwapInit:
		return &SanitySwapInit{}, nil
	case PacketSwapRequest:
		return &SwapRequest{}, nil
	case PacketSwapAccepted:
		return &SwapAccepted{}, nil
	case PacketSwapFailed:
		return &SwapFailed{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown packet type %d", ErrMalformedPacket, t)
	}
}
