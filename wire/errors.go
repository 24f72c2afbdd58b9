package wire

import "errors"

// Framing errors. Any of these closes the peer with WireProtocolErr. On an
// open peer it also emits a reputation event of the same name; during the
// handshake no reputation event is emitted.
var (
	ErrFrameTooLarge   = errors.New("wire: frame exceeds maximum size")
	ErrMalformedPacket = errors.New("wire: malformed packet")
	ErrUnexpectedEOF   = errors.New("wire: unexpected EOF reading frame")
)

// MaxFrameSize is the largest payload a Framer will accept.
const MaxFrameSize = 32 << 20 // 32 MiB
