package peer

import "errors"

// Handshake and lifecycle errors. Each maps to a specific
// wire.DisconnectionReason the caller sends before tearing the socket
// down.
var (
	ErrMalformedVersion           = errors.New("peer: malformed version string")
	ErrIncompatibleVersion        = errors.New("peer: version below minimum compatible")
	ErrConnectedToSelf            = errors.New("peer: remote pubkey equals our own")
	ErrUnexpectedPubKey           = errors.New("peer: remote pubkey does not match expected")
	ErrSignatureVerificationFailed = errors.New("peer: remote failed to prove claimed pubkey")
	ErrUnexpectedPacket           = errors.New("peer: unexpected packet during handshake")
	ErrRetriesExceeded            = errors.New("peer: connection retries exceeded maximum period")
	ErrClosed                     = errors.New("peer: peer is closed")
	ErrNotOpen                    = errors.New("peer: peer is not open")
)
