package pool

import "errors"

// Kind is a stable error-kind identifier, exposed so callers can switch
// on a typed value instead of comparing error strings.
type Kind string

const (
	KindAttemptedConnectionToSelf      Kind = "ATTEMPTED_CONNECTION_TO_SELF"
	KindPoolClosed                     Kind = "POOL_CLOSED"
	KindNodeTorAddress                 Kind = "NODE_TOR_ADDRESS"
	KindNodeIsBanned                   Kind = "NODE_IS_BANNED"
	KindNodeAlreadyConnected           Kind = "NODE_ALREADY_CONNECTED"
	KindNodeAlreadyBanned              Kind = "NODE_ALREADY_BANNED"
	KindNodeNotBanned                  Kind = "NODE_NOT_BANNED"
	KindAlreadyConnecting              Kind = "ALREADY_CONNECTING"
	KindNotConnected                   Kind = "NOT_CONNECTED"
	KindNodeNotFound                   Kind = "NODE_NOT_FOUND"
	KindMalformedVersion               Kind = "MALFORMED_VERSION"
	KindIncompatibleVersion            Kind = "INCOMPATIBLE_VERSION"
	KindConnectionRetriesMaxPeriod     Kind = "CONNECTION_RETRIES_MAX_PERIOD_EXCEEDED"
)

// Error wraps a Kind with a human-readable message, satisfying the normal
// error interface while letting callers recover the Kind via errors.As.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(k Kind, msg string) *Error { return &Error{Kind: k, msg: msg} }

var (
	ErrAttemptedConnectionToSelf = newError(KindAttemptedConnectionToSelf, "pool: attempted connection to self")
	ErrPoolClosed                = newError(KindPoolClosed, "pool: pool is closed")
	ErrNodeTorAddress            = newError(KindNodeTorAddress, "pool: address is a tor onion service but tor support is disabled")
	ErrNodeIsBanned              = newError(KindNodeIsBanned, "pool: node is banned")
	ErrNodeAlreadyConnected      = newError(KindNodeAlreadyConnected, "pool: node already connected")
	ErrNodeAlreadyBanned         = newError(KindNodeAlreadyBanned, "pool: node already banned")
	ErrNodeNotBanned             = newError(KindNodeNotBanned, "pool: node is not banned")
	ErrAlreadyConnecting         = newError(KindAlreadyConnecting, "pool: already connecting to node")
	ErrNotConnected              = newError(KindNotConnected, "pool: not connected to node")
	ErrNodeNotFound              = newError(KindNodeNotFound, "pool: node not found")
	ErrMalformedVersion          = newError(KindMalformedVersion, "pool: malformed version")
	ErrIncompatibleVersion       = newError(KindIncompatibleVersion, "pool: incompatible version")
	ErrConnectionRetriesMaxPeriod = newError(KindConnectionRetriesMaxPeriod, "pool: connection retries exceeded maximum period")
)

// errUnknownAlias mirrors nodelist.ErrUnknownAlias at the Pool boundary
// without importing nodelist's error identity into callers that only see
// the pool package.
var errUnknownAlias = errors.New("pool: unknown alias")
