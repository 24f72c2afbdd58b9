// Package identity defines the NodeKey signing capability consumed by
// Peer and Pool, plus the deterministic alias derivation used to give
// pubkeys a short, human-typeable handle.
package identity

import (
	"encoding/base32"
	"strings"
)

// NodeKey is the opaque signing capability the embedding daemon supplies.
// The pool never generates or stores private key material itself.
type NodeKey interface {
	PubKey() []byte
	Sign(nonce []byte) ([]byte, error)
}

// Verifier is implemented by NodeKey providers that can also verify a
// signature against an arbitrary claimed public key, needed during
// handshake to check the remote's self-claimed identity.
type Verifier interface {
	Verify(pubKey, nonce, signature []byte) bool
}

var aliasEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Alias derives a short, deterministic, human-typeable handle from a
// pubkey (spec glossary: "a deterministic human-readable handle derived
// from a pubkey"). It is not reversible and is not a security property.
func Alias(pubKey []byte) string {
	if len(pubKey) == 0 {
		return ""
	}
	sum := checksum(pubKey)
	enc := strings.ToLower(aliasEncoding.EncodeToString(sum[:5]))
	return enc
}

// checksum is a tiny non-cryptographic mixing function; Alias only needs
// determinism and a low collision rate among a node's own known peers, not
// collision resistance.
func checksum(data []byte) [5]byte {
	var out [5]byte
	var h uint64 = 14695981039346656037 // FNV offset basis
	for _, b := range data {
		h ^= uint64(b)
		h *= 1099511628211 // FNV prime
	}
	for i := range out {
		out[i] = byte(h >> (uint(i) * 8))
	}
	return out
}
