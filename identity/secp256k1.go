package identity

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Secp256k1Key is the reference NodeKey implementation used by
// cmd/peerpoold and by tests. Production embedders may supply any NodeKey;
// this one is grounded on the secp256k1 family already present in the
// example corpus's dependency graph.
type Secp256k1Key struct {
	priv *secp256k1.PrivateKey
}

// NewSecp256k1Key generates a fresh key. The pool itself never generates
// or stores key material; this exists only to exercise the NodeKey
// contract in tests and the sample daemon.
func NewSecp256k1Key() (*Secp256k1Key, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Secp256k1Key{priv: priv}, nil
}

// Secp256k1KeyFromBytes rebuilds a key from a 32-byte scalar.
func Secp256k1KeyFromBytes(b []byte) *Secp256k1Key {
	priv := secp256k1.PrivKeyFromBytes(b)
	return &Secp256k1Key{priv: priv}
}

func (k *Secp256k1Key) PubKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// Bytes serializes the private scalar for persistence to a keyfile, the
// inverse of Secp256k1KeyFromBytes.
func (k *Secp256k1Key) Bytes() []byte {
	return k.priv.Serialize()
}

func (k *Secp256k1Key) Sign(nonce []byte) ([]byte, error) {
	digest := sha256.Sum256(nonce)
	sig := ecdsa.Sign(k.priv, digest[:])
	return sig.Serialize(), nil
}

// Verify checks a signature against an arbitrary claimed compressed
// pubkey, used during handshake to validate the remote's self-claim.
func (k *Secp256k1Key) Verify(pubKey, nonce, signature []byte) bool {
	return VerifySignature(pubKey, nonce, signature)
}

// VerifySignature is the free-function form used when no NodeKey instance
// is at hand (e.g. verifying a remote peer's claim).
func VerifySignature(pubKey, nonce, signature []byte) bool {
	pk, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(nonce)
	return sig.Verify(digest[:], pk)
}
