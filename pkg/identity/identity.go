package identity

import (
    "bytes"
    "crypto/ed25519"
    "encoding/binary"
    "encoding/hex"
    "fmt"
)

// Identity is an ed25519 public key used to name a node. It is a fixed-size
// value type so it can serve directly as a map key, and the raw byte order
// provides the deterministic total order used for leader tie-breaking.
type Identity [ed25519.PublicKeySize]byte

// FromPublicKey converts a raw ed25519 public key into an Identity.
func FromPublicKey(pk ed25519.PublicKey) (Identity, error) {
    var id Identity
    if len(pk) != ed25519.PublicKeySize {
        return id, fmt.Errorf("identity: invalid public key length %d", len(pk))
    }
    copy(id[:], pk)
    return id, nil
}

// Parse decodes a hex-encoded identity as produced by String.
func Parse(s string) (Identity, error) {
    var id Identity
    b, err := hex.DecodeString(s)
    if err != nil {
        return id, fmt.Errorf("identity: invalid hex: %w", err)
    }
    if len(b) != len(id) {
        return id, fmt.Errorf("identity: invalid length %d", len(b))
    }
    copy(id[:], b)
    return id, nil
}

// String returns the lowercase hex encoding of the identity.
func (id Identity) String() string { return hex.EncodeToString(id[:]) }

// Short returns a truncated hex form suitable for log lines.
func (id Identity) Short() string { return hex.EncodeToString(id[:4]) }

// Compare orders identities by raw public key bytes.
func (id Identity) Compare(other Identity) int { return bytes.Compare(id[:], other[:]) }

// Less reports whether id sorts before other in the tie-break order.
func (id Identity) Less(other Identity) bool { return id.Compare(other) < 0 }

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool { return id == Identity{} }

// Signer wraps an ed25519 keypair. It signs payload digests so validators can
// authenticate the proposing node, and verifies acknowledgment signatures from
// peers. Keys are derived deterministically from a numeric seed so a small
// cluster can be configured with nothing but integers.
type Signer struct {
    priv ed25519.PrivateKey
    id   Identity
}

// NewSigner derives a keypair from the given seed. The same seed always yields
// the same keypair.
func NewSigner(seed uint64) *Signer {
    var material [ed25519.SeedSize]byte
    binary.BigEndian.PutUint64(material[ed25519.SeedSize-8:], seed)
    priv := ed25519.NewKeyFromSeed(material[:])
    id, _ := FromPublicKey(priv.Public().(ed25519.PublicKey))
    return &Signer{priv: priv, id: id}
}

// Identity returns the public identity of this signer.
func (s *Signer) Identity() Identity { return s.id }

// Sign produces a signature over the given digest bytes.
func (s *Signer) Sign(digest []byte) []byte {
    return ed25519.Sign(s.priv, digest)
}

// Verify checks a signature over digest against the claimed identity.
func Verify(id Identity, digest, sig []byte) bool {
    return ed25519.Verify(ed25519.PublicKey(id[:]), digest, sig)
}

// DerivePeer returns the identity that a peer configured with the given seed
// will present. Used when peer public keys are not listed explicitly.
func DerivePeer(seed uint64) Identity {
    return NewSigner(seed).Identity()
}
