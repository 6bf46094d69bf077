package payload

import (
    "crypto/sha256"
    "encoding/binary"
    "encoding/hex"
    "encoding/json"
    "fmt"
)

// Digest is a content address over a payload. sha256-sized, opaque to
// everything except the producer.
type Digest [sha256.Size]byte

// ParseDigest decodes a hex-encoded digest as produced by String.
func ParseDigest(s string) (Digest, error) {
    var d Digest
    b, err := hex.DecodeString(s)
    if err != nil {
        return d, fmt.Errorf("payload: invalid digest hex: %w", err)
    }
    if len(b) != len(d) {
        return d, fmt.Errorf("payload: invalid digest length %d", len(b))
    }
    copy(d[:], b)
    return d, nil
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool { return d == Digest{} }

// Payload is the unit of ordering. The conductor only ever looks at the
// content digest and the height; everything else is application data.
type Payload interface {
    // Digest returns the content address of the payload. Must be
    // deterministic for a given payload.
    Digest() Digest
    // Height returns the position of the payload in the ordered chain.
    Height() uint64
    // Parent returns the digest of the preceding payload, or false when the
    // payload does not track its parent (genesis, or parent checking unused).
    Parent() (Digest, bool)
}

// Basic is a self-contained payload carrying opaque bytes. It is the concrete
// type used by the HTTP/gRPC surface; library consumers can substitute their
// own Payload implementations.
type Basic struct {
    Seq        uint64 `json:"height"`
    Data       []byte `json:"data"`
    ParentHex  string `json:"parent,omitempty"`
}

// NewBasic builds a payload at the given height over opaque data.
func NewBasic(height uint64, data []byte) Basic {
    return Basic{Seq: height, Data: data}
}

// NewBasicChild builds a payload linked to the parent digest.
func NewBasicChild(height uint64, data []byte, parent Digest) Basic {
    return Basic{Seq: height, Data: data, ParentHex: parent.String()}
}

// Digest hashes height and data. The parent link is deliberately excluded so
// that re-linking a payload after an epoch change does not change its address.
func (b Basic) Digest() Digest {
    h := sha256.New()
    var hb [8]byte
    binary.BigEndian.PutUint64(hb[:], b.Seq)
    h.Write(hb[:])
    h.Write(b.Data)
    var d Digest
    copy(d[:], h.Sum(nil))
    return d
}

func (b Basic) Height() uint64 { return b.Seq }

func (b Basic) Parent() (Digest, bool) {
    if b.ParentHex == "" {
        return Digest{}, false
    }
    d, err := ParseDigest(b.ParentHex)
    if err != nil {
        return Digest{}, false
    }
    return d, true
}

// Encode serializes the payload for transmission.
func (b Basic) Encode() ([]byte, error) { return json.Marshal(b) }

// Decode parses a payload produced by Encode.
func Decode(data []byte) (Basic, error) {
    var b Basic
    if err := json.Unmarshal(data, &b); err != nil {
        return Basic{}, fmt.Errorf("payload: decode: %w", err)
    }
    return b, nil
}
