// Package dht implements a Kademlia distributed hash table node: identifier
// and distance arithmetic, the wire codec, the routing table, the event bus
// and handler, the echo-keyed call layer, and the iterative lookup engine.
package dht

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// IDLen is the width of an Identifier in bytes (160 bits).
const IDLen = 20

// Identifier is a 160-bit opaque node or key identifier. Equality is bitwise.
type Identifier [IDLen]byte

// ZeroID is the all-zero identifier used as the commit log's head pointer key.
var ZeroID Identifier

// String returns the hex encoding of the identifier.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero identifier.
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

// MarshalText encodes the identifier as hex, so Identifier round-trips
// through encoding/json and BurntSushi/toml without a wrapper type.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a hex-encoded identifier.
func (id *Identifier) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentifier(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentifier parses a hex-encoded 160-bit identifier. The "0x" prefix is
// optional.
func ParseIdentifier(s string) (Identifier, error) {
	var id Identifier
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("dht: invalid identifier hex: %w", err)
	}
	if len(b) != IDLen {
		return id, fmt.Errorf("dht: identifier must be %d bytes, got %d", IDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// asUint256 zero-extends id into a uint256.Int for distance arithmetic.
func (id Identifier) asUint256() *uint256.Int {
	var z uint256.Int
	z.SetBytes20(id[:])
	return &z
}

// Distance computes the XOR distance d(a, b) between two identifiers,
// interpreted as an unsigned 160-bit integer zero-extended into a uint256.
func Distance(a, b Identifier) *uint256.Int {
	var z uint256.Int
	z.Xor(a.asUint256(), b.asUint256())
	return &z
}

// Less reports whether a is strictly closer to nothing in particular — it
// compares two raw distances. Kept as a small helper so callers never need to
// reach into uint256 directly just to order two distances.
func Less(a, b *uint256.Int) bool {
	return a.Lt(b)
}

// CommonPrefixLen returns the length, in bits, of the common prefix shared by
// a and b — equivalently, 160 minus the bit-length of their XOR distance.
// This is the bucket index used by the routing table (§4.4): a distance of
// zero (identity) has no defined bucket and must be handled by the caller.
func CommonPrefixLen(a, b Identifier) int {
	d := Distance(a, b)
	if d.IsZero() {
		return IDLen * 8
	}
	return IDLen*8 - d.BitLen()
}
