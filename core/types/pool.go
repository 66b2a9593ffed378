package types

import (
	"encoding/binary"
	"errors"
)

var (
	ErrIdenticalAssets = errors.New("types: pool assets are identical")
	ErrUnorderedAssets = errors.New("types: pool assets are not in canonical order")
)

// PoolID uniquely identifies a registered pool. It is the Keccak256 hash of
// the pool key's canonical encoding.
type PoolID = Hash

// PoolKey identifies an external AMM pool: two canonically ordered assets
// plus the pool's fee and tick-spacing parameters.
type PoolKey struct {
	Token0  Address
	Token1  Address
	FeeBps  uint32 // fee in basis points
	Spacing uint32 // tick spacing of the underlying pool
}

// NewPoolKey builds a canonical pool key from two assets in either order.
func NewPoolKey(a, b Address, feeBps, spacing uint32) (PoolKey, error) {
	if a == b {
		return PoolKey{}, ErrIdenticalAssets
	}
	if b.Less(a) {
		a, b = b, a
	}
	return PoolKey{Token0: a, Token1: b, FeeBps: feeBps, Spacing: spacing}, nil
}

// Validate checks the canonical ordering invariant.
func (k PoolKey) Validate() error {
	if k.Token0 == k.Token1 {
		return ErrIdenticalAssets
	}
	if k.Token1.Less(k.Token0) {
		return ErrUnorderedAssets
	}
	return nil
}

// HasAsset reports whether asset is one of the pool's two assets.
func (k PoolKey) HasAsset(asset Address) bool {
	return asset == k.Token0 || asset == k.Token1
}

// Other returns the counter asset of the given pool asset. The caller must
// have checked HasAsset first; Other returns the zero address otherwise.
func (k PoolKey) Other(asset Address) Address {
	switch asset {
	case k.Token0:
		return k.Token1
	case k.Token1:
		return k.Token0
	}
	return Address{}
}

// Encode returns the canonical byte encoding of the pool key, used to derive
// the pool id.
func (k PoolKey) Encode() []byte {
	buf := make([]byte, 0, 2*AddressLength+8)
	buf = append(buf, k.Token0.Bytes()...)
	buf = append(buf, k.Token1.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, k.FeeBps)
	buf = binary.BigEndian.AppendUint32(buf, k.Spacing)
	return buf
}
