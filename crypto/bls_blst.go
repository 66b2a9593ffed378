//go:build blst

// BLS12-381 backend using the supranational/blst library via CGO, with the
// MinPk scheme: public keys in G1 (48-byte compressed), signatures in G2
// (96-byte compressed).
//
// Build with: go build -tags blst
package crypto

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

const blstSecretSize = 32

var (
	ErrBlstInvalidIKM       = errors.New("blst: IKM must be at least 32 bytes")
	ErrBlstKeyGenFailed     = errors.New("blst: key generation failed")
	ErrBlstInvalidSecretKey = errors.New("blst: invalid secret key bytes")
	ErrBlstSignFailed       = errors.New("blst: signing failed")
	ErrBlstNoSignatures     = errors.New("blst: no signatures to aggregate")
	ErrBlstAggregateFailed  = errors.New("blst: signature aggregation failed")
)

func init() {
	SetBLSBackend(&BlstBackend{})
}

// BlstBackend implements BLSBackend on top of supranational/blst.
type BlstBackend struct{}

// Name returns the backend identifier.
func (b *BlstBackend) Name() string {
	return "blst"
}

// Verify checks a single BLS signature.
func (b *BlstBackend) Verify(pubkey, msg, sig []byte) bool {
	pk := new(blst.P1Affine).Uncompress(pubkey)
	if pk == nil {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	return s.Verify(true, pk, true, msg, BLSOperatorDST)
}

// FastAggregateVerify checks an aggregate signature where all signers signed
// the same message.
func (b *BlstBackend) FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool {
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	pks := make([]*blst.P1Affine, len(pubkeys))
	for i, pkBytes := range pubkeys {
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return false
		}
	}
	return s.FastAggregateVerify(true, pks, msg, BLSOperatorDST)
}

// BlstKeyGen generates a BLS key pair from input key material (at least 32
// bytes). Returns the compressed public key and serialized secret key.
func BlstKeyGen(ikm []byte) (pubkey, secretKey []byte, err error) {
	if len(ikm) < 32 {
		return nil, nil, ErrBlstInvalidIKM
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, nil, ErrBlstKeyGenFailed
	}
	pk := new(blst.P1Affine).From(sk)
	return pk.Compress(), sk.Serialize(), nil
}

// BlstSign signs a message with a 32-byte serialized secret key and returns
// the compressed signature.
func BlstSign(secretKey, msg []byte) ([]byte, error) {
	if len(secretKey) != blstSecretSize {
		return nil, ErrBlstInvalidSecretKey
	}
	sk := new(blst.SecretKey).Deserialize(secretKey)
	if sk == nil {
		return nil, ErrBlstInvalidSecretKey
	}
	sig := new(blst.P2Affine).Sign(sk, msg, BLSOperatorDST)
	if sig == nil {
		return nil, ErrBlstSignFailed
	}
	return sig.Compress(), nil
}

// BlstAggregateSigs aggregates compressed signatures into one compressed
// aggregate signature.
func BlstAggregateSigs(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, ErrBlstNoSignatures
	}
	agg := new(blst.P2Aggregate)
	if !agg.AggregateCompressed(sigs, true) {
		return nil, ErrBlstAggregateFailed
	}
	return agg.ToAffine().Compress(), nil
}
