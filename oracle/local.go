package oracle

import (
	"crypto/ecdsa"
	"errors"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
	"github.com/veilswap/veilswap/fhe"
)

var ErrNilRequest = errors.New("oracle: nil request")

// LocalOracle is an in-process oracle service: it holds the capability's
// Revealer and a signing key, and answers decryption requests synchronously.
// It stands in for the external threshold committee in tests and in the
// daemon's self-contained mode; the engine still only sees authenticated
// callbacks arriving through the same entry point an external oracle would
// use.
type LocalOracle struct {
	revealer fhe.Revealer
	key      *ecdsa.PrivateKey
	addr     types.Address
}

// NewLocalOracle creates an oracle service over the given revealer, signing
// callbacks with key.
func NewLocalOracle(revealer fhe.Revealer, key *ecdsa.PrivateKey) *LocalOracle {
	return &LocalOracle{
		revealer: revealer,
		key:      key,
		addr:     crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the oracle's callback-signing address, to be registered
// with the Client.
func (o *LocalOracle) Address() types.Address {
	return o.addr
}

// Answer decrypts every handle in the request and returns a signed callback.
func (o *LocalOracle) Answer(req *Request) (*Callback, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	values := make([]*uint256.Int, len(req.Handles))
	for i, h := range req.Handles {
		v, err := o.revealer.Reveal(h)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	digest := CallbackDigest(req.ID, values)
	proof, err := crypto.Sign(digest.Bytes(), o.key)
	if err != nil {
		return nil, err
	}
	return &Callback{RequestID: req.ID, Values: values, Proof: proof}, nil
}
