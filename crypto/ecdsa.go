package crypto

import (
	"crypto/ecdsa"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/veilswap/veilswap/core/types"
)

var (
	ErrInvalidSigLen = errors.New("crypto: signature must be 65 bytes [R || S || V]")
	ErrInvalidDigest = errors.New("crypto: digest must be 32 bytes")
	ErrRecoverFailed = errors.New("crypto: public key recovery failed")
	ErrSignFailed    = errors.New("crypto: signing failed")
	ErrNilPrivateKey = errors.New("crypto: nil private key")
)

const signatureLength = 65

// Sign produces a 65-byte [R || S || V] secp256k1 signature over a 32-byte
// digest.
func Sign(digest []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if prv == nil {
		return nil, ErrNilPrivateKey
	}
	if len(digest) != types.HashLength {
		return nil, ErrInvalidDigest
	}
	sig, err := ethcrypto.Sign(digest, prv)
	if err != nil {
		return nil, ErrSignFailed
	}
	return sig, nil
}

// RecoverSigner recovers the signer address of a 65-byte signature over a
// 32-byte digest.
func RecoverSigner(digest, sig []byte) (types.Address, error) {
	if len(sig) != signatureLength {
		return types.Address{}, ErrInvalidSigLen
	}
	if len(digest) != types.HashLength {
		return types.Address{}, ErrInvalidDigest
	}
	pubkey, err := ethcrypto.Ecrecover(digest, sig)
	if err != nil {
		return types.Address{}, ErrRecoverFailed
	}
	return PubkeyBytesToAddress(pubkey), nil
}

// GenerateKey creates a fresh secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

// PubkeyToAddress derives the 20-byte address of an ECDSA public key.
func PubkeyToAddress(pub ecdsa.PublicKey) types.Address {
	return PubkeyBytesToAddress(ethcrypto.FromECDSAPub(&pub))
}

// PubkeyBytesToAddress derives the address from an uncompressed 65-byte
// public key: the last 20 bytes of keccak256(pubkey[1:]).
func PubkeyBytesToAddress(pubkey []byte) types.Address {
	if len(pubkey) == 0 {
		return types.Address{}
	}
	return types.BytesToAddress(Keccak256(pubkey[1:])[12:])
}
