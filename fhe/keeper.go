package fhe

import (
	"encoding/binary"
	"sync"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/crypto"
)

// handleDomain separates ciphertext handles from every other keccak use in
// the engine.
var handleDomain = []byte("veilswap/fhe/handle/v1")

// Keeper is the reference implementation of the encrypted value capability.
// It seals plaintexts behind handles derived from a monotonic counter, so a
// handle carries no information about the value it hides. The Keeper is both
// the Scheme handed to the engine and the Revealer handed to the oracle
// service; the engine side only ever receives the Scheme interface.
type Keeper struct {
	mu    sync.RWMutex
	vals  map[Handle]*uint256.Int
	nonce uint64
}

// NewKeeper creates an empty keeper.
func NewKeeper() *Keeper {
	return &Keeper{vals: make(map[Handle]*uint256.Int)}
}

var _ Scheme = (*Keeper)(nil)
var _ Revealer = (*Keeper)(nil)

// TrivialEncrypt wraps a plaintext into a fresh handle.
func (k *Keeper) TrivialEncrypt(v *uint256.Int) (Handle, error) {
	if v == nil {
		return Handle{}, ErrNilValue
	}
	if v.Gt(maxWord) {
		return Handle{}, ErrValueTooWide
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.seal(new(uint256.Int).Set(v)), nil
}

// Add returns a handle to a + b (mod 2^128).
func (k *Keeper) Add(a, b Handle) (Handle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	va, vb, err := k.pair(a, b)
	if err != nil {
		return Handle{}, err
	}
	sum := new(uint256.Int).Add(va, vb)
	sum.And(sum, maxWord) // wrap to 128 bits
	return k.seal(sum), nil
}

// Sub returns a handle to a - b (mod 2^128).
func (k *Keeper) Sub(a, b Handle) (Handle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	va, vb, err := k.pair(a, b)
	if err != nil {
		return Handle{}, err
	}
	diff := new(uint256.Int).Sub(va, vb)
	diff.And(diff, maxWord)
	return k.seal(diff), nil
}

// Le returns a handle to 1 when a <= b, else 0.
func (k *Keeper) Le(a, b Handle) (Handle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	va, vb, err := k.pair(a, b)
	if err != nil {
		return Handle{}, err
	}
	out := uint256.NewInt(0)
	if !va.Gt(vb) {
		out.SetUint64(1)
	}
	return k.seal(out), nil
}

// Reveal decrypts the value behind a handle. Oracle-side only.
func (k *Keeper) Reveal(h Handle) (*uint256.Int, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.vals[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return new(uint256.Int).Set(v), nil
}

// Len returns the number of sealed ciphertexts.
func (k *Keeper) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.vals)
}

// seal stores v under a fresh counter-derived handle. Caller holds the lock.
func (k *Keeper) seal(v *uint256.Int) Handle {
	k.nonce++
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], k.nonce)
	h := crypto.Keccak256Hash(handleDomain, nb[:])
	k.vals[h] = v
	return h
}

// pair looks up both operands. Caller holds the lock.
func (k *Keeper) pair(a, b Handle) (*uint256.Int, *uint256.Int, error) {
	va, ok := k.vals[a]
	if !ok {
		return nil, nil, ErrUnknownHandle
	}
	vb, ok := k.vals[b]
	if !ok {
		return nil, nil, ErrUnknownHandle
	}
	return va, vb, nil
}

// maxWord is 2^128 - 1, the ciphertext word width.
var maxWord = &uint256.Int{^uint64(0), ^uint64(0), 0, 0}
