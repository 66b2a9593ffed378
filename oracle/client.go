// Package oracle implements the client side of the threshold decryption
// protocol: outbound decryption requests over ciphertext handles and
// authenticated, single-use inbound callbacks carrying the plaintexts.
//
// The engine never blocks on a decryption. A request is stored until a
// matching callback arrives as an independent call; the callback's proof is
// verified before any plaintext is trusted.
package oracle

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
	"github.com/veilswap/veilswap/fhe"
)

var (
	ErrNoHandles      = errors.New("oracle: request has no handles")
	ErrUnknownRequest = errors.New("oracle: unknown or already consumed request")
	ErrInvalidProof   = errors.New("oracle: callback proof verification failed")
	ErrValueCount     = errors.New("oracle: callback value count does not match request")
	ErrNilValue       = errors.New("oracle: callback carries a nil value")
)

// requestDomain separates request ids from every other keccak use.
var requestDomain = []byte("veilswap/oracle/request/v1")

// callbackDomain separates callback digests from request ids.
var callbackDomain = []byte("veilswap/oracle/callback/v1")

// RequestID identifies an outstanding decryption request.
type RequestID = types.Hash

// Request is a pending decryption of one or more ciphertext handles.
type Request struct {
	ID      RequestID
	Handles []fhe.Handle
}

// Callback is the oracle's asynchronous answer: the plaintext value of each
// requested handle, in request order, plus an authentication proof (a
// secp256k1 signature by the oracle over the callback digest).
type Callback struct {
	RequestID RequestID
	Values    []*uint256.Int
	Proof     []byte
}

// Client tracks outstanding decryption requests and authenticates callbacks
// against a known oracle address. Requests are strictly single-use: Consume
// removes them, and a replayed callback fails ErrUnknownRequest.
type Client struct {
	mu      sync.Mutex
	oracle  types.Address
	pending map[RequestID]*Request
	nonce   uint64
}

// NewClient creates a client that accepts callbacks signed by oracleAddr.
func NewClient(oracleAddr types.Address) *Client {
	return &Client{
		oracle:  oracleAddr,
		pending: make(map[RequestID]*Request),
	}
}

// Request registers a decryption request for the given handles and returns
// its id. The id commits to the handles and a per-client nonce, so two
// requests over the same handles stay distinguishable.
func (c *Client) Request(handles []fhe.Handle) (RequestID, error) {
	if len(handles) == 0 {
		return RequestID{}, ErrNoHandles
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nonce++
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], c.nonce)
	parts := make([][]byte, 0, len(handles)+2)
	parts = append(parts, requestDomain, nb[:])
	for _, h := range handles {
		parts = append(parts, h.Bytes())
	}
	id := crypto.Keccak256Hash(parts...)

	hs := make([]fhe.Handle, len(handles))
	copy(hs, handles)
	c.pending[id] = &Request{ID: id, Handles: hs}
	return id, nil
}

// Verify authenticates a callback without consuming the request. It checks
// that the request is still pending, the value count matches, and the proof
// recovers to the configured oracle address.
func (c *Client) Verify(cb *Callback) error {
	if cb == nil {
		return ErrInvalidProof
	}
	c.mu.Lock()
	req, ok := c.pending[cb.RequestID]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}
	if len(cb.Values) != len(req.Handles) {
		return ErrValueCount
	}
	for _, v := range cb.Values {
		if v == nil {
			return ErrNilValue
		}
	}
	digest := CallbackDigest(cb.RequestID, cb.Values)
	signer, err := crypto.RecoverSigner(digest.Bytes(), cb.Proof)
	if err != nil || signer != c.oracle {
		return ErrInvalidProof
	}
	return nil
}

// Consume removes a pending request, enforcing single use. It returns
// ErrUnknownRequest when the request was never issued or already consumed.
func (c *Client) Consume(id RequestID) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[id]
	if !ok {
		return nil, ErrUnknownRequest
	}
	delete(c.pending, id)
	return req, nil
}

// Pending returns a snapshot of the outstanding requests, in id order. The
// oracle service polls this to pick up work.
func (c *Client) Pending() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, 0, len(c.pending))
	for _, req := range c.pending {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// PendingCount returns the number of outstanding requests.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// CallbackDigest is the digest the oracle signs: the request id followed by
// each plaintext as a 32-byte big-endian word, under a fixed domain tag.
func CallbackDigest(id RequestID, values []*uint256.Int) types.Hash {
	parts := make([][]byte, 0, len(values)+2)
	parts = append(parts, callbackDomain, id.Bytes())
	for _, v := range values {
		var word [32]byte
		if v != nil {
			word = v.Bytes32()
		}
		parts = append(parts, word[:])
	}
	return crypto.Keccak256Hash(parts...)
}
