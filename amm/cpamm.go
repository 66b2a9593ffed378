package amm

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
)

var (
	ErrPoolUnknown     = errors.New("amm: pool has no liquidity")
	ErrPriceLimit      = errors.New("amm: output below price limit")
	ErrLiquidityExists = errors.New("amm: liquidity already seeded")
	ErrZeroLiquidity   = errors.New("amm: liquidity amounts must be non-zero")
)

// ConstantProductPool is a reference x*y=k market maker with a basis-point
// fee taken on input, used by tests and the daemon's self-contained mode.
type ConstantProductPool struct {
	mu       sync.Mutex
	reserves map[types.PoolID]*cpReserves
}

type cpReserves struct {
	r0, r1 *uint256.Int
}

// NewConstantProductPool creates an empty reference pool.
func NewConstantProductPool() *ConstantProductPool {
	return &ConstantProductPool{reserves: make(map[types.PoolID]*cpReserves)}
}

// Seed installs the initial reserves for a pool key.
func (p *ConstantProductPool) Seed(key types.PoolKey, amount0, amount1 *uint256.Int) error {
	if amount0 == nil || amount1 == nil || amount0.IsZero() || amount1.IsZero() {
		return ErrZeroLiquidity
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := poolIDOf(key)
	if _, ok := p.reserves[id]; ok {
		return ErrLiquidityExists
	}
	p.reserves[id] = &cpReserves{
		r0: new(uint256.Int).Set(amount0),
		r1: new(uint256.Int).Set(amount1),
	}
	return nil
}

// Reserves returns copies of the pool's current reserves.
func (p *ConstantProductPool) Reserves(key types.PoolKey) (*uint256.Int, *uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.reserves[poolIDOf(key)]
	if !ok {
		return nil, nil, ErrPoolUnknown
	}
	return new(uint256.Int).Set(res.r0), new(uint256.Int).Set(res.r1), nil
}

// Quote prices a trade without executing it.
func (p *ConstantProductPool) Quote(key types.PoolKey, zeroForOne bool, amountIn *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.reserves[poolIDOf(key)]
	if !ok {
		return nil, ErrPoolUnknown
	}
	return cpOut(res, key.FeeBps, zeroForOne, amountIn), nil
}

// Trade executes against the constant-product curve, failing ErrPriceLimit
// when the realized output falls below minAmountOut.
func (p *ConstantProductPool) Trade(key types.PoolKey, zeroForOne bool, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.reserves[poolIDOf(key)]
	if !ok {
		return nil, ErrPoolUnknown
	}
	out := cpOut(res, key.FeeBps, zeroForOne, amountIn)
	if minAmountOut != nil && out.Lt(minAmountOut) {
		return nil, ErrPriceLimit
	}
	if zeroForOne {
		res.r0.Add(res.r0, amountIn)
		res.r1.Sub(res.r1, out)
	} else {
		res.r1.Add(res.r1, amountIn)
		res.r0.Sub(res.r0, out)
	}
	return out, nil
}

// cpOut computes the constant-product output for amountIn after the input
// fee: out = rOut * inAfterFee / (rIn + inAfterFee).
func cpOut(res *cpReserves, feeBps uint32, zeroForOne bool, amountIn *uint256.Int) *uint256.Int {
	rIn, rOut := res.r0, res.r1
	if !zeroForOne {
		rIn, rOut = res.r1, res.r0
	}
	inAfterFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(uint64(bpsDenominator-feeBps)))
	inAfterFee.Div(inAfterFee, uint256.NewInt(bpsDenominator))

	denom := new(uint256.Int).Add(rIn, inAfterFee)
	if denom.IsZero() {
		return uint256.NewInt(0)
	}
	out := new(uint256.Int).Mul(rOut, inAfterFee)
	return out.Div(out, denom)
}

// poolIDOf mirrors the ledger's pool id derivation.
func poolIDOf(key types.PoolKey) types.PoolID {
	return crypto.Keccak256Hash(key.Encode())
}
