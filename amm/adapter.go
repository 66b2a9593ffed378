// Package amm is the execution adapter between the confidential engine and
// the external market maker: it performs the single net trade of a
// settlement step and couples it atomically to the reserve ledger.
package amm

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/ledger"
)

var (
	ErrZeroTrade       = errors.New("amm: trade amount is zero")
	ErrSlippageTooWide = errors.New("amm: slippage tolerance must be below 10000 bps")
	ErrTradeFailed     = errors.New("amm: external trade failed")
)

const bpsDenominator = 10_000

// TradePool is the external constant-function market maker. Quote prices a
// trade without executing it; Trade executes and fails outright, rather than
// truncating, when the realized output would fall below minAmountOut.
type TradePool interface {
	Quote(key types.PoolKey, zeroForOne bool, amountIn *uint256.Int) (*uint256.Int, error)
	Trade(key types.PoolKey, zeroForOne bool, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error)
}

// Adapter drives the external pool with a conservative price limit derived
// from a configured maximal slippage tolerance.
type Adapter struct {
	pool        TradePool
	slippageBps uint64
}

// NewAdapter creates an adapter over the external pool. slippageBps is the
// maximal tolerated shortfall of the realized output against the quote.
func NewAdapter(pool TradePool, slippageBps uint64) (*Adapter, error) {
	if slippageBps >= bpsDenominator {
		return nil, ErrSlippageTooWide
	}
	return &Adapter{pool: pool, slippageBps: slippageBps}, nil
}

// Settle trades amountIn of tokenIn against the external pool and applies
// the paired reserve mutations in the same journaled step: tokenIn reserve
// down by amountIn, tokenOut reserve up by the realized output. The caller
// completes the step with the matching encrypted burn/mint; a failed trade
// surfaces as an error with no reserve change committed.
func (a *Adapter) Settle(l *ledger.Ledger, poolID types.PoolID, key types.PoolKey, tokenIn types.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrZeroTrade
	}
	zeroForOne := tokenIn == key.Token0
	tokenOut := key.Other(tokenIn)

	quote, err := a.pool.Quote(key, zeroForOne, amountIn)
	if err != nil {
		return nil, err
	}
	// Conservative lower bound: quote less the tolerated slippage.
	minOut := new(uint256.Int).Mul(quote, uint256.NewInt(bpsDenominator-a.slippageBps))
	minOut.Div(minOut, uint256.NewInt(bpsDenominator))

	out, err := a.pool.Trade(key, zeroForOne, amountIn, minOut)
	if err != nil {
		return nil, err
	}
	if err := l.SubReserve(poolID, tokenIn, amountIn); err != nil {
		return nil, err
	}
	if err := l.AddReserve(poolID, tokenOut, out); err != nil {
		return nil, err
	}
	return out, nil
}
