package amm

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/fhe"
	"github.com/veilswap/veilswap/ledger"
)

func addr(b byte) types.Address {
	var a types.Address
	a[types.AddressLength-1] = b
	return a
}

func feelessKey(t *testing.T) types.PoolKey {
	t.Helper()
	key, err := types.NewPoolKey(addr(1), addr(2), 0, 60)
	if err != nil {
		t.Fatalf("NewPoolKey: %v", err)
	}
	return key
}

func TestConstantProductQuote(t *testing.T) {
	pool := NewConstantProductPool()
	key := feelessKey(t)
	if err := pool.Seed(key, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	// out = 1000000 * 1000 / (1000000 + 1000) = 999 with no fee.
	out, err := pool.Quote(key, true, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !out.Eq(uint256.NewInt(999)) {
		t.Fatalf("quote = %v, want 999", out)
	}

	// Quoting must not move the reserves.
	r0, r1, err := pool.Reserves(key)
	if err != nil {
		t.Fatalf("Reserves: %v", err)
	}
	if !r0.Eq(uint256.NewInt(1_000_000)) || !r1.Eq(uint256.NewInt(1_000_000)) {
		t.Fatalf("reserves moved on quote: %v %v", r0, r1)
	}
}

func TestConstantProductTrade(t *testing.T) {
	pool := NewConstantProductPool()
	key := feelessKey(t)
	if err := pool.Seed(key, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	out, err := pool.Trade(key, true, uint256.NewInt(1000), uint256.NewInt(999))
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if !out.Eq(uint256.NewInt(999)) {
		t.Fatalf("out = %v, want 999", out)
	}
	r0, r1, err := pool.Reserves(key)
	if err != nil {
		t.Fatalf("Reserves: %v", err)
	}
	if !r0.Eq(uint256.NewInt(1_001_000)) || !r1.Eq(uint256.NewInt(999_001)) {
		t.Fatalf("reserves after trade: %v %v", r0, r1)
	}
}

func TestConstantProductPriceLimit(t *testing.T) {
	pool := NewConstantProductPool()
	key := feelessKey(t)
	if err := pool.Seed(key, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := pool.Trade(key, true, uint256.NewInt(1000), uint256.NewInt(1000)); err != ErrPriceLimit {
		t.Fatalf("want ErrPriceLimit, got %v", err)
	}
}

func TestConstantProductFee(t *testing.T) {
	pool := NewConstantProductPool()
	key, err := types.NewPoolKey(addr(1), addr(2), 30, 60) // 0.3%
	if err != nil {
		t.Fatalf("NewPoolKey: %v", err)
	}
	if err := pool.Seed(key, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	out, err := pool.Quote(key, true, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	// Input after fee is 997: out = 1000000*997/(1000000+997) = 996.
	if !out.Eq(uint256.NewInt(996)) {
		t.Fatalf("quote with fee = %v, want 996", out)
	}
}

func TestSeedValidation(t *testing.T) {
	pool := NewConstantProductPool()
	key := feelessKey(t)
	if err := pool.Seed(key, uint256.NewInt(0), uint256.NewInt(1)); err != ErrZeroLiquidity {
		t.Fatalf("zero: want ErrZeroLiquidity, got %v", err)
	}
	if err := pool.Seed(key, uint256.NewInt(1), uint256.NewInt(1)); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := pool.Seed(key, uint256.NewInt(1), uint256.NewInt(1)); err != ErrLiquidityExists {
		t.Fatalf("re-seed: want ErrLiquidityExists, got %v", err)
	}
	if _, err := pool.Quote(types.PoolKey{Token0: addr(3), Token1: addr(4)}, true, uint256.NewInt(1)); err != ErrPoolUnknown {
		t.Fatalf("unknown pool: want ErrPoolUnknown, got %v", err)
	}
}

func TestNewAdapterRejectsWideSlippage(t *testing.T) {
	if _, err := NewAdapter(NewConstantProductPool(), 10_000); err != ErrSlippageTooWide {
		t.Fatalf("want ErrSlippageTooWide, got %v", err)
	}
}

func TestAdapterSettle(t *testing.T) {
	keeper := fhe.NewKeeper()
	l := ledger.New(keeper)
	key := feelessKey(t)
	poolID, err := l.RegisterPool(key)
	if err != nil {
		t.Fatalf("RegisterPool: %v", err)
	}
	if err := l.Deposit(poolID, key.Token0, addr(10), uint256.NewInt(10_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	ext := NewConstantProductPool()
	if err := ext.Seed(key, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	adapter, err := NewAdapter(ext, 50)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	out, err := adapter.Settle(l, poolID, key, key.Token0, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !out.Eq(uint256.NewInt(999)) {
		t.Fatalf("out = %v, want 999", out)
	}
	if got := l.Reserve(poolID, key.Token0); !got.Eq(uint256.NewInt(9000)) {
		t.Fatalf("token0 reserve = %v, want 9000", got)
	}
	if got := l.Reserve(poolID, key.Token1); !got.Eq(uint256.NewInt(999)) {
		t.Fatalf("token1 reserve = %v, want 999", got)
	}
}

func TestAdapterSettleZeroAmount(t *testing.T) {
	adapter, err := NewAdapter(NewConstantProductPool(), 0)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	keeper := fhe.NewKeeper()
	l := ledger.New(keeper)
	key := feelessKey(t)
	if _, err := adapter.Settle(l, types.PoolID{}, key, key.Token0, uint256.NewInt(0)); err != ErrZeroTrade {
		t.Fatalf("want ErrZeroTrade, got %v", err)
	}
}

// failingPool quotes fine but fails every trade, exercising the adapter's
// error path where no reserve mutation may survive.
type failingPool struct{}

func (failingPool) Quote(key types.PoolKey, zeroForOne bool, amountIn *uint256.Int) (*uint256.Int, error) {
	return new(uint256.Int).Set(amountIn), nil
}

func (failingPool) Trade(key types.PoolKey, zeroForOne bool, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error) {
	return nil, errors.New("venue offline")
}

func TestAdapterSettleTradeFailure(t *testing.T) {
	keeper := fhe.NewKeeper()
	l := ledger.New(keeper)
	key := feelessKey(t)
	poolID, err := l.RegisterPool(key)
	if err != nil {
		t.Fatalf("RegisterPool: %v", err)
	}
	if err := l.Deposit(poolID, key.Token0, addr(10), uint256.NewInt(5000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	adapter, err := NewAdapter(failingPool{}, 0)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if _, err := adapter.Settle(l, poolID, key, key.Token0, uint256.NewInt(100)); err == nil {
		t.Fatal("failed trade reported success")
	}
	if got := l.Reserve(poolID, key.Token0); !got.Eq(uint256.NewInt(5000)) {
		t.Fatalf("reserve mutated on failed trade: %v", got)
	}
}
