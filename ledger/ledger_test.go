package ledger

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/fhe"
)

func addr(b byte) types.Address {
	var a types.Address
	a[types.AddressLength-1] = b
	return a
}

func newTestLedger(t *testing.T) (*fhe.Keeper, *Ledger, types.PoolID, types.PoolKey) {
	t.Helper()
	keeper := fhe.NewKeeper()
	l := New(keeper)
	key, err := types.NewPoolKey(addr(1), addr(2), 30, 60)
	if err != nil {
		t.Fatalf("NewPoolKey: %v", err)
	}
	id, err := l.RegisterPool(key)
	if err != nil {
		t.Fatalf("RegisterPool: %v", err)
	}
	return keeper, l, id, key
}

// sumBalances reveals and sums every holder balance of the pool/asset token.
func sumBalances(t *testing.T, keeper *fhe.Keeper, l *Ledger, pool types.PoolID, asset types.Address) *uint256.Int {
	t.Helper()
	token, err := l.Token(pool, asset)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	sum := uint256.NewInt(0)
	for _, holder := range token.Holders() {
		h, err := token.BalanceHandle(holder)
		if err != nil {
			t.Fatalf("BalanceHandle: %v", err)
		}
		v, err := keeper.Reveal(h)
		if err != nil {
			t.Fatalf("Reveal: %v", err)
		}
		sum.Add(sum, v)
	}
	return sum
}

// checkBacking asserts the conservation law for one pool/asset: the revealed
// sum of encrypted balances equals the plaintext reserve.
func checkBacking(t *testing.T, keeper *fhe.Keeper, l *Ledger, pool types.PoolID, asset types.Address) {
	t.Helper()
	reserve := l.Reserve(pool, asset)
	sum := sumBalances(t, keeper, l, pool, asset)
	if !sum.Eq(reserve) {
		t.Fatalf("backing broken for asset %v: balances sum %v, reserve %v", asset, sum, reserve)
	}
}

func TestRegisterPool(t *testing.T) {
	_, l, id, key := newTestLedger(t)
	if got := PoolIDOf(key); got != id {
		t.Fatalf("pool id mismatch: %v vs %v", got, id)
	}
	if _, err := l.RegisterPool(key); err != ErrPoolExists {
		t.Fatalf("re-register: want ErrPoolExists, got %v", err)
	}
	bad := types.PoolKey{Token0: addr(2), Token1: addr(1)}
	if _, err := l.RegisterPool(bad); err == nil {
		t.Fatal("unordered key accepted")
	}
}

func TestDepositWithdraw(t *testing.T) {
	keeper, l, pool, key := newTestLedger(t)
	alice := addr(10)

	if err := l.Deposit(pool, key.Token0, alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got := l.Reserve(pool, key.Token0); !got.Eq(uint256.NewInt(1000)) {
		t.Fatalf("reserve after deposit = %v", got)
	}
	checkBacking(t, keeper, l, pool, key.Token0)

	if err := l.Withdraw(pool, key.Token0, alice, uint256.NewInt(400)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := l.Reserve(pool, key.Token0); !got.Eq(uint256.NewInt(600)) {
		t.Fatalf("reserve after withdraw = %v", got)
	}
	checkBacking(t, keeper, l, pool, key.Token0)
}

func TestWithdrawInsufficientReserve(t *testing.T) {
	_, l, pool, key := newTestLedger(t)
	alice := addr(10)
	if err := l.Deposit(pool, key.Token0, alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Withdraw(pool, key.Token0, alice, uint256.NewInt(101)); err != ErrInsufficientReserve {
		t.Fatalf("want ErrInsufficientReserve, got %v", err)
	}
}

func TestDepositValidation(t *testing.T) {
	_, l, pool, key := newTestLedger(t)
	alice := addr(10)

	if err := l.Deposit(pool, key.Token0, alice, uint256.NewInt(0)); err != types.ErrAmountZero {
		t.Fatalf("zero: want ErrAmountZero, got %v", err)
	}
	if err := l.Deposit(pool, addr(9), alice, uint256.NewInt(1)); err != ErrInvalidAsset {
		t.Fatalf("foreign asset: want ErrInvalidAsset, got %v", err)
	}
	var unknown types.PoolID
	unknown[0] = 0xaa
	if err := l.Deposit(unknown, key.Token0, alice, uint256.NewInt(1)); err != ErrPoolNotRegistered {
		t.Fatalf("unknown pool: want ErrPoolNotRegistered, got %v", err)
	}
}

func TestReserveOverflow(t *testing.T) {
	_, l, pool, key := newTestLedger(t)
	alice := addr(10)
	if err := l.Deposit(pool, key.Token0, alice, types.MaxUint128); err != nil {
		t.Fatalf("Deposit max: %v", err)
	}
	if err := l.Deposit(pool, key.Token0, alice, uint256.NewInt(1)); err != ErrReserveOverflow {
		t.Fatalf("want ErrReserveOverflow, got %v", err)
	}
}

func TestTransferPreservesBacking(t *testing.T) {
	keeper, l, pool, key := newTestLedger(t)
	alice, bob := addr(10), addr(11)

	if err := l.Deposit(pool, key.Token0, alice, uint256.NewInt(500)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	token, err := l.Token(pool, key.Token0)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	enc, err := keeper.TrivialEncrypt(uint256.NewInt(200))
	if err != nil {
		t.Fatalf("TrivialEncrypt: %v", err)
	}
	if err := token.Transfer(alice, bob, enc); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	// Transfers move value between holders without touching the reserve.
	if got := l.Reserve(pool, key.Token0); !got.Eq(uint256.NewInt(500)) {
		t.Fatalf("reserve changed by transfer: %v", got)
	}
	checkBacking(t, keeper, l, pool, key.Token0)

	bh, err := token.BalanceHandle(bob)
	if err != nil {
		t.Fatalf("BalanceHandle: %v", err)
	}
	bv, err := keeper.Reveal(bh)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if !bv.Eq(uint256.NewInt(200)) {
		t.Fatalf("bob's balance = %v, want 200", bv)
	}
}

func TestSnapshotRevert(t *testing.T) {
	keeper, l, pool, key := newTestLedger(t)
	alice := addr(10)

	if err := l.Deposit(pool, key.Token0, alice, uint256.NewInt(300)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	l.Commit()

	snap := l.Snapshot()
	if err := l.Deposit(pool, key.Token0, alice, uint256.NewInt(700)); err != nil {
		t.Fatalf("second Deposit: %v", err)
	}
	token, err := l.Token(pool, key.Token0)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if err := token.TransferPlain(alice, addr(11), uint256.NewInt(50)); err != nil {
		t.Fatalf("TransferPlain: %v", err)
	}
	l.RevertToSnapshot(snap)

	if got := l.Reserve(pool, key.Token0); !got.Eq(uint256.NewInt(300)) {
		t.Fatalf("reserve after revert = %v, want 300", got)
	}
	checkBacking(t, keeper, l, pool, key.Token0)
	if got := sumBalances(t, keeper, l, pool, key.Token0); !got.Eq(uint256.NewInt(300)) {
		t.Fatalf("balances after revert sum to %v, want 300", got)
	}
}

func TestRevertRemovesCreatedEntries(t *testing.T) {
	_, l, pool, key := newTestLedger(t)

	snap := l.Snapshot()
	if err := l.Deposit(pool, key.Token1, addr(12), uint256.NewInt(42)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	l.RevertToSnapshot(snap)

	if got := l.Reserve(pool, key.Token1); !got.IsZero() {
		t.Fatalf("reserve entry survived revert: %v", got)
	}
	token, err := l.Token(pool, key.Token1)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if n := len(token.Holders()); n != 0 {
		t.Fatalf("balance entries survived revert: %d holders", n)
	}
}

func TestSettlementReserveMoves(t *testing.T) {
	_, l, pool, key := newTestLedger(t)
	if err := l.Deposit(pool, key.Token0, addr(10), uint256.NewInt(1000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.SubReserve(pool, key.Token0, uint256.NewInt(100)); err != nil {
		t.Fatalf("SubReserve: %v", err)
	}
	if err := l.AddReserve(pool, key.Token1, uint256.NewInt(95)); err != nil {
		t.Fatalf("AddReserve: %v", err)
	}
	if got := l.Reserve(pool, key.Token0); !got.Eq(uint256.NewInt(900)) {
		t.Fatalf("token0 reserve = %v", got)
	}
	if got := l.Reserve(pool, key.Token1); !got.Eq(uint256.NewInt(95)) {
		t.Fatalf("token1 reserve = %v", got)
	}
}
