package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestGetBalanceMaterializesZeroLeaf(t *testing.T) {
	account := NewAccountLeaf(common.Address{}, 1, DefaultStorageDepth)

	leaf := account.GetBalance(7)
	if leaf == nil {
		t.Fatal("expected a materialized leaf")
	}
	if leaf.Balance.Sign() != 0 {
		t.Fatalf("fresh leaf balance: got %s want 0", leaf.Balance)
	}
	if got := account.GetBalance(7); got != leaf {
		t.Fatal("second lookup returned a different leaf object")
	}
	if len(account.Balances) != 1 {
		t.Fatalf("balance map size: got %d want 1", len(account.Balances))
	}
}

func TestGetBalanceNeverRemovesLeaves(t *testing.T) {
	account := NewAccountLeaf(common.Address{}, 1, DefaultStorageDepth)
	for tokenID := uint32(0); tokenID < 5; tokenID++ {
		account.GetBalance(tokenID)
	}
	account.GetBalance(2).Balance.SetInt64(0)
	if len(account.Balances) != 5 {
		t.Fatalf("balance map size: got %d want 5", len(account.Balances))
	}
}

func TestStorageAddressingLaw(t *testing.T) {
	const depth = 14
	cycle := uint64(1) << depth
	for _, storageID := range []uint64{0, 1, 17, cycle - 1, cycle, cycle + 17, 5*cycle + 17} {
		want := storageID % cycle
		if got := StorageAddress(storageID, depth); got != want {
			t.Fatalf("address(%d): got %d want %d", storageID, got, want)
		}
		for k := uint64(1); k < 4; k++ {
			if StorageAddress(storageID+k*cycle, depth) != want {
				t.Fatalf("address(%d + %d*2^%d) != address(%d)", storageID, k, depth, storageID)
			}
		}
	}
}

func TestGetStorageReusesSlotAcrossCycle(t *testing.T) {
	account := NewAccountLeaf(common.Address{}, 2, 14)

	first := account.GetStorage(17)
	if first.StorageID != 0 || first.Data.Sign() != 0 {
		t.Fatalf("fresh slot not zero: storageID=%d data=%s", first.StorageID, first.Data)
	}
	if !first.Forward {
		t.Fatal("fresh slot must default to forward")
	}

	second := account.GetStorage(17 + 16384)
	if second != first {
		t.Fatal("storage IDs one cycle apart must address the same slot object")
	}
	if len(account.Storage) != 1 {
		t.Fatalf("storage map size: got %d want 1", len(account.Storage))
	}
}

func TestGetStorageDoesNotCheckValidity(t *testing.T) {
	account := NewAccountLeaf(common.Address{}, 2, 14)

	slot := account.GetStorage(17)
	slot.StorageID = 17
	slot.Data.SetInt64(42)

	// Addressing only: a later lookup with a recycled ID returns the
	// occupied slot untouched. Replay detection is the caller's job.
	again := account.GetStorage(17 + 16384)
	if again.StorageID != 17 {
		t.Fatalf("slot storageID: got %d want 17", again.StorageID)
	}
	if again.Data.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("slot data: got %s want 42", again.Data)
	}
}

func TestHydratePreservesAccountID(t *testing.T) {
	account := NewAccountLeaf(common.Address{}, 9, DefaultStorageDepth)
	balances := map[uint32]*BalanceLeaf{3: {Balance: big.NewInt(1000)}}

	account.Hydrate(common.HexToAddress("0x01"), "0xabc", "0xdef", "", "", 5, balances, nil)

	if account.AccountID != 9 {
		t.Fatalf("hydrate must not change account ID: got %d want 9", account.AccountID)
	}
	if account.Nonce != 5 {
		t.Fatalf("nonce: got %d want 5", account.Nonce)
	}
	if got := account.GetBalance(3).Balance; got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("hydrated balance: got %s want 1000", got)
	}
	// Storage map untouched when nil is passed.
	if account.Storage == nil {
		t.Fatal("storage map must survive a partial hydrate")
	}
}

func TestRootCacheInvalidation(t *testing.T) {
	account := NewAccountLeaf(common.Address{}, 1, DefaultStorageDepth)
	account.CacheBalanceRoot(common.HexToHash("0x01"))
	account.CacheStorageRoot(common.HexToHash("0x02"))

	if _, ok := account.CachedBalanceRoot(); !ok {
		t.Fatal("balance root cache should be valid after caching")
	}

	account.GetBalance(0)
	if _, ok := account.CachedBalanceRoot(); ok {
		t.Fatal("balance leaf access must invalidate the cached balance root")
	}
	if _, ok := account.CachedStorageRoot(); !ok {
		t.Fatal("balance access must not invalidate the storage root")
	}

	account.GetStorage(1)
	if _, ok := account.CachedStorageRoot(); ok {
		t.Fatal("storage slot access must invalidate the cached storage root")
	}
}

func TestAccountIsZero(t *testing.T) {
	account := NewAccountLeaf(common.Address{}, 1, DefaultStorageDepth)
	if !account.IsZero() {
		t.Fatal("fresh account must be zero")
	}
	account.GetBalance(3)
	account.GetStorage(17)
	if !account.IsZero() {
		t.Fatal("materialized zero leaves must keep the account zero")
	}
	account.GetBalance(3).Balance.SetInt64(1)
	if account.IsZero() {
		t.Fatal("non-zero balance must make the account non-zero")
	}
}
