package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zkex/core/state"
	"zkex/storage"
)

func newTestState(t *testing.T) (*state.ExchangeState, *Accumulator) {
	t.Helper()
	st := state.NewExchangeState(common.HexToAddress("0xEC"), state.DefaultStorageDepth)
	return st, NewAccumulator(storage.NewMemDB())
}

func TestZeroLeafMaterializationKeepsRoot(t *testing.T) {
	st, acc := newTestState(t)
	account := st.GetAccount(1)

	before, err := acc.BalanceRoot(account)
	require.NoError(t, err)

	// Reading an unset token materializes a zero leaf; the committed root
	// must not move.
	account.GetBalance(42)
	after, err := acc.BalanceRoot(account)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestBalanceRootTracksMutations(t *testing.T) {
	st, acc := newTestState(t)
	account := st.GetAccount(1)

	empty, err := acc.BalanceRoot(account)
	require.NoError(t, err)

	account.GetBalance(3).Balance.SetInt64(1000)
	account.TouchBalances()
	credited, err := acc.BalanceRoot(account)
	require.NoError(t, err)
	require.NotEqual(t, empty, credited)

	// Cache serves the same root while nothing changes.
	again, err := acc.BalanceRoot(account)
	require.NoError(t, err)
	require.Equal(t, credited, again)

	// A further mutation through the accessor invalidates and recomputes.
	account.GetBalance(3).Balance.SetInt64(500)
	recomputed, err := acc.BalanceRoot(account)
	require.NoError(t, err)
	require.NotEqual(t, credited, recomputed)
}

func TestStorageRootTracksSlots(t *testing.T) {
	st, acc := newTestState(t)
	account := st.GetAccount(2)

	empty, err := acc.StorageRoot(account)
	require.NoError(t, err)

	slot := account.GetStorage(17)
	slot.StorageID = 17
	slot.Data.SetInt64(5)
	occupied, err := acc.StorageRoot(account)
	require.NoError(t, err)
	require.NotEqual(t, empty, occupied)
}

func TestAccountRootCoversSubTrees(t *testing.T) {
	st, acc := newTestState(t)
	require.NoError(t, st.RegisterOwner(1, common.HexToAddress("0xA1")))

	base, err := acc.AccountRoot(st)
	require.NoError(t, err)

	st.GetAccount(1).GetBalance(0).Balance.SetInt64(7)
	credited, err := acc.AccountRoot(st)
	require.NoError(t, err)
	require.NotEqual(t, base, credited)

	// Storage writes move the account root but not the asset root, which
	// commits balances only.
	assetBefore, err := acc.AssetRoot(st)
	require.NoError(t, err)
	slot := st.GetAccount(1).GetStorage(3)
	slot.StorageID = 3
	slot.Data.SetInt64(1)
	full, err := acc.AccountRoot(st)
	require.NoError(t, err)
	require.NotEqual(t, credited, full)
	assetAfter, err := acc.AssetRoot(st)
	require.NoError(t, err)
	require.Equal(t, assetBefore, assetAfter)
}

func TestWithdrawProof(t *testing.T) {
	st, acc := newTestState(t)
	tokenAddr := common.HexToAddress("0x11")
	_, err := st.RegisterToken(tokenAddr)
	require.NoError(t, err)

	owner := common.HexToAddress("0xA1")
	require.NoError(t, st.RegisterOwner(1, owner))
	account := st.GetAccount(1)
	account.PublicKeyX = "0x1234"
	account.PublicKeyY = "0x5678"
	account.Nonce = 2
	account.GetBalance(0).Balance.SetInt64(1000)

	proof, err := acc.WithdrawProof(st, 1, 0)
	require.NoError(t, err)
	require.Equal(t, owner, proof.Owner)
	require.Equal(t, tokenAddr, proof.Token)
	require.Equal(t, "0x1234", proof.PublicKeyX)
	require.Equal(t, uint64(2), proof.Nonce)
	require.Equal(t, int64(1000), proof.Balance.Int64())
	require.NotEmpty(t, proof.AccountMerkleProof)
	require.NotEmpty(t, proof.BalanceMerkleProof)
	for _, node := range proof.AccountMerkleProof {
		require.True(t, len(node) > 2 && node[:2] == "0x")
	}
}

func TestWithdrawProofUnknownToken(t *testing.T) {
	st, acc := newTestState(t)
	_, err := acc.WithdrawProof(st, 0, 9)
	require.Error(t, err)
}
