package trie

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"zkex/core/state"
)

// Leaf encodings committed into the trees. Amounts are range-checked into
// 256-bit words before hashing: a balance the circuit word cannot hold must
// never make it into a committed root.

type balanceLeafRLP struct {
	Balance *uint256.Int
}

type storageLeafRLP struct {
	StorageID uint64
	Data      *uint256.Int
	GasFee    *uint256.Int
	Cancelled bool
	TokenSID  uint32
	TokenBID  uint32
	Forward   bool
}

type accountLeafRLP struct {
	Owner              common.Address
	PublicKeyX         string
	PublicKeyY         string
	AppKeyPublicKeyX   string
	AppKeyPublicKeyY   string
	AppKeyDisableFlags uint8
	Nonce              uint64
	BalanceRoot        common.Hash
	StorageRoot        common.Hash
}

// assetLeafRLP is the reduced account encoding for the asset tree, which
// commits balances only and omits keys and storage.
type assetLeafRLP struct {
	Owner       common.Address
	Nonce       uint64
	BalanceRoot common.Hash
}

func encodeBalanceLeaf(leaf *state.BalanceLeaf) ([]byte, error) {
	balance, overflow := uint256.FromBig(leaf.Balance)
	if overflow {
		return nil, fmt.Errorf("balance overflow")
	}
	return rlp.EncodeToBytes(&balanceLeafRLP{Balance: balance})
}

func encodeStorageLeaf(leaf *state.StorageLeaf) ([]byte, error) {
	data, overflow := uint256.FromBig(leaf.Data)
	if overflow {
		return nil, fmt.Errorf("storage data overflow")
	}
	gasFee, overflow := uint256.FromBig(leaf.GasFee)
	if overflow {
		return nil, fmt.Errorf("gas fee overflow")
	}
	return rlp.EncodeToBytes(&storageLeafRLP{
		StorageID: leaf.StorageID,
		Data:      data,
		GasFee:    gasFee,
		Cancelled: leaf.Cancelled,
		TokenSID:  leaf.TokenSID,
		TokenBID:  leaf.TokenBID,
		Forward:   leaf.Forward,
	})
}

// Fixed-width big-endian keys keep every leaf at the same path length, so
// tree depth is bounded by the key width and proofs stay uniform.

func tokenKey(tokenID uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], tokenID)
	return key[:]
}

func slotKey(address uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], address)
	return key[:]
}

func accountKey(accountID uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], accountID)
	return key[:]
}
