package trie

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"zkex/core/state"
	"zkex/core/types"
	"zkex/storage"
)

// Accumulator is the Merkle collaborator: it computes sub-tree and global
// roots and membership proofs over the exchange leaf state, using
// go-ethereum's trie as the hashing backend.
//
// The trees are derived from the leaves on every recompute; the per-account
// root caches are consulted only while the account reports them valid, so a
// stale root is never served after a leaf mutation.
//
// Accumulator is not safe for concurrent use.
type Accumulator struct {
	trieDB *triedb.Database
}

// NewAccumulator creates an accumulator hashing into the node database of
// the provided store.
func NewAccumulator(store storage.Database) *Accumulator {
	return &Accumulator{trieDB: store.TrieDB()}
}

func (a *Accumulator) newTrie() (*gethtrie.Trie, error) {
	return gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), a.trieDB)
}

// BalanceRoot returns the root of the account's balance sub-tree, reusing
// the account's cached root when it is still valid. Zero leaves are skipped:
// a materialized-but-untouched leaf hashes identically to an absent one.
func (a *Accumulator) BalanceRoot(account *state.AccountLeaf) (common.Hash, error) {
	if root, ok := account.CachedBalanceRoot(); ok {
		return root, nil
	}
	tr, err := a.balanceTrie(account)
	if err != nil {
		return common.Hash{}, err
	}
	root := tr.Hash()
	account.CacheBalanceRoot(root)
	return root, nil
}

func (a *Accumulator) balanceTrie(account *state.AccountLeaf) (*gethtrie.Trie, error) {
	tr, err := a.newTrie()
	if err != nil {
		return nil, err
	}
	for tokenID, leaf := range account.Balances {
		if leaf.IsZero() {
			continue
		}
		encoded, err := encodeBalanceLeaf(leaf)
		if err != nil {
			return nil, fmt.Errorf("account %d token %d: %w", account.AccountID, tokenID, err)
		}
		if err := tr.Update(tokenKey(tokenID), encoded); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// StorageRoot returns the root of the account's storage sub-tree, reusing
// the cached root when valid.
func (a *Accumulator) StorageRoot(account *state.AccountLeaf) (common.Hash, error) {
	if root, ok := account.CachedStorageRoot(); ok {
		return root, nil
	}
	tr, err := a.newTrie()
	if err != nil {
		return common.Hash{}, err
	}
	for address, leaf := range account.Storage {
		if leaf.IsZero() {
			continue
		}
		encoded, err := encodeStorageLeaf(leaf)
		if err != nil {
			return common.Hash{}, fmt.Errorf("account %d slot %d: %w", account.AccountID, address, err)
		}
		if err := tr.Update(slotKey(address), encoded); err != nil {
			return common.Hash{}, err
		}
	}
	root := tr.Hash()
	account.CacheStorageRoot(root)
	return root, nil
}

func (a *Accumulator) encodeAccount(account *state.AccountLeaf) ([]byte, error) {
	balanceRoot, err := a.BalanceRoot(account)
	if err != nil {
		return nil, err
	}
	storageRoot, err := a.StorageRoot(account)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(&accountLeafRLP{
		Owner:              account.Owner,
		PublicKeyX:         account.PublicKeyX,
		PublicKeyY:         account.PublicKeyY,
		AppKeyPublicKeyX:   account.AppKeyPublicKeyX,
		AppKeyPublicKeyY:   account.AppKeyPublicKeyY,
		AppKeyDisableFlags: account.AppKeyDisableFlags,
		Nonce:              account.Nonce,
		BalanceRoot:        balanceRoot,
		StorageRoot:        storageRoot,
	})
}

func (a *Accumulator) accountTrie(st *state.ExchangeState) (*gethtrie.Trie, error) {
	tr, err := a.newTrie()
	if err != nil {
		return nil, err
	}
	for _, account := range st.Accounts {
		if account.IsZero() {
			continue
		}
		encoded, err := a.encodeAccount(account)
		if err != nil {
			return nil, err
		}
		if err := tr.Update(accountKey(account.AccountID), encoded); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// AccountRoot computes the global account-tree root over the full state.
func (a *Accumulator) AccountRoot(st *state.ExchangeState) (common.Hash, error) {
	tr, err := a.accountTrie(st)
	if err != nil {
		return common.Hash{}, err
	}
	return tr.Hash(), nil
}

// AssetRoot computes the balances-only commitment: the same account set, but
// each leaf carries only owner, nonce, and balance root. It is the root a
// withdrawal-mode exit proves against.
func (a *Accumulator) AssetRoot(st *state.ExchangeState) (common.Hash, error) {
	tr, err := a.newTrie()
	if err != nil {
		return common.Hash{}, err
	}
	for _, account := range st.Accounts {
		if account.IsZero() {
			continue
		}
		balanceRoot, err := a.BalanceRoot(account)
		if err != nil {
			return common.Hash{}, err
		}
		encoded, err := rlp.EncodeToBytes(&assetLeafRLP{
			Owner:       account.Owner,
			Nonce:       account.Nonce,
			BalanceRoot: balanceRoot,
		})
		if err != nil {
			return common.Hash{}, err
		}
		if err := tr.Update(accountKey(account.AccountID), encoded); err != nil {
			return common.Hash{}, err
		}
	}
	return tr.Hash(), nil
}

// WithdrawProof assembles the data needed to withdraw a balance directly
// against the committed root: the account leaf fields plus ordered
// membership proofs for the account in the account tree and the token in the
// account's balance sub-tree.
func (a *Accumulator) WithdrawProof(st *state.ExchangeState, accountID, tokenID uint32) (*types.WithdrawFromMerkleTreeData, error) {
	token, err := st.Token(tokenID)
	if err != nil {
		return nil, err
	}
	account := st.GetAccount(accountID)

	accountTrie, err := a.accountTrie(st)
	if err != nil {
		return nil, err
	}
	var accountProof proofList
	if err := accountTrie.Prove(accountKey(accountID), &accountProof); err != nil {
		return nil, fmt.Errorf("account proof %d: %w", accountID, err)
	}

	balanceTrie, err := a.balanceTrie(account)
	if err != nil {
		return nil, err
	}
	var balanceProof proofList
	if err := balanceTrie.Prove(tokenKey(tokenID), &balanceProof); err != nil {
		return nil, fmt.Errorf("balance proof %d/%d: %w", accountID, tokenID, err)
	}

	return &types.WithdrawFromMerkleTreeData{
		Owner:              account.Owner,
		Token:              token.Address,
		PublicKeyX:         account.PublicKeyX,
		PublicKeyY:         account.PublicKeyY,
		Nonce:              account.Nonce,
		Balance:            new(big.Int).Set(account.GetBalance(tokenID).Balance),
		AccountMerkleProof: accountProof.Hex(),
		BalanceMerkleProof: balanceProof.Hex(),
	}, nil
}

// proofList collects trie proof nodes in path order. It implements
// ethdb.KeyValueWriter for gethtrie.Prove.
type proofList [][]byte

func (p *proofList) Put(key []byte, value []byte) error {
	*p = append(*p, append([]byte(nil), value...))
	return nil
}

func (p *proofList) Delete(key []byte) error {
	return nil
}

// Hex returns the collected nodes as 0x-prefixed hex strings.
func (p proofList) Hex() []string {
	out := make([]string, len(p))
	for i, node := range p {
		out[i] = hexutil.Encode(node)
	}
	return out
}
