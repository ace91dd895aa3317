package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// AccountLeaf is one account in the exchange tree: identity, trading keys, a
// nonce, and the two sparse leaf maps (token balances and storage slots).
// Both maps materialize zero leaves on access and never remove entries.
//
// The Merkle sub-tree roots attached to an account are a derived cache over
// the leaf maps, never authoritative state: any access that may mutate a
// leaf invalidates the corresponding cache, and readers must go through the
// Merkle collaborator, which recomputes on a cache miss.
//
// AccountLeaf is not safe for concurrent use; see ExchangeState.
type AccountLeaf struct {
	Exchange  common.Address
	AccountID uint32
	Owner     common.Address

	// EdDSA public keys, stored as opaque string-encoded field elements.
	// The signature scheme lives entirely outside this core.
	PublicKeyX         string
	PublicKeyY         string
	AppKeyPublicKeyX   string
	AppKeyPublicKeyY   string
	AppKeyDisableFlags uint8

	Nonce uint64

	Balances map[uint32]*BalanceLeaf
	Storage  map[uint64]*StorageLeaf

	storageDepth uint

	balanceRoot   common.Hash
	balanceRootOK bool
	storageRoot   common.Hash
	storageRootOK bool
}

// NewAccountLeaf constructs a fresh zero-valued account. The account ID is
// assigned exactly once here and never changes afterwards; hydrating an
// existing account goes through Hydrate instead.
func NewAccountLeaf(exchange common.Address, accountID uint32, storageDepth uint) *AccountLeaf {
	if storageDepth == 0 {
		storageDepth = DefaultStorageDepth
	}
	return &AccountLeaf{
		Exchange:     exchange,
		AccountID:    accountID,
		Balances:     make(map[uint32]*BalanceLeaf),
		Storage:      make(map[uint64]*StorageLeaf),
		storageDepth: storageDepth,
	}
}

// Hydrate replaces the account's identity fields, keys, and nonce, and, when
// the respective map is non-nil, the balance/storage maps wholesale. It is
// the snapshot-recovery path. The account ID is deliberately left untouched:
// identity is fixed at construction.
func (a *AccountLeaf) Hydrate(owner common.Address, pubKeyX, pubKeyY, appKeyX, appKeyY string, nonce uint64, balances map[uint32]*BalanceLeaf, storage map[uint64]*StorageLeaf) {
	a.Owner = owner
	a.PublicKeyX = pubKeyX
	a.PublicKeyY = pubKeyY
	a.AppKeyPublicKeyX = appKeyX
	a.AppKeyPublicKeyY = appKeyY
	a.Nonce = nonce
	if balances != nil {
		a.Balances = balances
	}
	if storage != nil {
		a.Storage = storage
	}
	a.TouchBalances()
	a.TouchStorage()
}

// GetBalance returns the balance leaf for the token, creating and storing a
// zero leaf when none exists. Leaves are never removed. The returned leaf is
// the live mutation target, so the cached balance root is invalidated.
func (a *AccountLeaf) GetBalance(tokenID uint32) *BalanceLeaf {
	leaf, ok := a.Balances[tokenID]
	if !ok {
		leaf = NewBalanceLeaf()
		a.Balances[tokenID] = leaf
	}
	a.TouchBalances()
	return leaf
}

// GetStorage returns the storage slot addressed by the storage ID, creating
// and storing a zero slot when none exists. This performs addressing only:
// the caller compares the returned slot's StorageID against the requested
// one to detect reuse/replay.
func (a *AccountLeaf) GetStorage(storageID uint64) *StorageLeaf {
	address := StorageAddress(storageID, a.storageDepth)
	leaf, ok := a.Storage[address]
	if !ok {
		leaf = NewStorageLeaf()
		a.Storage[address] = leaf
	}
	a.TouchStorage()
	return leaf
}

// StorageDepth returns the depth of the account's storage sub-tree.
func (a *AccountLeaf) StorageDepth() uint { return a.storageDepth }

// Registered reports whether the account has a registered owner.
func (a *AccountLeaf) Registered() bool { return a.Owner != (common.Address{}) }

// IsZero reports whether the account is indistinguishable from a freshly
// constructed one, ignoring its identity. Zero accounts are skipped when
// committing the account tree.
func (a *AccountLeaf) IsZero() bool {
	if a.Registered() || a.Nonce != 0 ||
		a.PublicKeyX != "" || a.PublicKeyY != "" ||
		a.AppKeyPublicKeyX != "" || a.AppKeyPublicKeyY != "" ||
		a.AppKeyDisableFlags != 0 {
		return false
	}
	for _, leaf := range a.Balances {
		if !leaf.IsZero() {
			return false
		}
	}
	for _, leaf := range a.Storage {
		if !leaf.IsZero() {
			return false
		}
	}
	return true
}

// TouchBalances invalidates the cached balance sub-tree root.
func (a *AccountLeaf) TouchBalances() { a.balanceRootOK = false }

// TouchStorage invalidates the cached storage sub-tree root.
func (a *AccountLeaf) TouchStorage() { a.storageRootOK = false }

// CachedBalanceRoot returns the cached balance sub-tree root if it is still
// valid. Only the Merkle collaborator reads and writes this cache.
func (a *AccountLeaf) CachedBalanceRoot() (common.Hash, bool) {
	return a.balanceRoot, a.balanceRootOK
}

// CacheBalanceRoot stores a freshly computed balance sub-tree root.
func (a *AccountLeaf) CacheBalanceRoot(root common.Hash) {
	a.balanceRoot = root
	a.balanceRootOK = true
}

// CachedStorageRoot returns the cached storage sub-tree root if it is still
// valid.
func (a *AccountLeaf) CachedStorageRoot() (common.Hash, bool) {
	return a.storageRoot, a.storageRootOK
}

// CacheStorageRoot stores a freshly computed storage sub-tree root.
func (a *AccountLeaf) CacheStorageRoot(root common.Hash) {
	a.storageRoot = root
	a.storageRootOK = true
}

// Clone returns a deep copy of the account. Root caches are not carried
// over; a clone recomputes from its own leaves.
func (a *AccountLeaf) Clone() *AccountLeaf {
	c := NewAccountLeaf(a.Exchange, a.AccountID, a.storageDepth)
	c.Owner = a.Owner
	c.PublicKeyX = a.PublicKeyX
	c.PublicKeyY = a.PublicKeyY
	c.AppKeyPublicKeyX = a.AppKeyPublicKeyX
	c.AppKeyPublicKeyY = a.AppKeyPublicKeyY
	c.AppKeyDisableFlags = a.AppKeyDisableFlags
	c.Nonce = a.Nonce
	for tokenID, leaf := range a.Balances {
		c.Balances[tokenID] = leaf.Clone()
	}
	for address, leaf := range a.Storage {
		c.Storage[address] = leaf.Clone()
	}
	return c
}
