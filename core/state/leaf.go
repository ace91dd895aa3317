package state

import "math/big"

// DefaultStorageDepth is the depth of each account's storage sub-tree. It
// bounds the physical slot range to [0, 2^depth) and must match the value the
// Merkle collaborator hashes with; the two always read it from the same
// config field.
const DefaultStorageDepth = 14

// StorageAddress maps a full storage ID onto its physical slot:
// storageID mod 2^depth. Every read and write uses this same mapping, so a
// given storage ID always lands on the same slot for a given account.
func StorageAddress(storageID uint64, depth uint) uint64 {
	return storageID & ((1 << depth) - 1)
}

// BalanceLeaf is one token balance inside an account. An absent leaf is
// defined to equal a fresh zero leaf, so lookups materialize instead of
// failing.
type BalanceLeaf struct {
	Balance *big.Int
}

// NewBalanceLeaf returns a zero-valued balance leaf.
func NewBalanceLeaf() *BalanceLeaf {
	return &BalanceLeaf{Balance: big.NewInt(0)}
}

// IsZero reports whether the leaf equals the zero leaf. Zero leaves are
// indistinguishable from absent ones and are skipped when committing the
// balance sub-tree.
func (l *BalanceLeaf) IsZero() bool {
	return l.Balance == nil || l.Balance.Sign() == 0
}

// Clone returns a deep copy of the leaf.
func (l *BalanceLeaf) Clone() *BalanceLeaf {
	c := NewBalanceLeaf()
	if l.Balance != nil {
		c.Balance.Set(l.Balance)
	}
	return c
}

// StorageLeaf is one replay-protection slot. The slot is addressed by
// StorageAddress and reused cyclically; the stored StorageID, not the
// address, decides whether a logical order/trade ID already consumed the
// slot, so callers must always compare the full ID.
type StorageLeaf struct {
	StorageID uint64
	Data      *big.Int
	GasFee    *big.Int
	Cancelled bool
	TokenSID  uint32
	TokenBID  uint32
	// Forward is the fill-accounting direction flag; its semantics belong
	// to the order-matching layer. Fresh slots start forward.
	Forward bool
}

// NewStorageLeaf returns a zero-valued slot: storage ID 0, zero data and gas
// fee, not cancelled, forward.
func NewStorageLeaf() *StorageLeaf {
	return &StorageLeaf{
		Data:    big.NewInt(0),
		GasFee:  big.NewInt(0),
		Forward: true,
	}
}

// IsZero reports whether the slot equals a freshly constructed one.
func (l *StorageLeaf) IsZero() bool {
	return l.StorageID == 0 &&
		(l.Data == nil || l.Data.Sign() == 0) &&
		(l.GasFee == nil || l.GasFee.Sign() == 0) &&
		!l.Cancelled &&
		l.TokenSID == 0 &&
		l.TokenBID == 0 &&
		l.Forward
}

// Clone returns a deep copy of the slot.
func (l *StorageLeaf) Clone() *StorageLeaf {
	c := NewStorageLeaf()
	c.StorageID = l.StorageID
	if l.Data != nil {
		c.Data.Set(l.Data)
	}
	if l.GasFee != nil {
		c.GasFee.Set(l.GasFee)
	}
	c.Cancelled = l.Cancelled
	c.TokenSID = l.TokenSID
	c.TokenBID = l.TokenBID
	c.Forward = l.Forward
	return c
}
