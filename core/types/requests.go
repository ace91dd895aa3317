package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RequestKind discriminates the concrete record types carried in the
// processed-request log. Switching on the kind gives callers back the
// exhaustiveness a plain interface list would lose.
type RequestKind uint8

const (
	KindDeposit RequestKind = iota + 1
	KindOnchainWithdrawal
	KindSpotTrade
	KindOffchainWithdrawal
	KindOrderCancellation
	KindInternalTransfer
	KindProtocolFees
)

// String returns the canonical lowercase name used in logs and metrics labels.
func (k RequestKind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindOnchainWithdrawal:
		return "onchain_withdrawal"
	case KindSpotTrade:
		return "spot_trade"
	case KindOffchainWithdrawal:
		return "offchain_withdrawal"
	case KindOrderCancellation:
		return "order_cancellation"
	case KindInternalTransfer:
		return "internal_transfer"
	case KindProtocolFees:
		return "protocol_fees"
	default:
		return "unknown"
	}
}

// ProcessedRequest is the tagged union over every record that can appear in
// the exchange's processed-request log. Records are immutable once appended;
// Position reports the (blockIdx, requestIdx) pair fixing the record's place
// in the total processing order.
type ProcessedRequest interface {
	Kind() RequestKind
	Position() (blockIdx, requestIdx uint64)
}

// Deposit is an on-chain deposit request. BlockIdx/RequestIdx stay nil while
// the deposit sits in the pending queue and are set exactly once when the
// request is included in a committed block.
type Deposit struct {
	Exchange        common.Address `json:"exchange"`
	BlockIdx        *uint64        `json:"blockIdx,omitempty"`
	RequestIdx      *uint64        `json:"requestIdx,omitempty"`
	AccountID       uint32         `json:"accountId"`
	Owner           common.Address `json:"owner"`
	TokenID         uint32         `json:"tokenId"`
	Amount          *big.Int       `json:"amount"`
	TransactionHash common.Hash    `json:"transactionHash"`
}

func (d *Deposit) Kind() RequestKind { return KindDeposit }

func (d *Deposit) Position() (uint64, uint64) {
	if d.BlockIdx == nil || d.RequestIdx == nil {
		return 0, 0
	}
	return *d.BlockIdx, *d.RequestIdx
}

// Pending reports whether the deposit has not yet been included in a block.
func (d *Deposit) Pending() bool { return d.BlockIdx == nil }

// Clone returns a deep copy of the record. A queued deposit stays mutable
// until it is stamped, so snapshots must not share it with the writer.
func (d *Deposit) Clone() *Deposit {
	c := *d
	if d.BlockIdx != nil {
		v := *d.BlockIdx
		c.BlockIdx = &v
	}
	if d.RequestIdx != nil {
		v := *d.RequestIdx
		c.RequestIdx = &v
	}
	if d.Amount != nil {
		c.Amount = new(big.Int).Set(d.Amount)
	}
	return &c
}

// OnchainWithdrawal is a forced withdrawal requested on chain. Like Deposit
// it is queued first and stamped when processed; AmountWithdrawn records how
// much the account could actually cover.
type OnchainWithdrawal struct {
	Exchange        common.Address `json:"exchange"`
	BlockIdx        *uint64        `json:"blockIdx,omitempty"`
	RequestIdx      *uint64        `json:"requestIdx,omitempty"`
	WithdrawalIdx   uint64         `json:"withdrawalIdx"`
	AccountID       uint32         `json:"accountId"`
	TokenID         uint32         `json:"tokenId"`
	AmountRequested *big.Int       `json:"amountRequested"`
	AmountWithdrawn *big.Int       `json:"amountWithdrawn,omitempty"`
	TransactionHash common.Hash    `json:"transactionHash"`
}

func (w *OnchainWithdrawal) Kind() RequestKind { return KindOnchainWithdrawal }

func (w *OnchainWithdrawal) Position() (uint64, uint64) {
	if w.BlockIdx == nil || w.RequestIdx == nil {
		return 0, 0
	}
	return *w.BlockIdx, *w.RequestIdx
}

// Pending reports whether the withdrawal has not yet been included in a block.
func (w *OnchainWithdrawal) Pending() bool { return w.BlockIdx == nil }

// Clone returns a deep copy of the record; see Deposit.Clone.
func (w *OnchainWithdrawal) Clone() *OnchainWithdrawal {
	c := *w
	if w.BlockIdx != nil {
		v := *w.BlockIdx
		c.BlockIdx = &v
	}
	if w.RequestIdx != nil {
		v := *w.RequestIdx
		c.RequestIdx = &v
	}
	if w.AmountRequested != nil {
		c.AmountRequested = new(big.Int).Set(w.AmountRequested)
	}
	if w.AmountWithdrawn != nil {
		c.AmountWithdrawn = new(big.Int).Set(w.AmountWithdrawn)
	}
	return &c
}

// SpotTrade matches two orders. Order IDs are the full storage IDs consumed
// for replay protection; fills are denominated in each side's sell token.
type SpotTrade struct {
	Exchange   common.Address `json:"exchange"`
	BlockIdx   uint64         `json:"blockIdx"`
	RequestIdx uint64         `json:"requestIdx"`

	AccountIDA uint32   `json:"accountIdA"`
	AccountIDB uint32   `json:"accountIdB"`
	OrderIDA   uint64   `json:"orderIdA"`
	OrderIDB   uint64   `json:"orderIdB"`
	TokenA     uint32   `json:"tokenA"`
	TokenB     uint32   `json:"tokenB"`
	FillSA     *big.Int `json:"fillSA"`
	FillSB     *big.Int `json:"fillSB"`
	FeeA       *big.Int `json:"feeA"`
	FeeB       *big.Int `json:"feeB"`
}

func (t *SpotTrade) Kind() RequestKind          { return KindSpotTrade }
func (t *SpotTrade) Position() (uint64, uint64) { return t.BlockIdx, t.RequestIdx }

// OffchainWithdrawal is an operator-relayed withdrawal paying its fee in an
// arbitrary fee token.
type OffchainWithdrawal struct {
	Exchange   common.Address `json:"exchange"`
	BlockIdx   uint64         `json:"blockIdx"`
	RequestIdx uint64         `json:"requestIdx"`
	AccountID  uint32         `json:"accountId"`
	TokenID    uint32         `json:"tokenId"`
	Amount     *big.Int       `json:"amount"`
	FeeTokenID uint32         `json:"feeTokenId"`
	Fee        *big.Int       `json:"fee"`
}

func (w *OffchainWithdrawal) Kind() RequestKind          { return KindOffchainWithdrawal }
func (w *OffchainWithdrawal) Position() (uint64, uint64) { return w.BlockIdx, w.RequestIdx }

// OrderCancellation voids the storage slot backing an order so later fills
// against it fail replay detection.
type OrderCancellation struct {
	Exchange     common.Address `json:"exchange"`
	BlockIdx     uint64         `json:"blockIdx"`
	RequestIdx   uint64         `json:"requestIdx"`
	AccountID    uint32         `json:"accountId"`
	OrderTokenID uint32         `json:"orderTokenId"`
	OrderID      uint64         `json:"orderId"`
	FeeTokenID   uint32         `json:"feeTokenId"`
	Fee          *big.Int       `json:"fee"`
}

func (c *OrderCancellation) Kind() RequestKind          { return KindOrderCancellation }
func (c *OrderCancellation) Position() (uint64, uint64) { return c.BlockIdx, c.RequestIdx }

// InternalTransfer moves balance between two accounts without touching the
// chain.
type InternalTransfer struct {
	Exchange      common.Address `json:"exchange"`
	BlockIdx      uint64         `json:"blockIdx"`
	RequestIdx    uint64         `json:"requestIdx"`
	FromAccountID uint32         `json:"fromAccountId"`
	ToAccountID   uint32         `json:"toAccountId"`
	TokenID       uint32         `json:"tokenId"`
	Amount        *big.Int       `json:"amount"`
	FeeTokenID    uint32         `json:"feeTokenId"`
	Fee           *big.Int       `json:"fee"`
}

func (t *InternalTransfer) Kind() RequestKind          { return KindInternalTransfer }
func (t *InternalTransfer) Position() (uint64, uint64) { return t.BlockIdx, t.RequestIdx }

// ProtocolFees records the taker/maker protocol fee rates in effect from the
// block it appears in. The policy computing the rates lives outside this
// core; only the two values are stored.
type ProtocolFees struct {
	Exchange             common.Address `json:"exchange"`
	BlockIdx             uint64         `json:"blockIdx"`
	RequestIdx           uint64         `json:"requestIdx"`
	TakerFeeBips         uint8          `json:"takerFeeBips"`
	MakerFeeBips         uint8          `json:"makerFeeBips"`
	PreviousTakerFeeBips uint8          `json:"previousTakerFeeBips"`
	PreviousMakerFeeBips uint8          `json:"previousMakerFeeBips"`
}

func (p *ProtocolFees) Kind() RequestKind          { return KindProtocolFees }
func (p *ProtocolFees) Position() (uint64, uint64) { return p.BlockIdx, p.RequestIdx }
