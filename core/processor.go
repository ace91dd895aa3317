package core

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zkex/core/errors"
	"zkex/core/state"
	"zkex/core/types"
	"zkex/observability"
	"zkex/storage/trie"
)

// Processor applies the ordered request stream to an ExchangeState and seals
// the applied requests into blocks. It owns the only mutation path into the
// state: requests are applied strictly in block/request order by a single
// goroutine. Validation beyond the structural checks here (signatures, range
// checks) happens upstream.
type Processor struct {
	state   *state.ExchangeState
	acc     *trie.Accumulator
	log     *slog.Logger
	metrics *observability.StateMetrics

	takerFeeBips uint8
	makerFeeBips uint8

	blockIdx   uint64
	requestIdx uint64
	pending    []types.ProcessedRequest
	blockFee   *big.Int
	blocks     []*types.Block

	totalProcessed uint64
}

// NewProcessor wires a processor to the given state and Merkle collaborator.
// A nil logger falls back to the process default; a nil metrics registry
// disables instrumentation (used by tests).
func NewProcessor(st *state.ExchangeState, acc *trie.Accumulator, logger *slog.Logger, metrics *observability.StateMetrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		state:    st,
		acc:      acc,
		log:      logger,
		metrics:  metrics,
		blockFee: big.NewInt(0),
	}
}

// State returns the processor's exchange state.
func (p *Processor) State() *state.ExchangeState { return p.state }

// Blocks returns the committed block sequence.
func (p *Processor) Blocks() []*types.Block { return p.blocks }

// PendingRequests returns how many applied requests await the next commit.
func (p *Processor) PendingRequests() int { return len(p.pending) }

// SubmitDeposit queues an on-chain deposit. The record stays unstamped until
// ApplyDeposit includes it in the pending block.
func (p *Processor) SubmitDeposit(owner common.Address, accountID, tokenID uint32, amount *big.Int, txHash common.Hash) (*types.Deposit, error) {
	token, err := p.state.Token(tokenID)
	if err != nil {
		return nil, err
	}
	if !token.Enabled {
		return nil, errors.ErrTokenDisabled
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("deposit amount must be non-negative")
	}
	deposit := &types.Deposit{
		Exchange:        p.state.Exchange,
		AccountID:       accountID,
		Owner:           owner,
		TokenID:         tokenID,
		Amount:          new(big.Int).Set(amount),
		TransactionHash: txHash,
	}
	p.state.QueueDeposit(deposit)
	p.gaugePendingDeposits()
	return deposit, nil
}

// ApplyDeposit includes a queued deposit in the pending block: it registers
// the owner on first touch, credits the balance, and stamps the record.
func (p *Processor) ApplyDeposit(deposit *types.Deposit) error {
	if !deposit.Pending() {
		return p.fail(types.KindDeposit, errors.ErrDepositProcessed)
	}
	account := p.state.GetAccount(deposit.AccountID)
	if !account.Registered() {
		if err := p.state.RegisterOwner(deposit.AccountID, deposit.Owner); err != nil {
			return p.fail(types.KindDeposit, err)
		}
	} else if account.Owner != deposit.Owner {
		return p.fail(types.KindDeposit, errors.ErrOwnerRegistered)
	}
	account.GetBalance(deposit.TokenID).Balance.Add(account.GetBalance(deposit.TokenID).Balance, deposit.Amount)

	p.stampPending(&deposit.BlockIdx, &deposit.RequestIdx)
	p.append(deposit)
	p.gaugePendingDeposits()
	p.log.Info("applied deposit",
		"accountId", deposit.AccountID,
		"tokenId", deposit.TokenID,
		"amount", deposit.Amount.String())
	return nil
}

// SubmitOnchainWithdrawal queues a forced withdrawal.
func (p *Processor) SubmitOnchainWithdrawal(accountID, tokenID uint32, amount *big.Int, txHash common.Hash) (*types.OnchainWithdrawal, error) {
	if _, err := p.state.Token(tokenID); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("withdrawal amount must be non-negative")
	}
	withdrawal := &types.OnchainWithdrawal{
		Exchange:        p.state.Exchange,
		AccountID:       accountID,
		TokenID:         tokenID,
		AmountRequested: new(big.Int).Set(amount),
		TransactionHash: txHash,
	}
	p.state.QueueOnchainWithdrawal(withdrawal)
	return withdrawal, nil
}

// ApplyOnchainWithdrawal processes a queued forced withdrawal. The withdrawn
// amount is capped at the available balance; a forced exit can never fail on
// funds.
func (p *Processor) ApplyOnchainWithdrawal(withdrawal *types.OnchainWithdrawal) error {
	if !withdrawal.Pending() {
		return p.fail(types.KindOnchainWithdrawal, errors.ErrWithdrawalProcessed)
	}
	account := p.state.GetAccount(withdrawal.AccountID)
	leaf := account.GetBalance(withdrawal.TokenID)

	withdrawn := new(big.Int).Set(withdrawal.AmountRequested)
	if leaf.Balance.Cmp(withdrawn) < 0 {
		withdrawn.Set(leaf.Balance)
	}
	leaf.Balance.Sub(leaf.Balance, withdrawn)
	withdrawal.AmountWithdrawn = withdrawn

	p.stampPending(&withdrawal.BlockIdx, &withdrawal.RequestIdx)
	p.append(withdrawal)
	p.log.Info("applied onchain withdrawal",
		"accountId", withdrawal.AccountID,
		"tokenId", withdrawal.TokenID,
		"requested", withdrawal.AmountRequested.String(),
		"withdrawn", withdrawn.String())
	return nil
}

// ApplySpotTrade settles a two-sided fill. Each side's order slot is claimed
// through the storage replay rule, the sell amounts swap between the
// accounts, and fees (denominated in each side's buy token) accrue to the
// fee pool.
func (p *Processor) ApplySpotTrade(trade *types.SpotTrade) error {
	if trade.FillSA.Sign() < 0 || trade.FillSB.Sign() < 0 {
		return p.fail(types.KindSpotTrade, fmt.Errorf("fill amounts must be non-negative"))
	}
	feeA := bigOrZero(trade.FeeA)
	feeB := bigOrZero(trade.FeeB)
	if feeA.Cmp(trade.FillSB) > 0 || feeB.Cmp(trade.FillSA) > 0 {
		return p.fail(types.KindSpotTrade, fmt.Errorf("fee exceeds fill"))
	}
	accountA := p.state.GetAccount(trade.AccountIDA)
	accountB := p.state.GetAccount(trade.AccountIDB)

	// Validate both sides in full before mutating either slot: a rejected
	// trade must leave the live order slots exactly as it found them.
	slotA := accountA.GetStorage(trade.OrderIDA)
	if err := checkOrderSlot(slotA, trade.OrderIDA); err != nil {
		return p.fail(types.KindSpotTrade, fmt.Errorf("order A: %w", err))
	}
	slotB := accountB.GetStorage(trade.OrderIDB)
	if err := checkOrderSlot(slotB, trade.OrderIDB); err != nil {
		return p.fail(types.KindSpotTrade, fmt.Errorf("order B: %w", err))
	}

	if accountA.GetBalance(trade.TokenA).Balance.Cmp(trade.FillSA) < 0 {
		return p.fail(types.KindSpotTrade, errors.ErrInsufficientBalance)
	}
	if accountB.GetBalance(trade.TokenB).Balance.Cmp(trade.FillSB) < 0 {
		return p.fail(types.KindSpotTrade, errors.ErrInsufficientBalance)
	}

	if slotA.StorageID < trade.OrderIDA {
		resetSlot(slotA, trade.OrderIDA, trade.TokenA, trade.TokenB)
	}
	if slotB.StorageID < trade.OrderIDB {
		resetSlot(slotB, trade.OrderIDB, trade.TokenB, trade.TokenA)
	}

	feePool := p.state.GetAccount(state.FeePoolAccountID)

	// A sells tokenA, receives tokenB net of its fee; mirrored for B.
	debit(accountA, trade.TokenA, trade.FillSA)
	credit(accountB, trade.TokenA, new(big.Int).Sub(trade.FillSA, feeB))
	credit(feePool, trade.TokenA, feeB)

	debit(accountB, trade.TokenB, trade.FillSB)
	credit(accountA, trade.TokenB, new(big.Int).Sub(trade.FillSB, feeA))
	credit(feePool, trade.TokenB, feeA)

	slotA.Data.Add(slotA.Data, trade.FillSA)
	slotB.Data.Add(slotB.Data, trade.FillSB)

	p.blockFee.Add(p.blockFee, feeA)
	p.blockFee.Add(p.blockFee, feeB)

	trade.Exchange = p.state.Exchange
	trade.BlockIdx = p.blockIdx
	trade.RequestIdx = p.nextRequestIdx()
	p.append(trade)
	p.log.Info("applied spot trade",
		"accountIdA", trade.AccountIDA,
		"accountIdB", trade.AccountIDB,
		"fillSA", trade.FillSA.String(),
		"fillSB", trade.FillSB.String())
	return nil
}

// ApplyOffchainWithdrawal debits the withdrawn amount and the relayer fee
// and bumps the account nonce.
func (p *Processor) ApplyOffchainWithdrawal(withdrawal *types.OffchainWithdrawal) error {
	account := p.state.GetAccount(withdrawal.AccountID)
	fee := bigOrZero(withdrawal.Fee)
	if withdrawal.Amount.Sign() < 0 || fee.Sign() < 0 {
		return p.fail(types.KindOffchainWithdrawal, fmt.Errorf("amount and fee must be non-negative"))
	}
	if err := checkCovers(account, withdrawal.TokenID, withdrawal.Amount, withdrawal.FeeTokenID, fee); err != nil {
		return p.fail(types.KindOffchainWithdrawal, err)
	}
	debit(account, withdrawal.TokenID, withdrawal.Amount)
	p.payFee(account, withdrawal.FeeTokenID, fee)
	account.Nonce++

	withdrawal.Exchange = p.state.Exchange
	withdrawal.BlockIdx = p.blockIdx
	withdrawal.RequestIdx = p.nextRequestIdx()
	p.append(withdrawal)
	p.log.Info("applied offchain withdrawal",
		"accountId", withdrawal.AccountID,
		"tokenId", withdrawal.TokenID,
		"amount", withdrawal.Amount.String())
	return nil
}

// ApplyCancellation voids the order's storage slot so any later fill against
// the same storage ID fails replay detection.
func (p *Processor) ApplyCancellation(cancellation *types.OrderCancellation) error {
	account := p.state.GetAccount(cancellation.AccountID)
	slot := account.GetStorage(cancellation.OrderID)
	if slot.StorageID > cancellation.OrderID {
		return p.fail(types.KindOrderCancellation, errors.ErrStorageReplay)
	}
	fee := bigOrZero(cancellation.Fee)
	if fee.Sign() < 0 {
		return p.fail(types.KindOrderCancellation, fmt.Errorf("fee must be non-negative"))
	}
	if account.GetBalance(cancellation.FeeTokenID).Balance.Cmp(fee) < 0 {
		return p.fail(types.KindOrderCancellation, errors.ErrInsufficientBalance)
	}
	p.payFee(account, cancellation.FeeTokenID, fee)
	if slot.StorageID < cancellation.OrderID {
		resetSlot(slot, cancellation.OrderID, cancellation.OrderTokenID, 0)
	}
	slot.Cancelled = true
	account.Nonce++

	cancellation.Exchange = p.state.Exchange
	cancellation.BlockIdx = p.blockIdx
	cancellation.RequestIdx = p.nextRequestIdx()
	p.append(cancellation)
	p.log.Info("applied cancellation",
		"accountId", cancellation.AccountID,
		"orderId", cancellation.OrderID)
	return nil
}

// ApplyTransfer moves balance between two accounts and bumps the sender
// nonce.
func (p *Processor) ApplyTransfer(transfer *types.InternalTransfer) error {
	if transfer.Amount.Sign() < 0 {
		return p.fail(types.KindInternalTransfer, fmt.Errorf("transfer amount must be non-negative"))
	}
	from := p.state.GetAccount(transfer.FromAccountID)
	to := p.state.GetAccount(transfer.ToAccountID)

	fee := bigOrZero(transfer.Fee)
	if fee.Sign() < 0 {
		return p.fail(types.KindInternalTransfer, fmt.Errorf("fee must be non-negative"))
	}
	if err := checkCovers(from, transfer.TokenID, transfer.Amount, transfer.FeeTokenID, fee); err != nil {
		return p.fail(types.KindInternalTransfer, err)
	}
	debit(from, transfer.TokenID, transfer.Amount)
	credit(to, transfer.TokenID, transfer.Amount)
	p.payFee(from, transfer.FeeTokenID, fee)
	from.Nonce++

	transfer.Exchange = p.state.Exchange
	transfer.BlockIdx = p.blockIdx
	transfer.RequestIdx = p.nextRequestIdx()
	p.append(transfer)
	p.log.Info("applied transfer",
		"fromAccountId", transfer.FromAccountID,
		"toAccountId", transfer.ToAccountID,
		"tokenId", transfer.TokenID,
		"amount", transfer.Amount.String())
	return nil
}

// SetProtocolFees records new taker/maker protocol fee rates. The policy
// choosing the rates is external; this core stores the two values and logs
// the change as a processed request.
func (p *Processor) SetProtocolFees(takerFeeBips, makerFeeBips uint8) *types.ProtocolFees {
	record := &types.ProtocolFees{
		Exchange:             p.state.Exchange,
		BlockIdx:             p.blockIdx,
		RequestIdx:           p.nextRequestIdx(),
		TakerFeeBips:         takerFeeBips,
		MakerFeeBips:         makerFeeBips,
		PreviousTakerFeeBips: p.takerFeeBips,
		PreviousMakerFeeBips: p.makerFeeBips,
	}
	p.takerFeeBips = takerFeeBips
	p.makerFeeBips = makerFeeBips
	p.append(record)
	return record
}

// ProtocolFees returns the fee rates currently in effect.
func (p *Processor) ProtocolFees() (takerFeeBips, makerFeeBips uint8) {
	return p.takerFeeBips, p.makerFeeBips
}

// CommitParams carries the chain-facing fields of a block commitment.
type CommitParams struct {
	Operator        common.Address
	Origin          common.Address
	Timestamp       uint64
	BlockVersion    uint8
	Data            []byte
	OffchainData    []byte
	TransactionHash common.Hash
}

// CommitBlock seals the pending requests into a block: it recomputes the
// Merkle roots over the mutated state, fixes the running request total, and
// appends the block to the committed sequence.
func (p *Processor) CommitBlock(params CommitParams) (*types.Block, error) {
	if len(p.pending) == 0 {
		return nil, errors.ErrEmptyBlock
	}
	merkleRoot, err := p.acc.AccountRoot(p.state)
	if err != nil {
		return nil, fmt.Errorf("commit block %d: %w", p.blockIdx, err)
	}
	assetRoot, err := p.acc.AssetRoot(p.state)
	if err != nil {
		return nil, fmt.Errorf("commit block %d: %w", p.blockIdx, err)
	}

	num := uint64(len(p.pending))
	p.totalProcessed += num
	block := &types.Block{
		BlockIdx:                  p.blockIdx,
		BlockType:                 blockTypeOf(p.pending),
		BlockSize:                 uint16(num),
		BlockVersion:              params.BlockVersion,
		Data:                      params.Data,
		OffchainData:              params.OffchainData,
		Operator:                  params.Operator,
		Origin:                    params.Origin,
		BlockFee:                  new(big.Int).Set(p.blockFee),
		MerkleRoot:                merkleRoot,
		MerkleAssetRoot:           assetRoot,
		Timestamp:                 params.Timestamp,
		NumRequestsProcessed:      num,
		TotalNumRequestsProcessed: p.totalProcessed,
		TransactionHash:           params.TransactionHash,
	}
	p.blocks = append(p.blocks, block)
	p.pending = p.pending[:0]
	p.blockFee.SetInt64(0)
	p.blockIdx++
	p.requestIdx = 0

	if p.metrics != nil {
		p.metrics.Blocks.Inc()
		p.metrics.Accounts.Set(float64(len(p.state.Accounts)))
	}
	p.log.Info("committed block",
		"blockIdx", block.BlockIdx,
		"numRequests", num,
		"totalRequests", p.totalProcessed,
		"merkleRoot", merkleRoot.Hex())
	return block, nil
}

// checkOrderSlot applies the storage replay rule for an order without
// touching the slot: the stored storage ID, never the address, decides
// validity. An equal ID continues an existing fill, a lower stored ID marks
// the slot recyclable, and a higher one means the slot was already consumed
// by a newer order.
func checkOrderSlot(slot *state.StorageLeaf, orderID uint64) error {
	switch {
	case slot.StorageID == orderID:
		if slot.Cancelled {
			return errors.ErrOrderCancelled
		}
	case slot.StorageID > orderID:
		return errors.ErrStorageReplay
	}
	return nil
}

func resetSlot(slot *state.StorageLeaf, storageID uint64, tokenS, tokenB uint32) {
	slot.StorageID = storageID
	slot.Data.SetInt64(0)
	slot.GasFee.SetInt64(0)
	slot.Cancelled = false
	slot.TokenSID = tokenS
	slot.TokenBID = tokenB
	slot.Forward = true
}

// checkCovers verifies the account can pay both the amount and the fee,
// including when the two draw on the same token.
func checkCovers(account *state.AccountLeaf, tokenID uint32, amount *big.Int, feeTokenID uint32, fee *big.Int) error {
	if feeTokenID == tokenID {
		need := new(big.Int).Add(amount, fee)
		if account.GetBalance(tokenID).Balance.Cmp(need) < 0 {
			return errors.ErrInsufficientBalance
		}
		return nil
	}
	if account.GetBalance(tokenID).Balance.Cmp(amount) < 0 {
		return errors.ErrInsufficientBalance
	}
	if account.GetBalance(feeTokenID).Balance.Cmp(fee) < 0 {
		return errors.ErrInsufficientBalance
	}
	return nil
}

// payFee moves an already-validated fee from the account to the fee pool
// and accrues it into the pending block fee.
func (p *Processor) payFee(account *state.AccountLeaf, feeTokenID uint32, fee *big.Int) {
	if fee.Sign() == 0 {
		return
	}
	debit(account, feeTokenID, fee)
	credit(p.state.GetAccount(state.FeePoolAccountID), feeTokenID, fee)
	p.blockFee.Add(p.blockFee, fee)
}

func credit(account *state.AccountLeaf, tokenID uint32, amount *big.Int) {
	leaf := account.GetBalance(tokenID)
	leaf.Balance.Add(leaf.Balance, amount)
}

func debit(account *state.AccountLeaf, tokenID uint32, amount *big.Int) {
	leaf := account.GetBalance(tokenID)
	leaf.Balance.Sub(leaf.Balance, amount)
}

// fail counts a rejected request and passes the error through.
func (p *Processor) fail(kind types.RequestKind, err error) error {
	if p.metrics != nil {
		p.metrics.RequestFailures.WithLabelValues(kind.String()).Inc()
	}
	return err
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (p *Processor) nextRequestIdx() uint64 {
	idx := p.requestIdx
	p.requestIdx++
	return idx
}

// stampPending fills the optional position fields of an intake record
// exactly once, when it enters the pending block.
func (p *Processor) stampPending(blockIdx, requestIdx **uint64) {
	b := p.blockIdx
	r := p.nextRequestIdx()
	*blockIdx = &b
	*requestIdx = &r
}

func (p *Processor) append(req types.ProcessedRequest) {
	p.state.AppendProcessed(req)
	p.pending = append(p.pending, req)
	if p.metrics != nil {
		p.metrics.Requests.WithLabelValues(req.Kind().String()).Inc()
	}
}

func (p *Processor) gaugePendingDeposits() {
	if p.metrics == nil {
		return
	}
	pending := 0
	for _, deposit := range p.state.Deposits {
		if deposit.Pending() {
			pending++
		}
	}
	p.metrics.PendingDeposits.Set(float64(pending))
}

func blockTypeOf(pending []types.ProcessedRequest) types.BlockType {
	kind := pending[0].Kind()
	for _, req := range pending[1:] {
		if req.Kind() != kind {
			return types.BlockTypeSettlement
		}
	}
	switch kind {
	case types.KindDeposit:
		return types.BlockTypeDeposit
	case types.KindOnchainWithdrawal:
		return types.BlockTypeOnchainWithdrawal
	case types.KindOffchainWithdrawal:
		return types.BlockTypeOffchainWithdrawal
	case types.KindOrderCancellation:
		return types.BlockTypeOrderCancellation
	case types.KindInternalTransfer:
		return types.BlockTypeInternalTransfer
	default:
		return types.BlockTypeSettlement
	}
}
