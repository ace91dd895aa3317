package state

import (
	"github.com/ethereum/go-ethereum/common"

	"zkex/core/errors"
	"zkex/core/types"
)

// FeePoolAccountID is the reserved account accumulating protocol fees. It is
// created implicitly at state construction and always present.
const FeePoolAccountID uint32 = 0

// ExchangeState is the authoritative in-memory state of one exchange: the
// dense account array (account ID = array index), the owner/ID indices, the
// pending on-chain request queues, and the append-only processed-request
// log. It exclusively owns all of them.
//
// The state is single-writer, sequential-apply: exactly one goroutine may
// mutate it, in block/request order. Parallel validators must work on a
// Snapshot.
type ExchangeState struct {
	Exchange common.Address

	Accounts []*AccountLeaf

	AccountIDToOwner map[uint32]common.Address
	OwnerToAccountID map[common.Address]uint32

	Tokens []*types.Token

	Deposits           []*types.Deposit
	OnchainWithdrawals []*types.OnchainWithdrawal
	ProcessedRequests  []types.ProcessedRequest

	storageDepth uint
}

// NewExchangeState constructs the state for an exchange. The protocol
// fee-pool account (ID 0) exists before the constructor returns.
func NewExchangeState(exchange common.Address, storageDepth uint) *ExchangeState {
	if storageDepth == 0 {
		storageDepth = DefaultStorageDepth
	}
	s := &ExchangeState{
		Exchange:         exchange,
		AccountIDToOwner: make(map[uint32]common.Address),
		OwnerToAccountID: make(map[common.Address]uint32),
		storageDepth:     storageDepth,
	}
	s.GetAccount(FeePoolAccountID)
	return s
}

// GetAccount returns the account with the given ID, extending the account
// array with fresh zero-valued accounts up to and including the ID when
// needed. The extension is idempotent and never reorders or replaces
// existing accounts, so two calls with the same ID return the identical
// account object.
func (s *ExchangeState) GetAccount(accountID uint32) *AccountLeaf {
	for uint32(len(s.Accounts)) <= accountID {
		s.Accounts = append(s.Accounts, NewAccountLeaf(s.Exchange, uint32(len(s.Accounts)), s.storageDepth))
	}
	return s.Accounts[accountID]
}

// RegisterOwner binds an owner address to an account. The binding is set
// exactly once per account and per owner; the two indices stay an exact
// bijection over registered accounts.
func (s *ExchangeState) RegisterOwner(accountID uint32, owner common.Address) error {
	if owner == (common.Address{}) {
		return errors.ErrZeroOwner
	}
	account := s.GetAccount(accountID)
	if account.Registered() {
		if account.Owner == owner {
			return nil
		}
		return errors.ErrOwnerRegistered
	}
	if _, taken := s.OwnerToAccountID[owner]; taken {
		return errors.ErrOwnerRegistered
	}
	account.Owner = owner
	s.AccountIDToOwner[accountID] = owner
	s.OwnerToAccountID[owner] = accountID
	return nil
}

// AccountByOwner resolves a registered owner to its account.
func (s *ExchangeState) AccountByOwner(owner common.Address) (*AccountLeaf, error) {
	accountID, ok := s.OwnerToAccountID[owner]
	if !ok {
		return nil, errors.ErrAccountUnregistered
	}
	return s.GetAccount(accountID), nil
}

// RegisterToken appends a token to the registry and returns its ID. Token
// IDs are dense indices into the registry, mirroring account IDs.
func (s *ExchangeState) RegisterToken(address common.Address) (*types.Token, error) {
	for _, token := range s.Tokens {
		if token.Address == address {
			return nil, errors.ErrTokenRegistered
		}
	}
	token := &types.Token{
		Exchange: s.Exchange,
		TokenID:  uint32(len(s.Tokens)),
		Address:  address,
		Enabled:  true,
	}
	s.Tokens = append(s.Tokens, token)
	return token, nil
}

// Token returns the registered token with the given ID.
func (s *ExchangeState) Token(tokenID uint32) (*types.Token, error) {
	if uint64(tokenID) >= uint64(len(s.Tokens)) {
		return nil, errors.ErrTokenUnknown
	}
	return s.Tokens[tokenID], nil
}

// SetTokenEnabled flips the deposit flag on a registered token.
func (s *ExchangeState) SetTokenEnabled(tokenID uint32, enabled bool) error {
	token, err := s.Token(tokenID)
	if err != nil {
		return err
	}
	token.Enabled = enabled
	return nil
}

// QueueDeposit appends a deposit to the pending on-chain queue. The record
// stays unstamped until it is included in a committed block.
func (s *ExchangeState) QueueDeposit(deposit *types.Deposit) {
	s.Deposits = append(s.Deposits, deposit)
}

// QueueOnchainWithdrawal appends a forced withdrawal to the pending queue
// and assigns its withdrawal index.
func (s *ExchangeState) QueueOnchainWithdrawal(withdrawal *types.OnchainWithdrawal) {
	withdrawal.WithdrawalIdx = uint64(len(s.OnchainWithdrawals))
	s.OnchainWithdrawals = append(s.OnchainWithdrawals, withdrawal)
}

// AppendProcessed appends a result record to the processed-request log.
// Records are immutable once appended; append order is processing order.
func (s *ExchangeState) AppendProcessed(req types.ProcessedRequest) {
	s.ProcessedRequests = append(s.ProcessedRequests, req)
}

// StorageDepth returns the storage sub-tree depth shared by every account.
func (s *ExchangeState) StorageDepth() uint { return s.storageDepth }

// Snapshot returns a deep copy of the account state for read-only use by
// parallel validation. The processed-request log is a shared slice of
// records that are immutable once appended; the accounts, indices, and the
// pending queues (whose records stay mutable until stamped) are copied.
func (s *ExchangeState) Snapshot() *ExchangeState {
	c := &ExchangeState{
		Exchange:           s.Exchange,
		Accounts:           make([]*AccountLeaf, len(s.Accounts)),
		AccountIDToOwner:   make(map[uint32]common.Address, len(s.AccountIDToOwner)),
		OwnerToAccountID:   make(map[common.Address]uint32, len(s.OwnerToAccountID)),
		Tokens:             make([]*types.Token, len(s.Tokens)),
		Deposits:           make([]*types.Deposit, len(s.Deposits)),
		OnchainWithdrawals: make([]*types.OnchainWithdrawal, len(s.OnchainWithdrawals)),
		ProcessedRequests:  append([]types.ProcessedRequest(nil), s.ProcessedRequests...),
		storageDepth:       s.storageDepth,
	}
	for i, deposit := range s.Deposits {
		c.Deposits[i] = deposit.Clone()
	}
	for i, withdrawal := range s.OnchainWithdrawals {
		c.OnchainWithdrawals[i] = withdrawal.Clone()
	}
	for i, account := range s.Accounts {
		c.Accounts[i] = account.Clone()
	}
	for id, owner := range s.AccountIDToOwner {
		c.AccountIDToOwner[id] = owner
	}
	for owner, id := range s.OwnerToAccountID {
		c.OwnerToAccountID[owner] = id
	}
	for i, token := range s.Tokens {
		copied := *token
		c.Tokens[i] = &copied
	}
	return c
}
