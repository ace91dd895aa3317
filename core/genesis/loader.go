package genesis

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"zkex/core/state"
)

// BuildState hydrates an ExchangeState from a snapshot. Accounts are created
// through the state's own lazy extension and hydrated in place, so account
// IDs keep their construction-time identity and the fee-pool account exists
// even for an empty spec.
func BuildState(spec *StateSpec) (*state.ExchangeState, error) {
	if spec == nil {
		return nil, fmt.Errorf("state spec must not be nil")
	}
	if spec.Exchange != "" && !common.IsHexAddress(spec.Exchange) {
		return nil, fmt.Errorf("exchange: %q is not a hex address", spec.Exchange)
	}
	st := state.NewExchangeState(common.HexToAddress(spec.Exchange), spec.StorageDepth)

	for i, tokenSpec := range spec.Tokens {
		if !common.IsHexAddress(tokenSpec.Address) && tokenSpec.Address != "" {
			return nil, fmt.Errorf("token %d: %q is not a hex address", i, tokenSpec.Address)
		}
		token, err := st.RegisterToken(common.HexToAddress(tokenSpec.Address))
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		token.Enabled = tokenSpec.Enabled
	}

	for _, accountSpec := range spec.Accounts {
		if err := hydrateAccount(st, accountSpec); err != nil {
			return nil, fmt.Errorf("account %d: %w", accountSpec.AccountID, err)
		}
	}
	return st, nil
}

func hydrateAccount(st *state.ExchangeState, spec AccountSpec) error {
	account := st.GetAccount(spec.AccountID)

	balances := make(map[uint32]*state.BalanceLeaf, len(spec.Balances))
	for tokenID, raw := range spec.Balances {
		amount, err := parseAmount(fmt.Sprintf("balance[%d]", tokenID), raw)
		if err != nil {
			return err
		}
		balances[tokenID] = &state.BalanceLeaf{Balance: amount}
	}

	storage := make(map[uint64]*state.StorageLeaf, len(spec.Storage))
	for i, slotSpec := range spec.Storage {
		data, err := parseAmount(fmt.Sprintf("storage[%d].data", i), slotSpec.Data)
		if err != nil {
			return err
		}
		gasFee, err := parseAmount(fmt.Sprintf("storage[%d].gasFee", i), slotSpec.GasFee)
		if err != nil {
			return err
		}
		slot := state.NewStorageLeaf()
		slot.StorageID = slotSpec.StorageID
		slot.Data = data
		slot.GasFee = gasFee
		slot.Cancelled = slotSpec.Cancelled
		slot.TokenSID = slotSpec.TokenSID
		slot.TokenBID = slotSpec.TokenBID
		if slotSpec.Forward != nil {
			slot.Forward = *slotSpec.Forward
		}
		address := state.StorageAddress(slotSpec.StorageID, account.StorageDepth())
		if _, dup := storage[address]; dup {
			return fmt.Errorf("storage[%d]: address collision at slot %d", i, address)
		}
		storage[address] = slot
	}

	account.Hydrate(
		common.HexToAddress(spec.Owner),
		spec.PublicKeyX, spec.PublicKeyY,
		spec.AppKeyPublicKeyX, spec.AppKeyPublicKeyY,
		spec.Nonce,
		balances, storage,
	)
	if account.Registered() {
		// Hydrate bypasses RegisterOwner, so rebuild the indices here. The
		// owner/account binding must stay a bijection.
		if existing, taken := st.OwnerToAccountID[account.Owner]; taken && existing != spec.AccountID {
			return fmt.Errorf("owner %s already bound to account %d", account.Owner.Hex(), existing)
		}
		st.AccountIDToOwner[spec.AccountID] = account.Owner
		st.OwnerToAccountID[account.Owner] = spec.AccountID
	}
	return nil
}

// DumpState captures the current state as a snapshot spec. Zero accounts and
// zero leaves are omitted; they rehydrate implicitly.
func DumpState(st *state.ExchangeState) *StateSpec {
	spec := &StateSpec{
		Exchange:     st.Exchange.Hex(),
		StorageDepth: st.StorageDepth(),
	}
	for _, token := range st.Tokens {
		spec.Tokens = append(spec.Tokens, TokenSpec{
			Address: token.Address.Hex(),
			Enabled: token.Enabled,
		})
	}
	for _, account := range st.Accounts {
		if account.IsZero() {
			continue
		}
		accountSpec := AccountSpec{
			AccountID:        account.AccountID,
			PublicKeyX:       account.PublicKeyX,
			PublicKeyY:       account.PublicKeyY,
			AppKeyPublicKeyX: account.AppKeyPublicKeyX,
			AppKeyPublicKeyY: account.AppKeyPublicKeyY,
			Nonce:            account.Nonce,
		}
		if account.Registered() {
			accountSpec.Owner = account.Owner.Hex()
		}
		for tokenID, leaf := range account.Balances {
			if leaf.IsZero() {
				continue
			}
			if accountSpec.Balances == nil {
				accountSpec.Balances = make(map[uint32]string)
			}
			accountSpec.Balances[tokenID] = leaf.Balance.String()
		}
		addresses := make([]uint64, 0, len(account.Storage))
		for address, leaf := range account.Storage {
			if leaf.IsZero() {
				continue
			}
			addresses = append(addresses, address)
		}
		sort.Slice(addresses, func(i, j int) bool { return addresses[i] < addresses[j] })
		for _, address := range addresses {
			leaf := account.Storage[address]
			forward := leaf.Forward
			accountSpec.Storage = append(accountSpec.Storage, StorageSpec{
				StorageID: leaf.StorageID,
				Data:      leaf.Data.String(),
				GasFee:    leaf.GasFee.String(),
				Cancelled: leaf.Cancelled,
				TokenSID:  leaf.TokenSID,
				TokenBID:  leaf.TokenBID,
				Forward:   &forward,
			})
		}
		spec.Accounts = append(spec.Accounts, accountSpec)
	}
	return spec
}
