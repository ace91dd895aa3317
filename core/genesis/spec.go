package genesis

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StateSpec is the YAML snapshot of an exchange state: tokens, accounts, and
// their leaf maps. It is both the genesis format and the recovery format a
// running daemon dumps on shutdown.
type StateSpec struct {
	Exchange     string        `yaml:"exchange"`
	StorageDepth uint          `yaml:"storageDepth,omitempty"`
	Tokens       []TokenSpec   `yaml:"tokens,omitempty"`
	Accounts     []AccountSpec `yaml:"accounts,omitempty"`
}

type TokenSpec struct {
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

type AccountSpec struct {
	AccountID        uint32            `yaml:"accountId"`
	Owner            string            `yaml:"owner,omitempty"`
	PublicKeyX       string            `yaml:"publicKeyX,omitempty"`
	PublicKeyY       string            `yaml:"publicKeyY,omitempty"`
	AppKeyPublicKeyX string            `yaml:"appKeyPublicKeyX,omitempty"`
	AppKeyPublicKeyY string            `yaml:"appKeyPublicKeyY,omitempty"`
	Nonce            uint64            `yaml:"nonce,omitempty"`
	Balances         map[uint32]string `yaml:"balances,omitempty"`
	Storage          []StorageSpec     `yaml:"storage,omitempty"`
}

// StorageSpec carries a slot by its full storage ID; the physical address is
// derived during hydration with the configured depth.
type StorageSpec struct {
	StorageID uint64 `yaml:"storageId"`
	Data      string `yaml:"data,omitempty"`
	GasFee    string `yaml:"gasFee,omitempty"`
	Cancelled bool   `yaml:"cancelled,omitempty"`
	TokenSID  uint32 `yaml:"tokenSId,omitempty"`
	TokenBID  uint32 `yaml:"tokenBId,omitempty"`
	Forward   *bool  `yaml:"forward,omitempty"`
}

// LoadSpec reads and parses a snapshot file.
func LoadSpec(path string) (*StateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	spec := new(StateSpec)
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return spec, nil
}

// SaveSpec writes a snapshot file.
func SaveSpec(path string, spec *StateSpec) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid decimal amount %q", field, raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: negative amount %q", field, raw)
	}
	return amount, nil
}
