package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Protocol carries the constants shared between the state core and the
// Merkle collaborator. StorageDepth fixes the per-account storage sub-tree
// depth and therefore the slot addressing range; both sides must read it
// from this one field, a mismatch silently corrupts the address mapping.
type Protocol struct {
	StorageDepth uint  `toml:"StorageDepth"`
	TakerFeeBips uint8 `toml:"TakerFeeBips"`
	MakerFeeBips uint8 `toml:"MakerFeeBips"`
}

type Config struct {
	ListenAddress string   `toml:"ListenAddress"`
	DataDir       string   `toml:"DataDir"`
	GenesisFile   string   `toml:"GenesisFile"`
	JournalFile   string   `toml:"JournalFile"`
	LogFile       string   `toml:"LogFile"`
	NetworkName   string   `toml:"NetworkName"`
	Exchange      string   `toml:"Exchange"`
	Protocol      Protocol `toml:"Protocol"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "TreeDepth" {
			return nil, fmt.Errorf("config file %s uses deprecated TreeDepth field; rename it to Protocol.StorageDepth", path)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "zkex-local"
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":9464"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./zkex-data"
	}
	if cfg.Protocol.StorageDepth == 0 {
		cfg.Protocol.StorageDepth = 14
	}
}

// Validate rejects configurations the state core cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Protocol.StorageDepth > 32 {
		return fmt.Errorf("protocol: StorageDepth %d exceeds 32", cfg.Protocol.StorageDepth)
	}
	if exchange := strings.TrimSpace(cfg.Exchange); exchange != "" && !common.IsHexAddress(exchange) {
		return fmt.Errorf("exchange: %q is not a hex address", exchange)
	}
	return nil
}

// ExchangeAddress returns the configured exchange contract address, or the
// zero address when unset.
func (cfg *Config) ExchangeAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(cfg.Exchange))
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
