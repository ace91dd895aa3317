package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint(14), cfg.Protocol.StorageDepth)
	require.Equal(t, "zkex-local", cfg.NetworkName)

	// The default file is written out and loads back identically.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("NetworkName = \"testnet\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.NetworkName)
	require.Equal(t, uint(14), cfg.Protocol.StorageDepth)
	require.Equal(t, ":9464", cfg.ListenAddress)
}

func TestLoadRejectsDeprecatedField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("TreeDepth = 14\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "deprecated TreeDepth")
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	cfg.Protocol.StorageDepth = 40
	require.ErrorContains(t, cfg.Validate(), "StorageDepth")

	cfg.Protocol.StorageDepth = 14
	cfg.Exchange = "not-an-address"
	require.ErrorContains(t, cfg.Validate(), "hex address")

	cfg.Exchange = "0x00000000000000000000000000000000000000EC"
	require.NoError(t, cfg.Validate())
	require.NotEqual(t, common.Address{}, cfg.ExchangeAddress())
}
