package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.toml")
	cfg, err := Load(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default file must be written")
	require.Equal(t, "127.0.0.1:8645", cfg.ListenAddress)
	require.Equal(t, uint32(250), cfg.FeeRateBps)
	require.Equal(t, int64(604800), cfg.GracePeriodSeconds)

	collector, err := cfg.FeeCollectorAddress()
	require.NoError(t, err)
	require.NotEqual(t, [20]byte{}, collector)
	vault, err := cfg.Vault()
	require.NoError(t, err)
	require.NotEqual(t, [20]byte{}, vault)
}

func TestLoadRejectsBadFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "fee rate above cap",
			body: `DataDir = "./d"
FeeRateBps = 600
FeeCollector = "0x00000000000000000000000000000000000000fc"
VaultAddress = "0x00000000000000000000000000000000000000ee"`,
		},
		{
			name: "null fee collector",
			body: `DataDir = "./d"
FeeCollector = "0x0000000000000000000000000000000000000000"
VaultAddress = "0x00000000000000000000000000000000000000ee"`,
		},
		{
			name: "malformed arbiter",
			body: `DataDir = "./d"
FeeCollector = "0x00000000000000000000000000000000000000fc"
VaultAddress = "0x00000000000000000000000000000000000000ee"
Arbiters = ["not-an-address"]`,
		},
		{
			name: "unknown field",
			body: `DataDir = "./d"
FeeCollector = "0x00000000000000000000000000000000000000fc"
VaultAddress = "0x00000000000000000000000000000000000000ee"
LegacyField = true`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "custody.toml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &Config{
		DataDir:      "./data",
		FeeCollector: "0x00000000000000000000000000000000000000fc",
		VaultAddress: "0x00000000000000000000000000000000000000ee",
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "127.0.0.1:8645", cfg.ListenAddress)
	require.Equal(t, filepath.Join("./data", "audit.db"), cfg.AuditDBPath)
	require.Equal(t, 25.0, cfg.RateLimitPerSec)
	require.Equal(t, 50, cfg.RateLimitBurst)
}
