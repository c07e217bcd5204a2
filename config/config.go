package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"harvestmart/core/types"
	"harvestmart/native/fees"
)

// Config is the custody daemon configuration, loaded from TOML.
type Config struct {
	ListenAddress      string   `toml:"ListenAddress"`
	DataDir            string   `toml:"DataDir"`
	AuditDBPath        string   `toml:"AuditDBPath"`
	Environment        string   `toml:"Environment"`
	FeeRateBps         uint32   `toml:"FeeRateBps"`
	FeeCollector       string   `toml:"FeeCollector"`
	VaultAddress       string   `toml:"VaultAddress"`
	GracePeriodSeconds int64    `toml:"GracePeriodSeconds"`
	MarketAdmins       []string `toml:"MarketAdmins"`
	Arbiters           []string `toml:"Arbiters"`
	RateLimitPerSec    float64  `toml:"RateLimitPerSec"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`
}

const defaultConfig = `# harvestmart custody daemon configuration
ListenAddress = "127.0.0.1:8645"
DataDir = "./custody-data"
AuditDBPath = "./custody-data/audit.db"
Environment = "dev"
FeeRateBps = 250
FeeCollector = "0x00000000000000000000000000000000000000fc"
VaultAddress = "0x00000000000000000000000000000000000000ee"
GracePeriodSeconds = 604800
MarketAdmins = []
Arbiters = []
RateLimitPerSec = 25.0
RateLimitBurst = 50
`

// Load reads the configuration from the given path, creating a commented
// default file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultConfig), 0o644)
}

// Validate checks field-level invariants and fills defaults for optional
// fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if strings.TrimSpace(c.AuditDBPath) == "" {
		c.AuditDBPath = filepath.Join(c.DataDir, "audit.db")
	}
	if c.FeeRateBps > fees.MaxFeeBps {
		return fmt.Errorf("FeeRateBps %d exceeds platform cap %d", c.FeeRateBps, fees.MaxFeeBps)
	}
	if _, err := c.FeeCollectorAddress(); err != nil {
		return err
	}
	if _, err := c.Vault(); err != nil {
		return err
	}
	if _, err := c.AdminAddresses(); err != nil {
		return err
	}
	if _, err := c.ArbiterAddresses(); err != nil {
		return err
	}
	if c.GracePeriodSeconds < 0 {
		return fmt.Errorf("GracePeriodSeconds must not be negative")
	}
	if c.RateLimitPerSec <= 0 {
		c.RateLimitPerSec = 25.0
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 50
	}
	return nil
}

// FeeCollectorAddress parses the configured fee collector identity.
func (c *Config) FeeCollectorAddress() ([20]byte, error) {
	addr, err := types.ParseAddress(c.FeeCollector)
	if err != nil {
		return addr, fmt.Errorf("FeeCollector: %w", err)
	}
	if types.IsZeroAddress(addr) {
		return addr, fmt.Errorf("FeeCollector must not be the null identity")
	}
	return addr, nil
}

// Vault parses the configured custody vault identity.
func (c *Config) Vault() ([20]byte, error) {
	addr, err := types.ParseAddress(c.VaultAddress)
	if err != nil {
		return addr, fmt.Errorf("VaultAddress: %w", err)
	}
	if types.IsZeroAddress(addr) {
		return addr, fmt.Errorf("VaultAddress must not be the null identity")
	}
	return addr, nil
}

// AdminAddresses parses the market admin allow-list.
func (c *Config) AdminAddresses() ([][20]byte, error) {
	return parseAddresses("MarketAdmins", c.MarketAdmins)
}

// ArbiterAddresses parses the arbiter allow-list.
func (c *Config) ArbiterAddresses() ([][20]byte, error) {
	return parseAddresses("Arbiters", c.Arbiters)
}

func parseAddresses(field string, raw []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		addr, err := types.ParseAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, addr)
	}
	return out, nil
}
