package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lyxmarket/crypto"
)

// Config carries the construction-time settings of the marketplace daemon.
type Config struct {
	RPCAddress         string `toml:"RPCAddress"`
	DataDir            string `toml:"DataDir"`
	Env                string `toml:"Env"`
	FeeRecipient       string `toml:"FeeRecipient"`
	FeeBps             uint32 `toml:"FeeBps"`
	Operator           string `toml:"Operator"`
	ConfirmTimeoutSecs int64  `toml:"ConfirmTimeoutSecs"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8546"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./marketdata"
	}
	if cfg.ConfirmTimeoutSecs == 0 {
		cfg.ConfirmTimeoutSecs = 7 * 24 * 60 * 60
	}
}

// Validate checks address fields and rate bounds.
func (c *Config) Validate() error {
	if c.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps must not exceed 10000, got %d", c.FeeBps)
	}
	if c.ConfirmTimeoutSecs <= 0 {
		return fmt.Errorf("config: ConfirmTimeoutSecs must be positive")
	}
	if strings.TrimSpace(c.FeeRecipient) != "" {
		if _, err := crypto.DecodeAddress(c.FeeRecipient); err != nil {
			return fmt.Errorf("config: invalid FeeRecipient: %w", err)
		}
	} else if c.FeeBps > 0 {
		return fmt.Errorf("config: FeeBps set but FeeRecipient empty")
	}
	if strings.TrimSpace(c.Operator) != "" {
		if _, err := crypto.DecodeAddress(c.Operator); err != nil {
			return fmt.Errorf("config: invalid Operator: %w", err)
		}
	}
	return nil
}

// FeeRecipientBytes decodes the configured fee recipient address.
func (c *Config) FeeRecipientBytes() ([20]byte, error) {
	return decodeAddr(c.FeeRecipient)
}

// OperatorBytes decodes the configured dispute operator address.
func (c *Config) OperatorBytes() ([20]byte, error) {
	return decodeAddr(c.Operator)
}

func decodeAddr(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
