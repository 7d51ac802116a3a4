package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// VaultConfig fixes the vault a simulation runs against.
type VaultConfig struct {
	FeeBps       uint16
	Token0       string
	Token1       string
	Factory      string
	VaultAddress string
	ChainID      uint64
}

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Vault      VaultConfig
	StartBlock uint64
	Out        string
	LogLevel   string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"fee-bps":     30,
		"token0":      "0x00000000000000000000000000000000000000a0",
		"token1":      "0x00000000000000000000000000000000000000b1",
		"factory":     "0x00000000000000000000000000000000000fac70",
		"chain-id":    uint64(1337),
		"start-block": uint64(1),
		"out":         "./data/sim_logs.jsonl",
		"log-level":   "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	fee := v.GetUint("fee-bps")
	if fee > 100 {
		return SimulateConfig{}, fmt.Errorf("fee-bps %d exceeds 100", fee)
	}

	cfg := SimulateConfig{
		Vault: VaultConfig{
			FeeBps:       uint16(fee),
			Token0:       v.GetString("token0"),
			Token1:       v.GetString("token1"),
			Factory:      v.GetString("factory"),
			VaultAddress: v.GetString("vault-address"),
			ChainID:      v.GetUint64("chain-id"),
		},
		StartBlock: v.GetUint64("start-block"),
		Out:        v.GetString("out"),
		LogLevel:   v.GetString("log-level"),
	}
	for name, addr := range map[string]string{"token0": cfg.Vault.Token0, "token1": cfg.Vault.Token1, "factory": cfg.Vault.Factory} {
		if !common.IsHexAddress(addr) {
			return SimulateConfig{}, fmt.Errorf("invalid %s address: %q", name, addr)
		}
	}
	if cfg.Vault.VaultAddress != "" && !common.IsHexAddress(cfg.Vault.VaultAddress) {
		return SimulateConfig{}, fmt.Errorf("invalid vault-address: %q", cfg.Vault.VaultAddress)
	}
	return cfg, nil
}

// SignConfig holds configuration for the sign command.
type SignConfig struct {
	Key          string
	SellToken    string
	BuyToken     string
	SellAmount   string
	MinBuyAmount string
	ValidTo      uint32
	LogLevel     string
}

// LoadSign merges config file, environment variables, and flags into SignConfig.
// The private key is best passed as VAULT_KEY rather than a flag.
func LoadSign(cfgFile string, flags *pflag.FlagSet) (SignConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"min-buy":   "0",
		"log-level": "info",
	})
	if err != nil {
		return SignConfig{}, err
	}

	validTo, err := ParseValidTo(v.GetString("valid-to"), time.Now())
	if err != nil {
		return SignConfig{}, fmt.Errorf("parse valid-to: %w", err)
	}

	return SignConfig{
		Key:          strings.TrimPrefix(v.GetString("key"), "0x"),
		SellToken:    v.GetString("sell-token"),
		BuyToken:     v.GetString("buy-token"),
		SellAmount:   v.GetString("sell-amount"),
		MinBuyAmount: v.GetString("min-buy"),
		ValidTo:      validTo,
		LogLevel:     v.GetString("log-level"),
	}, nil
}

// ParseValidTo accepts unix seconds, an RFC3339 time, or a duration relative
// to now such as "10m". Empty means ten minutes from now.
func ParseValidTo(input string, now time.Time) (uint32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		input = "10m"
	}

	var ts int64
	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 32)
		if err != nil {
			return 0, err
		}
		return uint32(val), nil
	} else if d, err := time.ParseDuration(input); err == nil {
		ts = now.Add(d).Unix()
	} else {
		tm, err := time.Parse(time.RFC3339, input)
		if err != nil {
			return 0, err
		}
		ts = tm.Unix()
	}
	if ts < 0 || ts > int64(^uint32(0)) {
		return 0, fmt.Errorf("timestamp %d out of range", ts)
	}
	return uint32(ts), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
