package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	RPCURL       string
	Block        uint64
	MintA        common.Address
	MintB        common.Address
	ReserveA     common.Address
	ReserveB     common.Address
	PoolMint     common.Address
	FeeNum       uint64
	FeeDenom     uint64
	TipNum       uint64
	TipDenom     uint64
	AmountIn     uint64
	AmountA      uint64
	AmountB      uint64
	Burn         uint64
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"fee-num":       uint64(1),
		"fee-denom":     uint64(1),
		"tip-num":       uint64(0),
		"tip-denom":     uint64(1),
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		RPCURL:       v.GetString("rpc"),
		Block:        v.GetUint64("block"),
		FeeNum:       v.GetUint64("fee-num"),
		FeeDenom:     v.GetUint64("fee-denom"),
		TipNum:       v.GetUint64("tip-num"),
		TipDenom:     v.GetUint64("tip-denom"),
		AmountIn:     v.GetUint64("amount-in"),
		AmountA:      v.GetUint64("amount-a"),
		AmountB:      v.GetUint64("amount-b"),
		Burn:         v.GetUint64("burn"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	addresses := []struct {
		key string
		dst *common.Address
	}{
		{"mint-a", &cfg.MintA},
		{"mint-b", &cfg.MintB},
		{"reserve-a", &cfg.ReserveA},
		{"reserve-b", &cfg.ReserveB},
		{"pool-mint", &cfg.PoolMint},
	}
	for _, a := range addresses {
		addr, err := ParseAddress(v.GetString(a.key))
		if err != nil {
			return QuoteConfig{}, fmt.Errorf("%s: %w", a.key, err)
		}
		*a.dst = addr
	}

	return cfg, nil
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("address is required")
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}
