// Package config loads engine configuration from file and environment.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
)

var (
	ErrNoOracle    = errors.New("config: oracle address is required")
	ErrNoOperators = errors.New("config: at least one operator public key is required")
	ErrBadQuorum   = errors.New("config: quorum must be between 1 and the operator count")
	ErrBadSlippage = errors.New("config: slippage must be below 10000 basis points")
)

// Config holds every tunable of a veilswap node.
type Config struct {
	// OracleAddress is the address whose ECDSA signature authenticates
	// decryption callbacks.
	OracleAddress types.Address

	// OperatorPubkeys are the BLS public keys allowed to sign batch
	// proposals, and Quorum is how many of them must sign.
	OperatorPubkeys [][]byte
	Quorum          int

	// SlippageBps bounds the shortfall tolerated on external trades.
	SlippageBps uint64

	// AuditDir is the badger journal directory. Empty disables the journal.
	AuditDir string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// EventBuffer sizes each bus subscription's channel.
	EventBuffer int
}

// Defaults applied before file and environment values.
const (
	DefaultSlippageBps = 50
	DefaultLogLevel    = "info"
	DefaultEventBuffer = 64
)

// Load reads configuration from the named file (optional) with VEILSWAP_
// environment overrides, e.g. VEILSWAP_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VEILSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("slippage_bps", DefaultSlippageBps)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("event_buffer", DefaultEventBuffer)
	v.SetDefault("quorum", 0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		SlippageBps: v.GetUint64("slippage_bps"),
		AuditDir:    v.GetString("audit_dir"),
		LogLevel:    v.GetString("log_level"),
		EventBuffer: v.GetInt("event_buffer"),
		Quorum:      v.GetInt("quorum"),
	}

	oracleHex := v.GetString("oracle_address")
	if oracleHex != "" {
		addr, err := parseAddress(oracleHex)
		if err != nil {
			return nil, fmt.Errorf("config: oracle_address: %w", err)
		}
		cfg.OracleAddress = addr
	}

	for i, s := range v.GetStringSlice("operator_pubkeys") {
		pk, err := parseHex(s, crypto.BLSPubkeySize)
		if err != nil {
			return nil, fmt.Errorf("config: operator_pubkeys[%d]: %w", i, err)
		}
		cfg.OperatorPubkeys = append(cfg.OperatorPubkeys, pk)
	}
	// A single-operator deployment defaults to requiring that operator.
	if cfg.Quorum == 0 && len(cfg.OperatorPubkeys) > 0 {
		cfg.Quorum = len(cfg.OperatorPubkeys)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if c.OracleAddress.IsZero() {
		return ErrNoOracle
	}
	if len(c.OperatorPubkeys) == 0 {
		return ErrNoOperators
	}
	if c.Quorum < 1 || c.Quorum > len(c.OperatorPubkeys) {
		return ErrBadQuorum
	}
	if c.SlippageBps >= 10000 {
		return ErrBadSlippage
	}
	return nil
}

func parseAddress(s string) (types.Address, error) {
	b, err := parseHex(s, types.AddressLength)
	if err != nil {
		return types.Address{}, err
	}
	return types.BytesToAddress(b), nil
}

func parseHex(s string, want int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != want {
		return nil, fmt.Errorf("expected %d bytes, got %d", want, len(b))
	}
	return b, nil
}
