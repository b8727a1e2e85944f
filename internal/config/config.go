// Package config loads the exchange daemon's runtime configuration from
// environment variables and an optional .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Chain describes one supported chain's signature-verification policy.
type Chain struct {
	ID              string
	Scheme          string // "ed25519", "secp256k1", or "trust"
	TrustWithoutVerify bool
}

// Config is the exchange daemon's full runtime configuration.
type Config struct {
	ListenAddr      string
	DataDir         string
	TxLogPath       string
	AdmissionDeadline time.Duration
	SettlementDeadline time.Duration
	Chains          []Chain
}

// Default returns the built-in defaults used when no environment override
// is present.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		DataDir:            "data/exchange",
		TxLogPath:          "data/transactions.log",
		AdmissionDeadline:  2 * time.Second,
		SettlementDeadline: 10 * time.Second,
		Chains: []Chain{
			{ID: "solana", Scheme: "ed25519"},
			{ID: "cosmoshub", Scheme: "secp256k1"},
			{ID: "devnet", Scheme: "trust", TrustWithoutVerify: true},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("EXCHANGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("EXCHANGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EXCHANGE_TX_LOG"); v != "" {
		cfg.TxLogPath = v
	}
	if v := os.Getenv("EXCHANGE_ADMISSION_DEADLINE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.AdmissionDeadline = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("EXCHANGE_SETTLEMENT_DEADLINE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.SettlementDeadline = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("EXCHANGE_DEVNET_TRUST"); v != "" {
		trust := v == "true"
		for i := range cfg.Chains {
			if cfg.Chains[i].ID == "devnet" {
				cfg.Chains[i].TrustWithoutVerify = trust
			}
		}
	}

	return cfg
}
