// Package config defines the runtime configuration for the SDK: the
// fingerprint service URL, the canister gateway endpoint, ledger/registry
// canister IDs, optional IPFS archival, debug mode, and per-operation
// timeouts. It also provides validation, defaulting, and YAML file loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds all SDK settings required to initialize the fingerprint,
// ledger and registry clients. Use Validate to fill implicit defaults and to
// check for required fields.
type Config struct {
	// FingerprintURL is the base URL of the fingerprint HTTP service (required).
	FingerprintURL string `json:"fingerprint_url" yaml:"fingerprint_url"`
	// GatewayAddr is the gRPC endpoint of the canister gateway through which
	// ledger and registry calls are routed (required).
	GatewayAddr string `json:"gateway_addr" yaml:"gateway_addr"`
	// LedgerCanisterID is the textual principal of the ledger canister.
	// Default: the mainnet ledger, ryjl3-tyaaa-aaaaa-aaaba-cai.
	LedgerCanisterID string `json:"ledger_canister_id" yaml:"ledger_canister_id"`
	// RegistryCanisterID is the textual principal of the voice-NFT registry
	// canister (required).
	RegistryCanisterID string `json:"registry_canister_id" yaml:"registry_canister_id"`
	// IpfsURL is the HTTP API endpoint of an IPFS node used to archive
	// canonical fingerprints before registration. Empty disables archival.
	IpfsURL string `json:"ipfs_url" yaml:"ipfs_url"`
	// Debug enables verbose logging.
	Debug bool `json:"debug" yaml:"debug"`
	// Timeouts configures per-operation timeouts. See Timeouts.WithDefaults.
	Timeouts Timeouts `json:"timeouts" yaml:"timeouts"`
}

// MainnetLedgerCanisterID is the well-known ledger canister principal.
const MainnetLedgerCanisterID = "ryjl3-tyaaa-aaaaa-aaaba-cai"

// Timeouts controls SDK operation deadlines.
// Zero values will be replaced by sane defaults in WithDefaults.
type Timeouts struct {
	Extract     time.Duration `json:"extract" yaml:"extract"`         // fingerprint HTTP call
	LedgerRead  time.Duration `json:"ledger_read" yaml:"ledger_read"` // fee query
	Transfer    time.Duration `json:"transfer" yaml:"transfer"`       // ledger transfer
	Register    time.Duration `json:"register" yaml:"register"`       // registry update call
	Query       time.Duration `json:"query" yaml:"query"`             // registry query call
	IpfsArchive time.Duration `json:"ipfs_archive" yaml:"ipfs_archive"`
}

// Validate normalizes the configuration by applying implicit defaults for
// LedgerCanisterID and verifies that FingerprintURL, GatewayAddr and
// RegistryCanisterID are provided.
func (c *Config) Validate() error {

	if c.LedgerCanisterID == "" {
		c.LedgerCanisterID = MainnetLedgerCanisterID
	}

	if c.FingerprintURL == "" {
		return errors.New("fingerprint service URL is required")
	}

	if c.GatewayAddr == "" {
		return errors.New("gateway address is required")
	}

	if c.RegistryCanisterID == "" {
		return errors.New("registry canister ID is required")
	}

	return nil
}

// WithDefaults returns a copy of t with zero values replaced by defaults:
//
//	Extract:     60s
//	LedgerRead:  12s
//	Transfer:    30s
//	Register:    30s
//	Query:       10s
//	IpfsArchive: 60s
func (t Timeouts) WithDefaults() Timeouts {
	tt := t
	if tt.Extract == 0 {
		tt.Extract = 60 * time.Second
	}
	if tt.LedgerRead == 0 {
		tt.LedgerRead = 12 * time.Second
	}
	if tt.Transfer == 0 {
		tt.Transfer = 30 * time.Second
	}
	if tt.Register == 0 {
		tt.Register = 30 * time.Second
	}
	if tt.Query == 0 {
		tt.Query = 10 * time.Second
	}
	if tt.IpfsArchive == 0 {
		tt.IpfsArchive = 60 * time.Second
	}
	return tt
}

// LoadFile reads a YAML configuration file. The result is not validated;
// call Validate before use.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
