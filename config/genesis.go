package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tiervault/tiervault/pkg/crypto"
	"github.com/tiervault/tiervault/pkg/types"
)

// Time constants for tier lock durations (seconds).
const (
	Day  int64 = 24 * 60 * 60
	Week int64 = 7 * Day
)

// Default tier parameters seeded at genesis: 5%/7d, 10%/14d, 15%/30d.
const (
	DefaultTier1RateBps uint64 = 500
	DefaultTier2RateBps uint64 = 1000
	DefaultTier3RateBps uint64 = 1500
)

// GenesisTier is one seeded reward tier.
type GenesisTier struct {
	ID          uint8  `json:"id"`
	RateBps     uint64 `json:"rate_bps"`
	LockSeconds int64  `json:"lock_seconds"`
}

// Genesis fixes the ledger identity. This is immutable after the first
// start — the node refuses a datadir seeded from a different genesis.
type Genesis struct {
	// Ledger identity
	LedgerID string `json:"ledger_id"`
	Name     string `json:"name"`

	// Seeding timestamp (unix seconds, informational)
	Timestamp int64 `json:"timestamp"`

	// The single owner principal. Immutable; there is no transfer
	// operation.
	Owner string `json:"owner"`

	// Deposit cooldown in seconds (0 = engine default of one day).
	CooldownSeconds int64 `json:"cooldown_seconds"`

	// Seeded reward tiers.
	Tiers []GenesisTier `json:"tiers"`

	// Principals whitelisted from the start.
	Approved []string `json:"approved,omitempty"`

	// Initial escrow allocations (address -> balance in base units).
	Alloc map[string]uint64 `json:"alloc,omitempty"`

	// Initial balance of the vault account (funds reward payouts).
	VaultBalance uint64 `json:"vault_balance"`
}

// DefaultTiers returns the three business-default tiers.
func DefaultTiers() []GenesisTier {
	return []GenesisTier{
		{ID: 1, RateBps: DefaultTier1RateBps, LockSeconds: 7 * Day},
		{ID: 2, RateBps: DefaultTier2RateBps, LockSeconds: 14 * Day},
		{ID: 3, RateBps: DefaultTier3RateBps, LockSeconds: 30 * Day},
	}
}

// =============================================================================
// Devnet identity
//
// Fixed, well-known addresses for local runs. DO NOT use on mainnet.
// =============================================================================

const (
	// DevnetOwner is the well-known devnet ledger owner.
	DevnetOwner = "ttv1892hp2x22nq5e9x2jpwnj5avclytmnwz9mhsg8"

	// Funded devnet accounts, whitelisted from the start.
	DevnetAlice = "ttv1myu8w9g8dtdlrldd543aj95303nr0ncphtffx2"
	DevnetBob   = "ttv12alcpzr5g7mzhgnpnrslnxz60mqg08kxpw2zgh"
	DevnetCarol = "ttv1hrfeenffavvp6uyk2vkl292fw22clnfu83x3wa"
)

// MainGenesis returns the main network genesis configuration.
func MainGenesis() *Genesis {
	return &Genesis{
		LedgerID:        "tiervault-mainnet-1",
		Name:            "TierVault Mainnet",
		Timestamp:       1770734103, // 2026-02-10
		Owner:           "tv1dzsdyruk6aw6wkax9vjn9p86hlca6xsykqwd26",
		CooldownSeconds: Day,
		Tiers:           DefaultTiers(),
		VaultBalance:    10_000_000,
	}
}

// DevGenesis returns the dev network genesis configuration: a fixed owner
// and funded, pre-approved accounts for local runs.
func DevGenesis() *Genesis {
	return &Genesis{
		LedgerID:        "tiervault-devnet-1",
		Name:            "TierVault Devnet",
		Timestamp:       1770734103,
		Owner:           DevnetOwner,
		CooldownSeconds: Day,
		Tiers:           DefaultTiers(),
		Approved:        []string{DevnetAlice, DevnetBob, DevnetCarol},
		Alloc: map[string]uint64{
			DevnetAlice: 1_000_000,
			DevnetBob:   1_000_000,
			DevnetCarol: 1_000_000,
		},
		VaultBalance: 100_000_000,
	}
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Devnet:
		return DevGenesis()
	default:
		return MainGenesis()
	}
}

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.LedgerID == "" {
		return fmt.Errorf("ledger_id is required")
	}

	if _, err := types.ParseAddress(g.Owner); err != nil {
		return fmt.Errorf("invalid owner address %q: %w", g.Owner, err)
	}

	if g.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds must not be negative")
	}

	seen := make(map[uint8]struct{}, len(g.Tiers))
	for _, t := range g.Tiers {
		if t.ID == 0 {
			return fmt.Errorf("tier id 0 is reserved")
		}
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("duplicate tier id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.LockSeconds <= 0 {
			return fmt.Errorf("tier %d: lock_seconds must be positive", t.ID)
		}
	}

	for _, addr := range g.Approved {
		if _, err := types.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid approved address %q: %w", addr, err)
		}
	}

	for addr := range g.Alloc {
		if _, err := types.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addr, err)
		}
	}

	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the ledger and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
