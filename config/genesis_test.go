package config

import (
	"path/filepath"
	"testing"
)

func TestGenesis_Validate_MainnetValid(t *testing.T) {
	g := MainGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_DevnetValid(t *testing.T) {
	g := DevGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("devnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Genesis)
	}{
		{"empty ledger_id", func(g *Genesis) { g.LedgerID = "" }},
		{"bad owner", func(g *Genesis) { g.Owner = "not-an-address" }},
		{"negative cooldown", func(g *Genesis) { g.CooldownSeconds = -1 }},
		{"tier id zero", func(g *Genesis) { g.Tiers[0].ID = 0 }},
		{"duplicate tier id", func(g *Genesis) { g.Tiers[1].ID = g.Tiers[0].ID }},
		{"zero lock", func(g *Genesis) { g.Tiers[0].LockSeconds = 0 }},
		{"bad approved address", func(g *Genesis) { g.Approved = []string{"xyz"} }},
		{"bad alloc address", func(g *Genesis) { g.Alloc = map[string]uint64{"xyz": 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := DevGenesis()
			tt.mutate(g)
			if err := g.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGenesisFor(t *testing.T) {
	if GenesisFor(Mainnet).LedgerID != MainGenesis().LedgerID {
		t.Error("mainnet genesis mismatch")
	}
	if GenesisFor(Devnet).LedgerID != DevGenesis().LedgerID {
		t.Error("devnet genesis mismatch")
	}
}

func TestGenesis_SaveLoad(t *testing.T) {
	g := DevGenesis()
	path := filepath.Join(t.TempDir(), "genesis.json")

	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}

	if loaded.LedgerID != g.LedgerID {
		t.Errorf("ledger_id = %q, want %q", loaded.LedgerID, g.LedgerID)
	}
	if len(loaded.Tiers) != len(g.Tiers) {
		t.Errorf("tiers = %d, want %d", len(loaded.Tiers), len(g.Tiers))
	}
	if loaded.Alloc[DevnetAlice] != 1_000_000 {
		t.Errorf("alice alloc = %d, want 1000000", loaded.Alloc[DevnetAlice])
	}
}

func TestGenesis_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	g := DevGenesis()
	g.LedgerID = ""
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := LoadGenesis(path); err == nil {
		t.Fatal("expected validation error on load")
	}
}

func TestGenesis_LoadMissing(t *testing.T) {
	if _, err := LoadGenesis("/nonexistent/genesis.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGenesis_Hash_Deterministic(t *testing.T) {
	h1, err := DevGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := DevGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Error("genesis hash not deterministic")
	}

	other := DevGenesis()
	other.LedgerID = "tiervault-other-1"
	h3, err := other.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 == h3 {
		t.Error("different genesis documents hash identically")
	}
}

func TestDefaultTiers(t *testing.T) {
	tiers := DefaultTiers()
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
	wantLocks := []int64{7 * Day, 14 * Day, 30 * Day}
	wantRates := []uint64{500, 1000, 1500}
	for i, tier := range tiers {
		if tier.ID != uint8(i+1) {
			t.Errorf("tier %d id = %d", i, tier.ID)
		}
		if tier.RateBps != wantRates[i] {
			t.Errorf("tier %d rate = %d, want %d", i, tier.RateBps, wantRates[i])
		}
		if tier.LockSeconds != wantLocks[i] {
			t.Errorf("tier %d lock = %d, want %d", i, tier.LockSeconds, wantLocks[i])
		}
	}
}
