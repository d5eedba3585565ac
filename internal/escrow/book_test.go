package escrow

import (
	"errors"
	"math"
	"testing"

	"github.com/tiervault/tiervault/config"
	"github.com/tiervault/tiervault/internal/storage"
	"github.com/tiervault/tiervault/pkg/types"
)

var (
	bookAlice = types.Address{0x01}
	bookBob   = types.Address{0x02}
)

func seededBook(t *testing.T) *Book {
	t.Helper()
	book := NewBook(storage.NewMemory())
	gen := &config.Genesis{
		VaultBalance: 1_000_000,
		Alloc: map[string]uint64{
			bookAlice.Hex(): 5000,
			bookBob.Hex():   2000,
		},
	}
	if err := book.Seed(gen); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return book
}

func TestBook_Seed(t *testing.T) {
	book := seededBook(t)

	bal, err := book.Balance(VaultAddress())
	if err != nil {
		t.Fatalf("Balance(vault): %v", err)
	}
	if bal != 1_000_000 {
		t.Errorf("vault balance = %d, want 1000000", bal)
	}

	bal, err = book.Balance(bookAlice)
	if err != nil {
		t.Fatalf("Balance(alice): %v", err)
	}
	if bal != 5000 {
		t.Errorf("alice balance = %d, want 5000", bal)
	}
}

func TestBook_Seed_Idempotent(t *testing.T) {
	book := seededBook(t)

	// Move some funds, then reseed: the reseed must be a no-op.
	if err := book.TransferIn(bookAlice, VaultAddress(), 1000); err != nil {
		t.Fatalf("TransferIn: %v", err)
	}
	gen := &config.Genesis{VaultBalance: 999, Alloc: map[string]uint64{bookAlice.Hex(): 5000}}
	if err := book.Seed(gen); err != nil {
		t.Fatalf("Seed again: %v", err)
	}

	bal, err := book.Balance(bookAlice)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 4000 {
		t.Errorf("alice balance = %d, want 4000", bal)
	}
}

func TestBook_MissingAccountIsZero(t *testing.T) {
	book := NewBook(storage.NewMemory())
	bal, err := book.Balance(types.Address{0x42})
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 0 {
		t.Errorf("balance = %d, want 0", bal)
	}
}

func TestBook_TransferInAndOut(t *testing.T) {
	book := seededBook(t)

	if err := book.TransferIn(bookAlice, VaultAddress(), 3000); err != nil {
		t.Fatalf("TransferIn: %v", err)
	}
	aliceBal, _ := book.Balance(bookAlice)
	vaultBal, _ := book.Balance(VaultAddress())
	if aliceBal != 2000 {
		t.Errorf("alice = %d, want 2000", aliceBal)
	}
	if vaultBal != 1_003_000 {
		t.Errorf("vault = %d, want 1003000", vaultBal)
	}

	if err := book.TransferOut(bookAlice, 3150); err != nil {
		t.Fatalf("TransferOut: %v", err)
	}
	aliceBal, _ = book.Balance(bookAlice)
	vaultBal, _ = book.Balance(VaultAddress())
	if aliceBal != 5150 {
		t.Errorf("alice = %d, want 5150", aliceBal)
	}
	if vaultBal != 999_850 {
		t.Errorf("vault = %d, want 999850", vaultBal)
	}
}

func TestBook_InsufficientBalance(t *testing.T) {
	book := seededBook(t)

	err := book.TransferIn(bookAlice, VaultAddress(), 5001)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}

	// Balances are untouched after a rejected transfer.
	bal, _ := book.Balance(bookAlice)
	if bal != 5000 {
		t.Errorf("alice = %d, want 5000", bal)
	}
}

func TestBook_Overflow(t *testing.T) {
	book := NewBook(storage.NewMemory())
	gen := &config.Genesis{
		VaultBalance: math.MaxUint64,
		Alloc:        map[string]uint64{bookAlice.Hex(): 100},
	}
	if err := book.Seed(gen); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	err := book.TransferIn(bookAlice, VaultAddress(), 100)
	if !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("error = %v, want ErrBalanceOverflow", err)
	}
}

func TestBook_ZeroAndSelfTransfers(t *testing.T) {
	book := seededBook(t)

	if err := book.TransferIn(bookAlice, VaultAddress(), 0); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := book.TransferIn(bookAlice, bookAlice, 9999999); err != nil {
		t.Fatalf("self transfer: %v", err)
	}

	bal, _ := book.Balance(bookAlice)
	if bal != 5000 {
		t.Errorf("alice = %d, want 5000", bal)
	}
}

func TestVaultAddress_Stable(t *testing.T) {
	a := VaultAddress()
	b := VaultAddress()
	if a != b {
		t.Fatal("vault address not deterministic")
	}
	if a.IsZero() {
		t.Fatal("vault address is zero")
	}
}
