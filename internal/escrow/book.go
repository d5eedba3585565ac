// Package escrow maintains the internal balance book backing stake
// deposits and reward payouts. Balances live under the "b/" keyspace,
// keyed by principal address. The vault account funds reward payouts
// and absorbs deposited principal while a stake is locked.
package escrow

import (
	"encoding/binary"
	"fmt"

	"github.com/tiervault/tiervault/config"
	"github.com/tiervault/tiervault/internal/log"
	"github.com/tiervault/tiervault/internal/storage"
	"github.com/tiervault/tiervault/pkg/crypto"
	"github.com/tiervault/tiervault/pkg/types"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the
	// account's balance.
	ErrInsufficientBalance = fmt.Errorf("insufficient balance")

	// ErrBalanceOverflow is returned when a credit would overflow the
	// account's balance.
	ErrBalanceOverflow = fmt.Errorf("balance overflow")
)

var balancePrefix = []byte("b/")

// VaultAddress returns the address of the vault account. It is derived
// from a fixed tag so every node computes the same address.
func VaultAddress() types.Address {
	h := crypto.Hash([]byte("tiervault/escrow/vault"))
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// Book is the persistent balance book.
type Book struct {
	db storage.DB
}

// NewBook creates a balance book on top of db.
func NewBook(db storage.DB) *Book {
	return &Book{db: db}
}

// Balance returns the balance of addr. A missing account has balance 0.
func (b *Book) Balance(addr types.Address) (uint64, error) {
	key := balanceKey(addr)

	has, err := b.db.Has(key)
	if err != nil {
		return 0, err
	}
	if !has {
		return 0, nil
	}

	data, err := b.db.Get(key)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt balance record for %s", addr)
	}

	return binary.BigEndian.Uint64(data), nil
}

// Seed writes the genesis allocations and the vault balance. It is a
// no-op if the book has already been seeded.
func (b *Book) Seed(gen *config.Genesis) error {
	vault := VaultAddress()

	has, err := b.db.Has(balanceKey(vault))
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	batch := b.newBatch()
	if err := b.stagePut(batch, vault, gen.VaultBalance); err != nil {
		return err
	}
	for addrStr, amount := range gen.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if err := b.stagePut(batch, addr, amount); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	log.Escrow.Info().
		Int("accounts", len(gen.Alloc)).
		Uint64("vault_balance", gen.VaultBalance).
		Msg("Escrow book seeded")
	return nil
}

// TransferIn moves amount from the principal into the vault. This is the
// deposit leg: principal funds are held while the stake is locked.
func (b *Book) TransferIn(from, to types.Address, amount uint64) error {
	return b.move(from, to, amount)
}

// TransferOut moves amount from the vault to the principal. This is the
// claim leg paying out principal plus reward.
func (b *Book) TransferOut(to types.Address, amount uint64) error {
	return b.move(VaultAddress(), to, amount)
}

func (b *Book) move(from, to types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from == to {
		return nil
	}

	fromBal, err := b.Balance(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, from, fromBal, amount)
	}

	toBal, err := b.Balance(to)
	if err != nil {
		return err
	}
	if toBal+amount < toBal {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}

	batch := b.newBatch()
	if err := b.stagePut(batch, from, fromBal-amount); err != nil {
		return err
	}
	if err := b.stagePut(batch, to, toBal+amount); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	log.Escrow.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Uint64("amount", amount).
		Msg("Transfer applied")
	return nil
}

func (b *Book) newBatch() storage.Batch {
	if br, ok := b.db.(storage.Batcher); ok {
		return br.NewBatch()
	}
	return &fallbackBatch{db: b.db}
}

func (b *Book) stagePut(batch storage.Batch, addr types.Address, balance uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], balance)
	return batch.Put(balanceKey(addr), buf[:])
}

func balanceKey(addr types.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+types.AddressSize)
	key = append(key, balancePrefix...)
	key = append(key, addr[:]...)
	return key
}

// fallbackBatch writes through immediately for backends without batch
// support. Transfers lose atomicity but remain correct for tests.
type fallbackBatch struct {
	db storage.DB
}

func (b *fallbackBatch) Put(key, value []byte) error { return b.db.Put(key, value) }
func (b *fallbackBatch) Delete(key []byte) error     { return b.db.Delete(key) }
func (b *fallbackBatch) Commit() error               { return nil }
