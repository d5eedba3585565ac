// Package staking implements the tiered staking ledger: deposits into reward
// tiers, basis-point reward accrual, lock durations, owner/whitelist access
// control, and a per-principal deposit cooldown.
package staking

import (
	"fmt"
	"sync"

	"github.com/tiervault/tiervault/config"
	klog "github.com/tiervault/tiervault/internal/log"
	"github.com/tiervault/tiervault/internal/storage"
	"github.com/tiervault/tiervault/pkg/types"
	"github.com/rs/zerolog"
)

// Transferer moves the staked asset between a principal and the vault.
// It is the only external collaborator of the engine and may fail; a failure
// must leave the caller's ledger state untouched.
type Transferer interface {
	TransferIn(from, to types.Address, amount uint64) error
	TransferOut(to types.Address, amount uint64) error
}

// Engine is the staking ledger's single entry point. All mutating operations
// run to completion under one write lock: no concurrent observer ever sees a
// record mid-update. The engine never reads the wall clock — callers supply
// now (unix seconds) on every time-dependent operation.
type Engine struct {
	mu       sync.RWMutex
	store    *Store
	transfer Transferer
	vault    types.Address
	sinks    []EventSink
	logger   zerolog.Logger

	// Loaded once at genesis seeding (or from storage on restart).
	initialized bool
	owner       types.Address
	cooldown    int64
}

// New creates an engine over the given database. The transfer collaborator
// receives every asset movement; vault is the custody address deposits are
// transferred to. If the database already holds a seeded ledger, the engine
// resumes from it; otherwise InitFromGenesis must be called before use.
func New(db storage.DB, transfer Transferer, vault types.Address) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if transfer == nil {
		return nil, fmt.Errorf("transfer collaborator is nil")
	}

	e := &Engine{
		store:    NewStore(db),
		transfer: transfer,
		vault:    vault,
		logger:   klog.WithComponent("engine"),
	}

	initialized, err := e.store.Initialized()
	if err != nil {
		return nil, fmt.Errorf("check ledger state: %w", err)
	}
	if initialized {
		if err := e.loadIdentity(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// loadIdentity restores the owner and cooldown from storage.
func (e *Engine) loadIdentity() error {
	owner, err := e.store.Owner()
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	cooldown, err := e.store.CooldownSeconds()
	if err != nil {
		return fmt.Errorf("load cooldown: %w", err)
	}
	e.owner = owner
	e.cooldown = cooldown
	e.initialized = true
	return nil
}

// InitFromGenesis seeds a fresh ledger from the genesis document: owner,
// cooldown, tiers, and initial approvals. Returns an error if the ledger
// is already initialized — genesis seeding is one-time setup.
func (e *Engine) InitFromGenesis(gen *config.Genesis) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return fmt.Errorf("ledger already initialized")
	}

	owner, err := types.ParseAddress(gen.Owner)
	if err != nil {
		return fmt.Errorf("genesis owner: %w", err)
	}

	genHash, err := gen.Hash()
	if err != nil {
		return fmt.Errorf("genesis hash: %w", err)
	}

	cooldown := gen.CooldownSeconds
	if cooldown == 0 {
		cooldown = DefaultCooldownSeconds
	}

	b := e.store.NewBatch()
	if err := e.store.putOwner(b, owner); err != nil {
		return err
	}
	if err := e.store.putCooldownSeconds(b, cooldown); err != nil {
		return err
	}
	if err := e.store.putGenesisHash(b, genHash); err != nil {
		return err
	}
	for _, gt := range gen.Tiers {
		if gt.ID == 0 {
			return fmt.Errorf("genesis tier id 0 is reserved")
		}
		tier := Tier{RateBps: gt.RateBps, LockSeconds: gt.LockSeconds}
		if err := e.store.putTier(b, TierID(gt.ID), tier); err != nil {
			return err
		}
	}
	for _, approved := range gen.Approved {
		addr, err := types.ParseAddress(approved)
		if err != nil {
			return fmt.Errorf("genesis approval %q: %w", approved, err)
		}
		if err := e.store.putAccount(b, addr, Account{Approved: true}); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit genesis seed: %w", err)
	}

	e.owner = owner
	e.cooldown = cooldown
	e.initialized = true

	e.logger.Info().
		Str("owner", owner.String()).
		Int64("cooldown_seconds", cooldown).
		Int("tiers", len(gen.Tiers)).
		Int("approved", len(gen.Approved)).
		Msg("Ledger seeded from genesis")
	return nil
}

// Initialized reports whether the ledger has been seeded from genesis.
func (e *Engine) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// AddSink registers an event sink. Call during wiring, before the engine
// starts serving operations.
func (e *Engine) AddSink(s EventSink) {
	e.sinks = append(e.sinks, s)
}

// publish hands a committed event to every sink, in registration order.
func (e *Engine) publish(ev *Event) {
	for _, s := range e.sinks {
		s.Publish(ev)
	}
}

// SetTier creates or overwrites a tier. Owner-only; tier id 0 is rejected.
// An existing tier is replaced unconditionally.
func (e *Engine) SetTier(caller types.Address, now int64, id TierID, rateBps uint64, lockSeconds int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}
	if err := requireOwner(e.owner, caller); err != nil {
		return err
	}
	if err := validateTierID(id); err != nil {
		return err
	}

	tier := Tier{RateBps: rateBps, LockSeconds: lockSeconds}
	ev := &Event{
		Time:        now,
		Kind:        EventTierUpdated,
		Tier:        id,
		RateBps:     rateBps,
		LockSeconds: lockSeconds,
	}

	b := e.store.NewBatch()
	if err := e.store.putTier(b, id, tier); err != nil {
		return err
	}
	if err := e.store.appendEvent(b, ev); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit tier update: %w", err)
	}

	e.publish(ev)
	e.logger.Info().
		Uint8("tier", uint8(id)).
		Uint64("rate_bps", rateBps).
		Int64("lock_seconds", lockSeconds).
		Msg("Tier updated")
	return nil
}

// SetApproval adds or removes a principal from the whitelist. Owner-only and
// idempotent: the whitelist-changed event is emitted regardless of the
// prior status.
func (e *Engine) SetApproval(caller types.Address, now int64, principal types.Address, approved bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}
	if err := requireOwner(e.owner, caller); err != nil {
		return err
	}

	acct, err := e.store.Account(principal)
	if err != nil {
		return err
	}
	acct.Approved = approved

	ev := &Event{
		Time:      now,
		Kind:      EventWhitelistChanged,
		Principal: &principal,
		Approved:  &approved,
	}

	b := e.store.NewBatch()
	if err := e.store.putAccount(b, principal, acct); err != nil {
		return err
	}
	if err := e.store.appendEvent(b, ev); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit approval: %w", err)
	}

	e.publish(ev)
	e.logger.Info().
		Str("principal", principal.String()).
		Bool("approved", approved).
		Msg("Whitelist changed")
	return nil
}

// Deposit stakes amount into the given tier for principal. Check order:
// approval, cooldown, tier, amount. The asset moves into the vault before
// the ledger commit; a transfer failure aborts with nothing written, and a
// commit failure after a successful transfer is compensated by an opposite
// transfer. Returns the record as it stands after the deposit.
func (e *Engine) Deposit(now int64, principal types.Address, id TierID, amount uint64) (StakeRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return StakeRecord{}, err
	}

	acct, err := e.store.Account(principal)
	if err != nil {
		return StakeRecord{}, err
	}
	if err := requireApproved(acct); err != nil {
		return StakeRecord{}, err
	}
	if err := checkCooldown(acct, now, e.cooldown); err != nil {
		return StakeRecord{}, err
	}

	tier, err := e.store.Tier(id)
	if err != nil {
		return StakeRecord{}, err
	}
	if !tier.Configured() {
		return StakeRecord{}, ErrInvalidTier
	}
	if amount == 0 {
		return StakeRecord{}, ErrZeroAmount
	}

	reward := Reward(amount, tier.RateBps)

	rec, err := e.store.Record(principal, id)
	if err != nil {
		return StakeRecord{}, err
	}
	newRec := applyDeposit(rec, amount, reward, now, tier.LockSeconds)
	acct.LastDeposit = now

	ev := &Event{
		Time:       now,
		Kind:       EventDeposited,
		Principal:  &principal,
		Tier:       id,
		Amount:     amount,
		Reward:     reward,
		UnlockTime: newRec.UnlockTime,
	}

	// Move the asset first: a failed transfer aborts before anything is
	// staged, a failed commit afterwards is compensated below.
	if err := e.transfer.TransferIn(principal, e.vault, amount); err != nil {
		return StakeRecord{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	b := e.store.NewBatch()
	if err := e.store.putRecord(b, principal, id, newRec); err != nil {
		return StakeRecord{}, err
	}
	if err := e.store.putAccount(b, principal, acct); err != nil {
		return StakeRecord{}, err
	}
	if err := e.store.appendEvent(b, ev); err != nil {
		return StakeRecord{}, err
	}
	if err := b.Commit(); err != nil {
		if terr := e.transfer.TransferOut(principal, amount); terr != nil {
			e.logger.Error().Err(terr).
				Str("principal", principal.String()).
				Uint64("amount", amount).
				Msg("Compensating transfer after failed deposit commit also failed")
		}
		return StakeRecord{}, fmt.Errorf("commit deposit: %w", err)
	}

	e.publish(ev)
	e.logger.Info().
		Str("principal", principal.String()).
		Uint8("tier", uint8(id)).
		Uint64("amount", amount).
		Uint64("reward", reward).
		Int64("unlock_time", newRec.UnlockTime).
		Msg("Deposit accepted")
	return newRec, nil
}

// Claim pays out a principal's stake plus accrued reward for one tier.
// Check order: approval, active stake, the principal's global claimed flag,
// lock elapsed (strict: a claim exactly at the unlock time is still locked).
// On success the record is zeroed and the principal's claimed flag set —
// blocking claims on every other tier. Returns the payout.
func (e *Engine) Claim(now int64, principal types.Address, id TierID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return 0, err
	}

	acct, err := e.store.Account(principal)
	if err != nil {
		return 0, err
	}
	if err := requireApproved(acct); err != nil {
		return 0, err
	}

	rec, err := e.store.Record(principal, id)
	if err != nil {
		return 0, err
	}
	if err := checkClaim(rec, acct, now); err != nil {
		return 0, err
	}

	newRec, payout := applyClaim(rec)
	acct.Claimed = true

	ev := &Event{
		Time:      now,
		Kind:      EventClaimed,
		Principal: &principal,
		Tier:      id,
		Payout:    payout,
	}

	if err := e.transfer.TransferOut(principal, payout); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	b := e.store.NewBatch()
	if err := e.store.putRecord(b, principal, id, newRec); err != nil {
		return 0, err
	}
	if err := e.store.putAccount(b, principal, acct); err != nil {
		return 0, err
	}
	if err := e.store.appendEvent(b, ev); err != nil {
		return 0, err
	}
	if err := b.Commit(); err != nil {
		if terr := e.transfer.TransferIn(principal, e.vault, payout); terr != nil {
			e.logger.Error().Err(terr).
				Str("principal", principal.String()).
				Uint64("payout", payout).
				Msg("Compensating transfer after failed claim commit also failed")
		}
		return 0, fmt.Errorf("commit claim: %w", err)
	}

	e.publish(ev)
	e.logger.Info().
		Str("principal", principal.String()).
		Uint8("tier", uint8(id)).
		Uint64("payout", payout).
		Msg("Claim paid out")
	return payout, nil
}

// StakeDetails returns the (principal, tier) record, or a zero record if
// none exists. No approval gate: the read surface is public.
func (e *Engine) StakeDetails(principal types.Address, id TierID) (StakeRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Record(principal, id)
}

// Tier returns the parameters of a tier (zero-value if never configured).
func (e *Engine) Tier(id TierID) (Tier, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Tier(id)
}

// Tiers returns all configured tiers in id order.
func (e *Engine) Tiers() ([]TierEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Tiers()
}

// Account returns a principal's whitelist/cooldown/claim state.
func (e *Engine) Account(principal types.Address) (Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Account(principal)
}

// StakesOf returns all stake records of one principal in tier order.
func (e *Engine) StakesOf(principal types.Address) ([]StakeEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.RecordsOf(principal)
}

// Events returns up to limit audit-log events starting at seq from.
func (e *Engine) Events(from uint64, limit int) ([]*Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Events(from, limit)
}

// EventSeq returns the sequence number of the most recent event.
func (e *Engine) EventSeq() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.EventSeq()
}

// Owner returns the ledger owner address.
func (e *Engine) Owner() types.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.owner
}

// CooldownSeconds returns the configured deposit cooldown.
func (e *Engine) CooldownSeconds() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cooldown
}

// GenesisHash returns the hash of the genesis document the ledger was
// seeded from.
func (e *Engine) GenesisHash() (types.Hash, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.GenesisHash()
}

// ready guards mutating operations on an unseeded ledger.
func (e *Engine) ready() error {
	if !e.initialized {
		return fmt.Errorf("ledger not initialized")
	}
	return nil
}
