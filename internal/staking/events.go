package staking

import (
	"encoding/json"
	"fmt"

	"github.com/tiervault/tiervault/pkg/crypto"
	"github.com/tiervault/tiervault/pkg/types"
)

// EventKind names a ledger mutation.
type EventKind string

// Event kinds, one per mutating operation.
const (
	EventTierUpdated      EventKind = "tier_updated"
	EventDeposited        EventKind = "deposited"
	EventClaimed          EventKind = "claimed"
	EventWhitelistChanged EventKind = "whitelist_changed"
)

// Event is one entry of the hash-chained audit log. Every successful
// mutation appends exactly one event in the same atomic commit as the
// state change. Hash covers the event with its own Hash field zeroed,
// chained through PrevHash to the preceding event.
type Event struct {
	Seq  uint64    `json:"seq"`
	Time int64     `json:"time"`
	Kind EventKind `json:"kind"`

	Principal *types.Address `json:"principal,omitempty"`
	Tier      TierID         `json:"tier,omitempty"`

	// tier_updated
	RateBps     uint64 `json:"rate_bps,omitempty"`
	LockSeconds int64  `json:"lock_seconds,omitempty"`

	// deposited
	Amount     uint64 `json:"amount,omitempty"`
	Reward     uint64 `json:"reward,omitempty"`
	UnlockTime int64  `json:"unlock_time,omitempty"`

	// claimed
	Payout uint64 `json:"payout,omitempty"`

	// whitelist_changed
	Approved *bool `json:"approved,omitempty"`

	PrevHash types.Hash `json:"prev_hash"`
	Hash     types.Hash `json:"hash"`
}

// seal assigns the event's position in the chain and computes its hash.
func (e *Event) seal(seq uint64, prev types.Hash) error {
	e.Seq = seq
	e.PrevHash = prev
	e.Hash = types.Hash{}

	h, err := e.computeHash()
	if err != nil {
		return err
	}
	e.Hash = h
	return nil
}

// computeHash hashes the canonical JSON encoding of the event with the
// Hash field zeroed.
func (e *Event) computeHash() (types.Hash, error) {
	clone := *e
	clone.Hash = types.Hash{}
	data, err := json.Marshal(&clone)
	if err != nil {
		return types.Hash{}, fmt.Errorf("event marshal: %w", err)
	}
	return crypto.Hash(data), nil
}

// Verify recomputes the event hash and checks it against the stored one.
func (e *Event) Verify() error {
	h, err := e.computeHash()
	if err != nil {
		return err
	}
	if h != e.Hash {
		return fmt.Errorf("event %d: hash mismatch", e.Seq)
	}
	return nil
}

// VerifyChain checks that a contiguous slice of events is internally
// consistent: dense sequence numbers, valid hashes, and each PrevHash
// matching the prior event's Hash.
func VerifyChain(events []*Event) error {
	for i, e := range events {
		if err := e.Verify(); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := events[i-1]
		if e.Seq != prev.Seq+1 {
			return fmt.Errorf("event %d: sequence gap after %d", e.Seq, prev.Seq)
		}
		if e.PrevHash != prev.Hash {
			return fmt.Errorf("event %d: prev_hash does not match event %d", e.Seq, prev.Seq)
		}
	}
	return nil
}

// EventSink receives events after their commit. Implementations must not
// block: the engine publishes synchronously while holding its write lock.
type EventSink interface {
	Publish(e *Event)
}
