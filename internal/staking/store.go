package staking

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tiervault/tiervault/internal/storage"
	"github.com/tiervault/tiervault/pkg/types"
)

// Key layout:
//
//	t/<id(1)>            -> Tier JSON
//	a/<addr(20)>         -> Account JSON
//	r/<addr(20)><id(1)>  -> StakeRecord JSON
//	e/<seq(8 BE)>        -> Event JSON
//	s/owner              -> owner address (20 raw bytes)
//	s/cooldown           -> cooldown seconds (8 BE)
//	s/eventseq           -> last event seq (8 BE)
//	s/genesis            -> genesis hash (32 raw bytes)
var (
	prefixTier    = []byte("t/")
	prefixAccount = []byte("a/")
	prefixRecord  = []byte("r/")
	prefixEvent   = []byte("e/")

	keyOwner    = []byte("s/owner")
	keyCooldown = []byte("s/cooldown")
	keyEventSeq = []byte("s/eventseq")
	keyGenesis  = []byte("s/genesis")
)

// Store persists the staking ledger state. All mutations of one operation
// go through a single batch so a commit is all-or-nothing.
type Store struct {
	db storage.DB
}

// NewStore creates a ledger store over the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// NewBatch starts an atomic write batch.
func (s *Store) NewBatch() storage.Batch {
	if batcher, ok := s.db.(storage.Batcher); ok {
		return batcher.NewBatch()
	}
	// Non-batching DBs get sequential writes. All shipped DB
	// implementations support batching; this keeps the store usable
	// against minimal test doubles.
	return &writeThroughBatch{db: s.db}
}

// Initialized reports whether the ledger has been seeded from genesis.
func (s *Store) Initialized() (bool, error) {
	return s.db.Has(keyOwner)
}

// Owner returns the ledger owner address.
func (s *Store) Owner() (types.Address, error) {
	data, err := s.db.Get(keyOwner)
	if err != nil {
		return types.Address{}, fmt.Errorf("owner get: %w", err)
	}
	if len(data) != types.AddressSize {
		return types.Address{}, fmt.Errorf("owner record is %d bytes, want %d", len(data), types.AddressSize)
	}
	var a types.Address
	copy(a[:], data)
	return a, nil
}

func (s *Store) putOwner(b storage.Batch, owner types.Address) error {
	return b.Put(keyOwner, owner.Bytes())
}

// CooldownSeconds returns the configured deposit cooldown.
func (s *Store) CooldownSeconds() (int64, error) {
	data, err := s.db.Get(keyCooldown)
	if err != nil {
		return 0, fmt.Errorf("cooldown get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("cooldown record is %d bytes, want 8", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

func (s *Store) putCooldownSeconds(b storage.Batch, seconds int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seconds))
	return b.Put(keyCooldown, buf[:])
}

// GenesisHash returns the hash of the genesis document the ledger was
// seeded from. Used to detect a datadir/genesis mismatch on startup.
func (s *Store) GenesisHash() (types.Hash, error) {
	data, err := s.db.Get(keyGenesis)
	if err != nil {
		return types.Hash{}, fmt.Errorf("genesis hash get: %w", err)
	}
	if len(data) != types.HashSize {
		return types.Hash{}, fmt.Errorf("genesis hash is %d bytes, want %d", len(data), types.HashSize)
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}

func (s *Store) putGenesisHash(b storage.Batch, h types.Hash) error {
	return b.Put(keyGenesis, h.Bytes())
}

// Tier returns the tier parameters, or the zero-value tier if never set.
func (s *Store) Tier(id TierID) (Tier, error) {
	var t Tier
	found, err := s.getJSON(tierKey(id), &t)
	if err != nil {
		return Tier{}, fmt.Errorf("tier %d get: %w", id, err)
	}
	if !found {
		return Tier{}, nil
	}
	return t, nil
}

func (s *Store) putTier(b storage.Batch, id TierID, t Tier) error {
	data, err := json.Marshal(&t)
	if err != nil {
		return fmt.Errorf("tier marshal: %w", err)
	}
	return b.Put(tierKey(id), data)
}

// Tiers returns all configured tiers in id order.
func (s *Store) Tiers() ([]TierEntry, error) {
	entries := []TierEntry{}
	err := s.db.ForEach(prefixTier, func(key, value []byte) error {
		// Key layout: "t/" + id(1).
		if len(key) != len(prefixTier)+1 {
			return nil // Malformed key, skip.
		}
		var t Tier
		if err := json.Unmarshal(value, &t); err != nil {
			return nil // Skip corrupt entries.
		}
		entries = append(entries, TierEntry{ID: TierID(key[len(prefixTier)]), Tier: t})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortTierEntries(entries)
	return entries, nil
}

// Account returns the per-principal state, or a zero-value account if the
// principal has never been touched.
func (s *Store) Account(addr types.Address) (Account, error) {
	var a Account
	found, err := s.getJSON(accountKey(addr), &a)
	if err != nil {
		return Account{}, fmt.Errorf("account get: %w", err)
	}
	if !found {
		return Account{}, nil
	}
	return a, nil
}

func (s *Store) putAccount(b storage.Batch, addr types.Address, a Account) error {
	data, err := json.Marshal(&a)
	if err != nil {
		return fmt.Errorf("account marshal: %w", err)
	}
	return b.Put(accountKey(addr), data)
}

// Record returns the (principal, tier) stake record, or a zero-value record
// if none exists.
func (s *Store) Record(addr types.Address, id TierID) (StakeRecord, error) {
	var r StakeRecord
	found, err := s.getJSON(recordKey(addr, id), &r)
	if err != nil {
		return StakeRecord{}, fmt.Errorf("record get: %w", err)
	}
	if !found {
		return StakeRecord{}, nil
	}
	return r, nil
}

func (s *Store) putRecord(b storage.Batch, addr types.Address, id TierID, r StakeRecord) error {
	data, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("record marshal: %w", err)
	}
	return b.Put(recordKey(addr, id), data)
}

// RecordsOf returns all stake records of one principal in tier order.
func (s *Store) RecordsOf(addr types.Address) ([]StakeEntry, error) {
	prefix := make([]byte, len(prefixRecord)+types.AddressSize)
	copy(prefix, prefixRecord)
	copy(prefix[len(prefixRecord):], addr[:])

	entries := []StakeEntry{}
	err := s.db.ForEach(prefix, func(key, value []byte) error {
		// Key layout: "r/" + addr(20) + id(1).
		if len(key) != len(prefixRecord)+types.AddressSize+1 {
			return nil
		}
		var r StakeRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return nil
		}
		entries = append(entries, StakeEntry{Tier: TierID(key[len(key)-1]), StakeRecord: r})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortStakeEntries(entries)
	return entries, nil
}

// EventSeq returns the sequence number of the most recent event (0 = none).
func (s *Store) EventSeq() (uint64, error) {
	has, err := s.db.Has(keyEventSeq)
	if err != nil {
		return 0, err
	}
	if !has {
		return 0, nil
	}
	data, err := s.db.Get(keyEventSeq)
	if err != nil {
		return 0, fmt.Errorf("event seq get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("event seq is %d bytes, want 8", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Event returns the event with the given sequence number.
func (s *Store) Event(seq uint64) (*Event, error) {
	data, err := s.db.Get(eventKey(seq))
	if err != nil {
		return nil, fmt.Errorf("event %d get: %w", seq, err)
	}
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("event %d unmarshal: %w", seq, err)
	}
	return &e, nil
}

// Events returns up to limit events starting at seq from (inclusive).
// from == 0 is treated as 1; sequence numbers start at 1.
func (s *Store) Events(from uint64, limit int) ([]*Event, error) {
	last, err := s.EventSeq()
	if err != nil {
		return nil, err
	}
	if from == 0 {
		from = 1
	}
	events := []*Event{}
	for seq := from; seq <= last && len(events) < limit; seq++ {
		e, err := s.Event(seq)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// lastEventHash returns the hash of the most recent event, or the zero hash
// for an empty log.
func (s *Store) lastEventHash() (types.Hash, error) {
	seq, err := s.EventSeq()
	if err != nil {
		return types.Hash{}, err
	}
	if seq == 0 {
		return types.Hash{}, nil
	}
	e, err := s.Event(seq)
	if err != nil {
		return types.Hash{}, err
	}
	return e.Hash, nil
}

// appendEvent seals the event onto the chain and stages it in the batch
// together with the advanced sequence counter.
func (s *Store) appendEvent(b storage.Batch, e *Event) error {
	seq, err := s.EventSeq()
	if err != nil {
		return err
	}
	prev, err := s.lastEventHash()
	if err != nil {
		return err
	}
	if err := e.seal(seq+1, prev); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("event marshal: %w", err)
	}
	if err := b.Put(eventKey(e.Seq), data); err != nil {
		return err
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.Seq)
	return b.Put(keyEventSeq, buf[:])
}

// getJSON loads and unmarshals a JSON value, reporting whether the key exists.
func (s *Store) getJSON(key []byte, target interface{}) (bool, error) {
	has, err := s.db.Has(key)
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}
	data, err := s.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, err
	}
	return true, nil
}

func tierKey(id TierID) []byte {
	key := make([]byte, len(prefixTier)+1)
	copy(key, prefixTier)
	key[len(prefixTier)] = byte(id)
	return key
}

func accountKey(addr types.Address) []byte {
	key := make([]byte, len(prefixAccount)+types.AddressSize)
	copy(key, prefixAccount)
	copy(key[len(prefixAccount):], addr[:])
	return key
}

func recordKey(addr types.Address, id TierID) []byte {
	key := make([]byte, len(prefixRecord)+types.AddressSize+1)
	copy(key, prefixRecord)
	copy(key[len(prefixRecord):], addr[:])
	key[len(key)-1] = byte(id)
	return key
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], seq)
	return key
}

func sortTierEntries(entries []TierEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}

func sortStakeEntries(entries []StakeEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tier < entries[j].Tier })
}

// writeThroughBatch applies each write immediately (no atomicity).
type writeThroughBatch struct {
	db storage.DB
}

func (w *writeThroughBatch) Put(key, value []byte) error { return w.db.Put(key, value) }
func (w *writeThroughBatch) Delete(key []byte) error     { return w.db.Delete(key) }
func (w *writeThroughBatch) Commit() error               { return nil }
